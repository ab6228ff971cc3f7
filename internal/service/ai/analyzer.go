package ai

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// Analyzer asks a chat model to judge how natural a finished conversation was.
// The analysis prompt may reference {conversation_log} and {system_prompt}.
type Analyzer struct {
	provider string
	timeout  time.Duration
	chain    compose.Runnable[map[string]any, *schema.Message]
}

// NewAnalyzer compiles the analysis chain for analysisPrompt.
func NewAnalyzer(ctx context.Context, chatModel model.BaseChatModel, provider, analysisPrompt string, timeout time.Duration) (*Analyzer, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if strings.TrimSpace(analysisPrompt) == "" {
		return nil, fmt.Errorf("analysis prompt is required")
	}

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(prompt.FromMessages(schema.FString, schema.UserMessage(analysisPrompt)))
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile analysis chain: %w", err)
	}

	return &Analyzer{provider: provider, timeout: timeout, chain: runnable}, nil
}

// Analyze returns the model's free-form verdict on the conversation.
func (a *Analyzer) Analyze(ctx context.Context, conversationLog, systemPrompt string) (string, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	msg, err := a.chain.Invoke(ctx, map[string]any{
		"conversation_log": conversationLog,
		"system_prompt":    systemPrompt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to run analysis chain: %w", err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", fmt.Errorf("analysis chain returned empty content")
	}

	log.Printf("[ai] analysis completed provider=%s, length=%d", a.provider, len(msg.Content))
	return msg.Content, nil
}
