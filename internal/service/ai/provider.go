package ai

import (
	"context"
	"fmt"
	"log"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/dialog-lab/bot/internal/config"
)

// NewChatModel 按提供方名称构造聊天模型，返回实际使用的提供方。
// gemini 或 ark 不可用时回退到 gpt，未知名称同样按 gpt 处理。
func NewChatModel(ctx context.Context, cfg config.AIConfig, provider string, temperature float32) (model.BaseChatModel, string, error) {
	switch provider {
	case config.ProviderGemini:
		if cfg.GeminiEnabled() {
			client, err := NewGeminiClient(ctx, cfg.GoogleAPIKey)
			if err == nil {
				return NewGeminiChatModel(client.Models, cfg.GeminiModel, temperature, cfg.MaxTokens), config.ProviderGemini, nil
			}
			log.Printf("[ai] gemini unavailable, falling back to gpt: %v", err)
		} else {
			log.Printf("[ai] GOOGLE_API_KEY not set, falling back to gpt")
		}
	case config.ProviderArk:
		if cfg.ArkEnabled() {
			chatModel, err := newArkChatModel(ctx, cfg, temperature)
			if err == nil {
				return chatModel, config.ProviderArk, nil
			}
			log.Printf("[ai] ark unavailable, falling back to gpt: %v", err)
		} else {
			log.Printf("[ai] ark credentials not set, falling back to gpt")
		}
	case config.ProviderGPT:
	default:
		log.Printf("[ai] unknown provider %q, using gpt", provider)
	}

	if !cfg.OpenAIEnabled() {
		return nil, "", fmt.Errorf("OPENAI_API_KEY is required for provider %q", config.ProviderGPT)
	}
	client := NewOpenAIClient(cfg.OpenAIKey, cfg.OpenAIBaseURL)
	return NewOpenAIChatModel(client, cfg.OpenAIModel, temperature, cfg.MaxTokens), config.ProviderGPT, nil
}

func newArkChatModel(ctx context.Context, c config.AIConfig, temperature float32) (*ark.ChatModel, error) {
	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: &temperature,
	}

	return ark.NewChatModel(ctx, cfg)
}
