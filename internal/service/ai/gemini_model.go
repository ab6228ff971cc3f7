package ai

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

// ContentGenerator 对应 genai.Models 的 GenerateContent。
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiChatModel 把 Google Gen AI SDK 适配成 eino 的 BaseChatModel。
type GeminiChatModel struct {
	models      ContentGenerator
	model       string
	temperature float32
	maxTokens   int
}

// NewGeminiClient 以 Gemini API 后端创建 genai 客户端。
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client, nil
}

// NewGeminiChatModel 创建 Gemini 适配器，models 通常是 client.Models。
func NewGeminiChatModel(models ContentGenerator, modelName string, temperature float32, maxTokens *int) *GeminiChatModel {
	m := &GeminiChatModel{
		models:      models,
		model:       modelName,
		temperature: temperature,
	}
	if maxTokens != nil {
		m.maxTokens = *maxTokens
	}
	return m
}

func (m *GeminiChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	options := model.GetCommonOptions(&model.Options{
		Temperature: &m.temperature,
		Model:       &m.model,
	}, opts...)

	config := &genai.GenerateContentConfig{}
	if options.Temperature != nil {
		config.Temperature = genai.Ptr(*options.Temperature)
	}
	maxTokens := m.maxTokens
	if options.MaxTokens != nil {
		maxTokens = *options.MaxTokens
	}
	if maxTokens > 0 && maxTokens <= math.MaxInt32 {
		config.MaxOutputTokens = int32(maxTokens)
	}

	contents, system := toGeminiContents(input)
	if system != nil {
		config.SystemInstruction = system
	}

	resp, err := m.models.GenerateContent(ctx, *options.Model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}
	return schema.AssistantMessage(text.String(), nil), nil
}

func (m *GeminiChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// toGeminiContents 把系统消息合并为 SystemInstruction，助手消息映射为 model 角色。
func toGeminiContents(input []*schema.Message) ([]*genai.Content, *genai.Content) {
	var (
		systemParts []*genai.Part
		contents    = make([]*genai.Content, 0, len(input))
	)
	for _, msg := range input {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			systemParts = append(systemParts, &genai.Part{Text: msg.Content})
		case schema.Assistant:
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: msg.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{Text: msg.Content}}})
		}
	}

	if len(systemParts) == 0 {
		return contents, nil
	}
	return contents, &genai.Content{Parts: systemParts}
}
