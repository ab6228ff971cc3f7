package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/zhouzirui/dialog-lab/bot/internal/config"
	"github.com/zhouzirui/dialog-lab/bot/internal/model/chat"
)

type recordingModel struct {
	mu     sync.Mutex
	inputs [][]*schema.Message
	reply  string
	err    error
}

func (m *recordingModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, input)
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *recordingModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *recordingModel) lastInput(t *testing.T) []*schema.Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.inputs) == 0 {
		t.Fatalf("model was never called")
	}
	return m.inputs[len(m.inputs)-1]
}

func TestServiceReplyBuildsPromptFromHistory(t *testing.T) {
	fake := &recordingModel{reply: "Здравствуйте!"}
	svc, err := NewService(context.Background(), fake, "fake", 0)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	history := []chat.Turn{
		{Role: chat.RoleUser, Content: "hi"},
		{Role: chat.RoleAssistant, Content: "hello"},
	}
	reply, err := svc.Reply(context.Background(), "be brief", history, "how are you?")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if reply != "Здравствуйте!" {
		t.Fatalf("unexpected reply %q", reply)
	}

	input := fake.lastInput(t)
	if len(input) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(input))
	}
	wantRoles := []schema.RoleType{schema.System, schema.User, schema.Assistant, schema.User}
	wantContent := []string{"be brief", "hi", "hello", "how are you?"}
	for i, msg := range input {
		if msg.Role != wantRoles[i] || msg.Content != wantContent[i] {
			t.Fatalf("message %d = %s/%q, want %s/%q", i, msg.Role, msg.Content, wantRoles[i], wantContent[i])
		}
	}
}

func TestServiceReplyWithoutHistory(t *testing.T) {
	fake := &recordingModel{reply: "ok"}
	svc, err := NewService(context.Background(), fake, "fake", 0)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if _, err := svc.Reply(context.Background(), "sys", nil, "first"); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if got := len(fake.lastInput(t)); got != 2 {
		t.Fatalf("expected system + user, got %d messages", got)
	}
}

func TestServiceReplyPropagatesModelError(t *testing.T) {
	fake := &recordingModel{err: errors.New("quota exceeded")}
	svc, err := NewService(context.Background(), fake, "fake", 0)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if _, err := svc.Reply(context.Background(), "sys", nil, "hi"); err == nil {
		t.Fatalf("expected error from failing model")
	}
}

func TestNewServiceRequiresModel(t *testing.T) {
	if _, err := NewService(context.Background(), nil, "fake", 0); err == nil {
		t.Fatalf("expected error for nil model")
	}
}

func TestAnalyzerFillsTemplate(t *testing.T) {
	fake := &recordingModel{reply: "4/5, звучит естественно"}
	analyzer, err := NewAnalyzer(context.Background(), fake, "fake", "Prompt: {system_prompt}\nLog:\n{conversation_log}", 0)
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}

	verdict, err := analyzer.Analyze(context.Background(), "USER: hi\nASSISTANT: hello", "be polite")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if verdict != "4/5, звучит естественно" {
		t.Fatalf("unexpected verdict %q", verdict)
	}

	input := fake.lastInput(t)
	if len(input) != 1 || input[0].Role != schema.User {
		t.Fatalf("expected a single user message, got %+v", input)
	}
	if want := "Prompt: be polite\nLog:\nUSER: hi\nASSISTANT: hello"; input[0].Content != want {
		t.Fatalf("analysis prompt = %q, want %q", input[0].Content, want)
	}
}

func TestAnalyzerRejectsEmptyVerdict(t *testing.T) {
	analyzer, err := NewAnalyzer(context.Background(), &recordingModel{reply: "  "}, "fake", "{conversation_log}", 0)
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	if _, err := analyzer.Analyze(context.Background(), "USER: hi", ""); err == nil {
		t.Fatalf("expected error for blank verdict")
	}
}

func TestNewAnalyzerRequiresPrompt(t *testing.T) {
	if _, err := NewAnalyzer(context.Background(), &recordingModel{}, "fake", " ", 0); err == nil {
		t.Fatalf("expected error for blank analysis prompt")
	}
}

type mockCompletionClient struct {
	calls []openai.ChatCompletionRequest
	resp  openai.ChatCompletionResponse
	err   error
}

func (m *mockCompletionClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.calls = append(m.calls, req)
	return m.resp, m.err
}

func TestOpenAIChatModelGenerate(t *testing.T) {
	client := &mockCompletionClient{resp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "hello"}}},
	}}
	maxTokens := 256
	m := NewOpenAIChatModel(client, "gpt-4o", 0.7, &maxTokens)

	msg, err := m.Generate(context.Background(), []*schema.Message{
		schema.SystemMessage("sys"),
		schema.UserMessage("hi"),
		schema.AssistantMessage("yo", nil),
	}, model.WithTemperature(0.2))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if msg.Content != "hello" || msg.Role != schema.Assistant {
		t.Fatalf("unexpected message %+v", msg)
	}

	if len(client.calls) != 1 {
		t.Fatalf("expected one call, got %d", len(client.calls))
	}
	req := client.calls[0]
	if req.Model != "gpt-4o" || req.Temperature != 0.2 || req.MaxTokens != 256 {
		t.Fatalf("unexpected request %+v", req)
	}
	roles := []string{req.Messages[0].Role, req.Messages[1].Role, req.Messages[2].Role}
	want := []string{openai.ChatMessageRoleSystem, openai.ChatMessageRoleUser, openai.ChatMessageRoleAssistant}
	for i := range want {
		if roles[i] != want[i] {
			t.Fatalf("role %d = %s, want %s", i, roles[i], want[i])
		}
	}
}

func TestOpenAIChatModelNoChoices(t *testing.T) {
	m := NewOpenAIChatModel(&mockCompletionClient{}, "gpt-4o", 0.7, nil)
	if _, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")}); err == nil {
		t.Fatalf("expected error when no choices returned")
	}
}

type fakeGenerator struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	resp     *genai.GenerateContentResponse
	err      error
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	f.config = config
	return f.resp, f.err
}

func TestGeminiChatModelGenerate(t *testing.T) {
	gen := &fakeGenerator{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: "При"}, {Text: "вет"}}}}},
	}}
	m := NewGeminiChatModel(gen, "gemini-pro", 0.7, nil)

	msg, err := m.Generate(context.Background(), []*schema.Message{
		schema.SystemMessage("sys"),
		schema.UserMessage("hi"),
		schema.AssistantMessage("hello", nil),
		schema.UserMessage("again"),
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if msg.Content != "Привет" {
		t.Fatalf("unexpected content %q", msg.Content)
	}

	if gen.model != "gemini-pro" {
		t.Fatalf("unexpected model %q", gen.model)
	}
	if gen.config.SystemInstruction == nil || gen.config.SystemInstruction.Parts[0].Text != "sys" {
		t.Fatalf("system prompt should travel as SystemInstruction")
	}
	if len(gen.contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(gen.contents))
	}
	if gen.contents[1].Role != genai.RoleModel {
		t.Fatalf("assistant turns should map to the model role, got %s", gen.contents[1].Role)
	}
}

func TestGeminiChatModelEmptyCandidates(t *testing.T) {
	m := NewGeminiChatModel(&fakeGenerator{resp: &genai.GenerateContentResponse{}}, "gemini-pro", 0.7, nil)
	if _, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")}); err == nil {
		t.Fatalf("expected error for empty candidates")
	}
}

func TestNewChatModelFallsBackToGPT(t *testing.T) {
	cfg := config.AIConfig{OpenAIKey: "sk-test", OpenAIModel: "gpt-4o"}

	for _, provider := range []string{config.ProviderGemini, config.ProviderArk, "claude", config.ProviderGPT} {
		chatModel, resolved, err := NewChatModel(context.Background(), cfg, provider, 0.7)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", provider, err)
		}
		if resolved != config.ProviderGPT {
			t.Fatalf("%s: resolved to %s, want gpt", provider, resolved)
		}
		if _, ok := chatModel.(*OpenAIChatModel); !ok {
			t.Fatalf("%s: expected OpenAI model, got %T", provider, chatModel)
		}
	}
}

func TestNewChatModelWithoutKeys(t *testing.T) {
	_, _, err := NewChatModel(context.Background(), config.AIConfig{}, config.ProviderGPT, 0.7)
	if err == nil || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Fatalf("expected missing key error, got %v", err)
	}
}
