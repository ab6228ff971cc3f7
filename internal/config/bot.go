package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LLM 提供方
const (
	ProviderGPT    = "gpt"
	ProviderGemini = "gemini"
	ProviderArk    = "ark"
)

// BotConfig 对应 config.yaml：提示词、面向用户的文案以及模型选择。
type BotConfig struct {
	DefaultSystemPrompt        string `yaml:"default_system_prompt"`
	ConversationAnalysisPrompt string `yaml:"conversation_analysis_prompt"`
	WelcomeMessage             string `yaml:"welcome_message"`
	PromptNotSetMessage        string `yaml:"prompt_not_set_message"`
	ChatStartedMessage         string `yaml:"chat_started_message"`
	NoActiveChatMessage        string `yaml:"no_active_chat_message"`
	ChatEndedMessage           string `yaml:"chat_ended_message"`
	SetPromptMessage           string `yaml:"set_prompt_message"`
	VoiceInputComingSoon       string `yaml:"voice_input_coming_soon"`
	GreetingMessage            string `yaml:"greeting_message"`
	LLMProvider                string `yaml:"llm_provider"`
	AnalysisLLMProvider        string `yaml:"analysis_llm_provider"`
	ClearHistoryOnPromptChange bool   `yaml:"clear_history_on_prompt_change"`
}

// DefaultBotConfig 返回内置默认值，YAML 中缺失的键使用这些值。
func DefaultBotConfig() BotConfig {
	return BotConfig{
		DefaultSystemPrompt: "Ты — вежливый собеседник. Отвечай коротко и естественно, как живой человек в телефонном разговоре.",
		ConversationAnalysisPrompt: "Оцени естественность следующего диалога по шкале от 1 до 5 и кратко объясни оценку.\n\n" +
			"Системный промпт:\n{system_prompt}\n\nДиалог:\n{conversation_log}",
		WelcomeMessage:       "Привет! Я бот для экспериментов с LLM. Установите промпт и начните диалог.",
		PromptNotSetMessage:  "Системный промпт ещё не установлен. Используйте /set_prompt.",
		ChatStartedMessage:   "Диалог начат. Пишите или отправляйте голосовые сообщения.",
		NoActiveChatMessage:  "Нет активного диалога.",
		ChatEndedMessage:     "Чат завершен. Оцените, пожалуйста, естественность диалога по шкале от 1 до 5:",
		SetPromptMessage:     "Хотите изменить системный промпт? Отправьте новый промпт или нажмите /cancel для отмены.",
		VoiceInputComingSoon: "Просто отправьте голосовое сообщение во время активного диалога.",
		GreetingMessage:      "Алло, здравствуйте",
		LLMProvider:          ProviderGPT,
		AnalysisLLMProvider:  ProviderGPT,
	}
}

// LoadBotConfig 读取 YAML 文件并与默认值合并。文件不存在时直接使用默认值。
func LoadBotConfig(path string) (BotConfig, error) {
	cfg := DefaultBotConfig()

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return BotConfig{}, fmt.Errorf("read bot config %s: %w", path, err)
	}

	return ParseBotConfig(raw)
}

// ParseBotConfig 解析 YAML 文本，空字段保留默认值。
func ParseBotConfig(raw []byte) (BotConfig, error) {
	defaults := DefaultBotConfig()

	var parsed BotConfig
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return BotConfig{}, fmt.Errorf("parse bot config: %w", err)
	}

	merged := parsed
	fill := func(dst *string, fallback string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = fallback
		}
	}
	fill(&merged.DefaultSystemPrompt, defaults.DefaultSystemPrompt)
	fill(&merged.ConversationAnalysisPrompt, defaults.ConversationAnalysisPrompt)
	fill(&merged.WelcomeMessage, defaults.WelcomeMessage)
	fill(&merged.PromptNotSetMessage, defaults.PromptNotSetMessage)
	fill(&merged.ChatStartedMessage, defaults.ChatStartedMessage)
	fill(&merged.NoActiveChatMessage, defaults.NoActiveChatMessage)
	fill(&merged.ChatEndedMessage, defaults.ChatEndedMessage)
	fill(&merged.SetPromptMessage, defaults.SetPromptMessage)
	fill(&merged.VoiceInputComingSoon, defaults.VoiceInputComingSoon)
	fill(&merged.GreetingMessage, defaults.GreetingMessage)
	fill(&merged.LLMProvider, defaults.LLMProvider)
	fill(&merged.AnalysisLLMProvider, defaults.AnalysisLLMProvider)

	merged.LLMProvider = strings.ToLower(strings.TrimSpace(merged.LLMProvider))
	merged.AnalysisLLMProvider = strings.ToLower(strings.TrimSpace(merged.AnalysisLLMProvider))
	return merged, nil
}
