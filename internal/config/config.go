package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Telegram TelegramConfig
	AI       AIConfig
	Speech   SpeechConfig
	Journal  JournalConfig
	Bot      BotConfig
}

// Load 从环境变量加载配置，文案与模型选择来自 BOT_CONFIG 指向的 YAML 文件。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	telegram, err := loadTelegramConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	bot, err := LoadBotConfig(getEnvOrDefault("BOT_CONFIG", "config.yaml"))
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		Telegram: telegram,
		AI:       ai,
		Speech:   speech,
		Journal:  loadJournalConfig(),
		Bot:      bot,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
	// AdminToken 保护 /api 会话查询接口，为空时不挂载这些路由。
	AdminToken string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	adminToken := strings.TrimSpace(os.Getenv("ADMIN_TOKEN"))
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, AdminToken: adminToken}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AdminToken: adminToken}, nil
}

// Telegram 运行模式
const (
	ModePoll    = "poll"
	ModeWebhook = "webhook"
)

// TelegramConfig 描述 Telegram Bot API 接入配置。
type TelegramConfig struct {
	Token         string
	BaseURL       string
	Mode          string
	WebhookSecret string
	PollTimeout   time.Duration
	SendRate      float64
	QueueSize     int
	WorkerIdle    time.Duration
}

func loadTelegramConfig() (TelegramConfig, error) {
	mode := strings.ToLower(getEnvOrDefault("TELEGRAM_MODE", ModePoll))
	if mode != ModePoll && mode != ModeWebhook {
		return TelegramConfig{}, fmt.Errorf("invalid TELEGRAM_MODE value %q", mode)
	}

	pollSeconds := 30
	if override, err := parseOptionalIntEnv("TELEGRAM_POLL_TIMEOUT"); err != nil {
		return TelegramConfig{}, err
	} else if override != nil && *override > 0 {
		pollSeconds = *override
	}

	sendRate := 25.0
	if override, err := parseOptionalFloatEnv("TELEGRAM_SEND_RATE"); err != nil {
		return TelegramConfig{}, err
	} else if override != nil && *override > 0 {
		sendRate = *override
	}

	queueSize := 16
	if override, err := parseOptionalIntEnv("TELEGRAM_USER_QUEUE"); err != nil {
		return TelegramConfig{}, err
	} else if override != nil && *override > 0 {
		queueSize = *override
	}

	idleSeconds := 600
	if override, err := parseOptionalIntEnv("TELEGRAM_WORKER_IDLE"); err != nil {
		return TelegramConfig{}, err
	} else if override != nil && *override > 0 {
		idleSeconds = *override
	}

	return TelegramConfig{
		Token:         strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
		BaseURL:       getEnvOrDefault("TELEGRAM_API_BASE_URL", "https://api.telegram.org"),
		Mode:          mode,
		WebhookSecret: strings.TrimSpace(os.Getenv("TELEGRAM_WEBHOOK_SECRET")),
		PollTimeout:   time.Duration(pollSeconds) * time.Second,
		SendRate:      sendRate,
		QueueSize:     queueSize,
		WorkerIdle:    time.Duration(idleSeconds) * time.Second,
	}, nil
}

// AIConfig 描述大模型相关配置，覆盖 Ark、OpenAI 与 Gemini 三种后端。
type AIConfig struct {
	// Ark (eino-ext)
	APIKey    string
	AccessKey string
	SecretKey string
	Model     string
	BaseURL   string
	Region    string

	// OpenAI
	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string

	// Gemini
	GoogleAPIKey string
	GeminiModel  string

	Temperature         float32
	AnalysisTemperature float32
	MaxTokens           *int
	Timeout             time.Duration
}

// ArkEnabled 表示是否提供了 Ark 必需的密钥。
func (c AIConfig) ArkEnabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// OpenAIEnabled 表示是否配置了 OpenAI 密钥。
func (c AIConfig) OpenAIEnabled() bool {
	return c.OpenAIKey != ""
}

// GeminiEnabled 表示是否配置了 Google 密钥。
func (c AIConfig) GeminiEnabled() bool {
	return c.GoogleAPIKey != ""
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("LLM_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}
	chatTemp := float32(0.7)
	if temperature != nil {
		chatTemp = float32(*temperature)
	}

	analysisTemperature, err := parseOptionalFloatEnv("ANALYSIS_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}
	analysisTemp := float32(0.2)
	if analysisTemperature != nil {
		analysisTemp = float32(*analysisTemperature)
	}

	maxTokens, err := parseOptionalIntEnv("LLM_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	timeoutSeconds := 60
	if override, err := parseOptionalIntEnv("LLM_TIMEOUT"); err != nil {
		return AIConfig{}, err
	} else if override != nil && *override > 0 {
		timeoutSeconds = *override
	}

	return AIConfig{
		APIKey:              strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:           strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:           strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:               strings.TrimSpace(os.Getenv("Model")),
		BaseURL:             getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:              getEnvOrDefault("ARK_REGION", "cn-beijing"),
		OpenAIKey:           strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:       strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		OpenAIModel:         getEnvOrDefault("OPENAI_MODEL", "gpt-4o"),
		GoogleAPIKey:        strings.TrimSpace(os.Getenv("GOOGLE_API_KEY")),
		GeminiModel:         getEnvOrDefault("GEMINI_MODEL", "gemini-pro"),
		Temperature:         chatTemp,
		AnalysisTemperature: analysisTemp,
		MaxTokens:           maxTokens,
		Timeout:             time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// 语音识别后端
const (
	STTWhisper    = "whisper"
	STTVolcengine = "volcengine"
)

// SpeechConfig 描述语音识别相关配置
type SpeechConfig struct {
	Provider     string
	WhisperModel string

	AppID          string
	AccessToken    string
	ConcurrentMode bool
	ASRLanguage    string
	Timeout        int
}

func loadSpeechConfig() (SpeechConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("STT_PROVIDER", STTWhisper))
	if provider != STTWhisper && provider != STTVolcengine {
		return SpeechConfig{}, fmt.Errorf("invalid STT_PROVIDER value %q", provider)
	}

	// 解析超时设置
	timeout, err := parseOptionalIntEnv("SPEECH_TIMEOUT")
	if err != nil {
		return SpeechConfig{}, err
	}
	timeoutSeconds := 30 // 默认30秒
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	concurrent, err := parseBoolEnv("SPEECH_CONCURRENT_MODE", false)
	if err != nil {
		return SpeechConfig{}, err
	}

	accessToken := strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN"))
	if accessToken == "" {
		accessToken = strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))
	}

	return SpeechConfig{
		Provider:       provider,
		WhisperModel:   getEnvOrDefault("WHISPER_MODEL", "whisper-1"),
		AppID:          strings.TrimSpace(os.Getenv("SPEECH_APP_ID")),
		AccessToken:    accessToken,
		ConcurrentMode: concurrent,
		ASRLanguage:    getEnvOrDefault("SPEECH_ASR_LANGUAGE", "ru-RU"),
		Timeout:        timeoutSeconds,
	}, nil
}

// JournalConfig 描述对话日志的落盘位置。
type JournalConfig struct {
	Dir         string
	DatabaseURL string
}

func loadJournalConfig() JournalConfig {
	return JournalConfig{
		Dir:         getEnvOrDefault("LOG_DIR", "logs/llm_experiments"),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
