package speech

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zhouzirui/dialog-lab/bot/internal/config"
	"github.com/zhouzirui/dialog-lab/bot/internal/service/ai"
)

// ErrEmptyTranscript 表示识别成功但没有得到任何文字。
var ErrEmptyTranscript = errors.New("empty transcript")

// Transcriber 把一段语音转换成文字。
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, format string) (string, error)
}

// New 按 STT_PROVIDER 构造识别器，whisper 复用 OpenAI 的密钥。
func New(speechCfg config.SpeechConfig, aiCfg config.AIConfig) (Transcriber, error) {
	timeout := time.Duration(speechCfg.Timeout) * time.Second

	switch speechCfg.Provider {
	case config.STTVolcengine:
		return NewVolcengineTranscriber(VolcengineOptions{
			AppID:          speechCfg.AppID,
			AccessToken:    speechCfg.AccessToken,
			ConcurrentMode: speechCfg.ConcurrentMode,
			Language:       speechCfg.ASRLanguage,
			Timeout:        timeout,
		})
	case config.STTWhisper, "":
		if !aiCfg.OpenAIEnabled() {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for whisper transcription")
		}
		client := ai.NewOpenAIClient(aiCfg.OpenAIKey, aiCfg.OpenAIBaseURL)
		return NewWhisperTranscriber(client, speechCfg.WhisperModel, timeout), nil
	default:
		return nil, fmt.Errorf("unknown speech provider %q", speechCfg.Provider)
	}
}
