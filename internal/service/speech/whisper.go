package speech

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// AudioClient 是 go-openai 中语音转写用到的方法。
type AudioClient interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

// WhisperTranscriber 通过 OpenAI Whisper 识别语音。
type WhisperTranscriber struct {
	client  AudioClient
	model   string
	timeout time.Duration
}

// NewWhisperTranscriber 创建 Whisper 识别器，model 为空时使用 whisper-1。
func NewWhisperTranscriber(client AudioClient, model string, timeout time.Duration) *WhisperTranscriber {
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperTranscriber{client: client, model: model, timeout: timeout}
}

func (w *WhisperTranscriber) Transcribe(ctx context.Context, audio []byte, format string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("no audio data to transcribe")
	}
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	if format == "" {
		format = "ogg"
	}

	// FilePath 仅用于推断格式，数据从 Reader 读取。
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: "voice." + format,
		Reader:   bytes.NewReader(audio),
	})
	if err != nil {
		return "", fmt.Errorf("whisper transcription: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	log.Printf("[speech] whisper transcribed %d bytes into %d chars", len(audio), len(text))
	return text, nil
}
