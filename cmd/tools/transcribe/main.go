package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/dialog-lab/bot/internal/config"
	"github.com/zhouzirui/dialog-lab/bot/internal/service/speech"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := newTranscribeCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newTranscribeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Run an audio file through the configured speech-to-text backend.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			provider, _ := cmd.Flags().GetString("provider")
			timeout, _ := cmd.Flags().GetDuration("timeout")
			return runTranscribe(args[0], format, provider, timeout)
		},
	}
	cmd.Flags().String("format", "", "音频格式，默认取文件扩展名")
	cmd.Flags().String("provider", "", "覆盖 STT_PROVIDER (whisper 或 volcengine)")
	cmd.Flags().Duration("timeout", 45*time.Second, "请求超时时间")
	return cmd
}

func runTranscribe(audioPath, format, provider string, timeout time.Duration) error {
	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("配置加载失败: %w", err)
	}
	if provider != "" {
		cfg.Speech.Provider = strings.ToLower(provider)
	}

	transcriber, err := speech.New(cfg.Speech, cfg.AI)
	if err != nil {
		return fmt.Errorf("识别器初始化失败: %w", err)
	}

	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return fmt.Errorf("读取音频失败: %w", err)
	}

	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(audioPath)), ".")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	text, err := transcriber.Transcribe(ctx, audio, format)
	if err != nil {
		return fmt.Errorf("识别失败: %w", err)
	}
	log.Printf("provider=%s bytes=%d elapsed=%s", cfg.Speech.Provider, len(audio), time.Since(start).Round(time.Millisecond))
	fmt.Println(text)
	return nil
}
