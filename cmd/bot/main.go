package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/dialog-lab/bot/internal/config"
	"github.com/zhouzirui/dialog-lab/bot/internal/handler"
	"github.com/zhouzirui/dialog-lab/bot/internal/handler/bot"
	"github.com/zhouzirui/dialog-lab/bot/internal/metrics"
	"github.com/zhouzirui/dialog-lab/bot/internal/service/ai"
	"github.com/zhouzirui/dialog-lab/bot/internal/service/chat"
	"github.com/zhouzirui/dialog-lab/bot/internal/service/journal"
	"github.com/zhouzirui/dialog-lab/bot/internal/service/speech"
	"github.com/zhouzirui/dialog-lab/bot/internal/telegram"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dialog-bot",
		Short: "Telegram bot for LLM conversation experiments.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			webhookURL, _ := cmd.Flags().GetString("webhook-url")
			return run(cmd.Context(), envFile, webhookURL)
		},
	}
	cmd.Flags().String("env-file", ".env", "Path to .env file; missing file falls back to process env.")
	cmd.Flags().String("webhook-url", "", "Public URL registered with setWebhook in webhook mode (empty keeps the current registration).")
	return cmd
}

func run(parent context.Context, envFile, webhookURL string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(envFile); err != nil {
		log.Printf("warning: failed to load %s: %v", envFile, err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if cfg.Telegram.Token == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}

	metrics.InitMetrics()

	chatModel, provider, err := ai.NewChatModel(ctx, cfg.AI, cfg.Bot.LLMProvider, cfg.AI.Temperature)
	if err != nil {
		return fmt.Errorf("init chat model: %w", err)
	}
	llm, err := ai.NewService(ctx, chatModel, provider, cfg.AI.Timeout)
	if err != nil {
		return fmt.Errorf("init llm service: %w", err)
	}

	analysisModel, analysisProvider, err := ai.NewChatModel(ctx, cfg.AI, cfg.Bot.AnalysisLLMProvider, cfg.AI.AnalysisTemperature)
	if err != nil {
		return fmt.Errorf("init analysis model: %w", err)
	}
	analyzer, err := ai.NewAnalyzer(ctx, analysisModel, analysisProvider, cfg.Bot.ConversationAnalysisPrompt, cfg.AI.Timeout)
	if err != nil {
		return fmt.Errorf("init analyzer: %w", err)
	}
	log.Printf("LLM ready: chat=%s analysis=%s", provider, analysisProvider)

	sinks, err := buildSinks(cfg.Journal)
	if err != nil {
		return err
	}
	finalizer := journal.New(analyzer, sinks...)

	transcriber, err := speech.New(cfg.Speech, cfg.AI)
	if err != nil {
		log.Printf("warning: speech recognition disabled: %v", err)
		transcriber = nil
	}

	chatSvc := chat.NewService(chat.NewRegistry(), llm, chat.Options{
		DefaultPrompt:              cfg.Bot.DefaultSystemPrompt,
		ClearHistoryOnPromptChange: cfg.Bot.ClearHistoryOnPromptChange,
	})

	httpClient := &http.Client{Timeout: cfg.Telegram.PollTimeout + 15*time.Second}
	api := telegram.NewClient(httpClient, cfg.Telegram.BaseURL, cfg.Telegram.Token, cfg.Telegram.SendRate)

	botHandler := bot.New(chatSvc, api, transcriber, finalizer, cfg.Bot)
	dispatcher := bot.NewDispatcher(ctx, botHandler, cfg.Telegram.QueueSize, cfg.Telegram.WorkerIdle)
	defer dispatcher.Close()

	var sink bot.UpdateSink
	if cfg.Telegram.Mode == config.ModeWebhook {
		sink = dispatcher
	}
	router := handler.NewRouter(chatSvc, handler.RouterOptions{
		Sink:          sink,
		WebhookSecret: cfg.Telegram.WebhookSecret,
		AdminToken:    cfg.Server.AdminToken,
	})
	if cfg.Server.AdminToken == "" {
		log.Println("ADMIN_TOKEN not set, session inspection API disabled")
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("dialog bot listening on %s (mode=%s)", srv.Addr, cfg.Telegram.Mode)
		return runServer(gctx, srv)
	})
	g.Go(func() error {
		return reportActiveSessions(gctx, chatSvc.Registry())
	})

	switch cfg.Telegram.Mode {
	case config.ModeWebhook:
		if webhookURL != "" {
			if err := api.SetWebhook(ctx, webhookURL, cfg.Telegram.WebhookSecret); err != nil {
				return fmt.Errorf("register webhook: %w", err)
			}
			log.Printf("webhook registered at %s", webhookURL)
		}
	default:
		if err := api.DeleteWebhook(ctx); err != nil {
			log.Printf("warning: deleteWebhook failed: %v", err)
		}
		poller := telegram.NewPoller(api, cfg.Telegram.PollTimeout)
		g.Go(func() error {
			return poller.Run(gctx, func(update telegram.Update) {
				_ = dispatcher.Dispatch(update)
			})
		})
	}

	return g.Wait()
}

func buildSinks(cfg config.JournalConfig) ([]journal.Sink, error) {
	csvSink, err := journal.NewCSVSink(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("init csv journal: %w", err)
	}
	textSink, err := journal.NewTextLogSink(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("init text journal: %w", err)
	}
	sinks := []journal.Sink{csvSink, textSink}
	log.Printf("conversation journal: %s", csvSink.Path())

	if cfg.DatabaseURL != "" {
		sqlSink, err := journal.NewSQLSink(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init sql journal: %w", err)
		}
		sinks = append(sinks, sqlSink)
		log.Println("conversation journal mirrored to database")
	}
	return sinks, nil
}

func reportActiveSessions(ctx context.Context, registry *chat.Registry) error {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			metrics.SetActiveSessions(registry.CountActive())
		}
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
