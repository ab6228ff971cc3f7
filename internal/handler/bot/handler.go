package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zhouzirui/dialog-lab/bot/internal/config"
	"github.com/zhouzirui/dialog-lab/bot/internal/metrics"
	chatService "github.com/zhouzirui/dialog-lab/bot/internal/service/chat"
	"github.com/zhouzirui/dialog-lab/bot/internal/service/speech"
	"github.com/zhouzirui/dialog-lab/bot/internal/telegram"
)

const maxVoiceBytes = 20 * 1024 * 1024

// Messenger 是处理器用到的 Bot API 调用。
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, replyTo int64, markup telegram.Keyboard) (int64, error)
	SendLongMessage(ctx context.Context, chatID int64, text string, replyTo int64, markup telegram.Keyboard) error
	EditMessageText(ctx context.Context, chatID, messageID int64, text string) error
	AnswerCallbackQuery(ctx context.Context, callbackID string) error
	GetFile(ctx context.Context, fileID string) (telegram.File, error)
	DownloadFile(ctx context.Context, filePath string, maxBytes int64) ([]byte, error)
}

// Handler 把 Telegram 更新翻译成会话生命周期操作。
type Handler struct {
	chatSvc     *chatService.Service
	api         Messenger
	transcriber speech.Transcriber
	finalizer   chatService.Finalizer
	texts       config.BotConfig

	mu             sync.Mutex
	awaitingPrompt map[int64]bool
}

// New 创建处理器。transcriber 为 nil 时语音消息按识别失败处理。
func New(chatSvc *chatService.Service, api Messenger, transcriber speech.Transcriber, finalizer chatService.Finalizer, texts config.BotConfig) *Handler {
	return &Handler{
		chatSvc:        chatSvc,
		api:            api,
		transcriber:    transcriber,
		finalizer:      finalizer,
		texts:          texts,
		awaitingPrompt: make(map[int64]bool),
	}
}

// Handle 同步处理一条更新。
func (h *Handler) Handle(ctx context.Context, update telegram.Update) {
	switch {
	case update.CallbackQuery != nil:
		metrics.RecordUpdate("callback")
		h.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.From != nil && update.Message.Chat != nil:
		h.handleMessage(ctx, update.Message)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *telegram.Message) {
	userID := msg.From.ID

	if msg.Voice != nil || msg.Audio != nil {
		metrics.RecordUpdate("voice")
		h.handleVoice(ctx, msg)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if h.takeAwaitingPrompt(userID) {
		metrics.RecordUpdate("prompt")
		h.savePrompt(ctx, msg, text)
		return
	}

	if cmd, _ := splitCommand(text); normalizeSlashCommand(cmd) != "" {
		metrics.RecordUpdate("command")
		h.handleCommand(ctx, msg, normalizeSlashCommand(cmd))
		return
	}

	switch text {
	case ButtonStartChat:
		metrics.RecordUpdate("button")
		h.startChat(ctx, msg)
	case ButtonEndChat:
		metrics.RecordUpdate("button")
		h.endChat(ctx, msg)
	case ButtonSetPrompt:
		metrics.RecordUpdate("button")
		h.askPrompt(ctx, msg)
	default:
		metrics.RecordUpdate("text")
		h.converse(ctx, msg, text, textStartChatFirst, textLLMError)
	}
}

func (h *Handler) handleCommand(ctx context.Context, msg *telegram.Message, cmd string) {
	userID := msg.From.ID

	switch cmd {
	case "/start":
		h.chatSvc.StartConversation(ctx, userID, "")
		h.recordSession("start")
		h.reply(ctx, msg, h.texts.WelcomeMessage, mainKeyboard())
	case "/check_prompt":
		prompt, ok := h.chatSvc.GetPrompt(userID)
		if !ok {
			h.reply(ctx, msg, h.texts.PromptNotSetMessage, nil)
			return
		}
		h.reply(ctx, msg, textCurrentPrompt+prompt, nil)
	case "/set_prompt":
		h.askPrompt(ctx, msg)
	case "/start_chat":
		h.startChat(ctx, msg)
	case "/end_chat":
		h.endChat(ctx, msg)
	case "/reset":
		if err := h.chatSvc.ResetConversation(ctx, userID); err != nil {
			h.reply(ctx, msg, h.texts.NoActiveChatMessage, nil)
			return
		}
		h.recordSession("reset")
		h.reply(ctx, msg, textHistoryReset, nil)
	case "/voice_input":
		h.reply(ctx, msg, h.texts.VoiceInputComingSoon, nil)
	case "/cancel":
		// 没有待设置的提示词时无需处理。
	default:
		h.reply(ctx, msg, textUnknownCommand, nil)
	}
}

func (h *Handler) askPrompt(ctx context.Context, msg *telegram.Message) {
	current, ok := h.chatSvc.GetPrompt(msg.From.ID)
	if !ok {
		current = h.texts.DefaultSystemPrompt
	}

	h.setAwaitingPrompt(msg.From.ID)
	h.reply(ctx, msg, textCurrentPrompt+current+"\n\n"+h.texts.SetPromptMessage, nil)
}

func (h *Handler) savePrompt(ctx context.Context, msg *telegram.Message, text string) {
	if strings.HasPrefix(text, "/") {
		h.reply(ctx, msg, textPromptCancelled, nil)
		return
	}

	snap, err := h.chatSvc.SetPrompt(ctx, msg.From.ID, text)
	if err != nil {
		log.Printf("[bot] set prompt failed for user=%d: %v", msg.From.ID, err)
		h.reply(ctx, msg, textPromptCancelled, nil)
		return
	}
	h.recordSession("prompt")
	h.reply(ctx, msg, textPromptUpdated+snap.SystemPrompt, nil)
}

func (h *Handler) startChat(ctx context.Context, msg *telegram.Message) {
	h.chatSvc.StartConversation(ctx, msg.From.ID, "")
	h.recordSession("start")
	h.reply(ctx, msg, h.texts.ChatStartedMessage, nil)
	h.send(ctx, msg.Chat.ID, h.texts.GreetingMessage, nil)
}

func (h *Handler) endChat(ctx context.Context, msg *telegram.Message) {
	if _, err := h.chatSvc.EndConversation(ctx, msg.From.ID); err != nil {
		h.reply(ctx, msg, h.texts.NoActiveChatMessage, nil)
		return
	}
	h.recordSession("end")
	h.reply(ctx, msg, h.texts.ChatEndedMessage, naturalnessKeyboard())
}

// converse 把文字交给会话，并把模型回复发回用户。
func (h *Handler) converse(ctx context.Context, msg *telegram.Message, text, inactiveText, failureText string) {
	start := time.Now()
	reply, err := h.chatSvc.ReceiveMessage(ctx, msg.From.ID, text)
	switch {
	case errors.Is(err, chatService.ErrNoActiveSession):
		h.reply(ctx, msg, inactiveText, nil)
	case err != nil:
		metrics.RecordDownstream("llm", err, time.Since(start))
		log.Printf("[bot] reply failed for user=%d: %v", msg.From.ID, err)
		h.reply(ctx, msg, failureText, nil)
	default:
		metrics.RecordDownstream("llm", nil, time.Since(start))
		h.reply(ctx, msg, reply, nil)
	}
}

func (h *Handler) handleVoice(ctx context.Context, msg *telegram.Message) {
	if !h.chatSvc.IsActive(msg.From.ID) {
		h.reply(ctx, msg, textStartChatFirstVoice, nil)
		return
	}

	voice := msg.Voice
	format := "ogg"
	if voice == nil {
		voice = msg.Audio
		format = audioFormat(voice.MimeType)
	}

	audio, err := h.download(ctx, voice.FileID)
	if err != nil {
		log.Printf("[bot] voice download failed for user=%d: %v", msg.From.ID, err)
		h.reply(ctx, msg, textVoiceError, nil)
		return
	}

	text, err := h.transcribe(ctx, audio, format)
	if err != nil {
		log.Printf("[bot] transcription failed for user=%d: %v", msg.From.ID, err)
		h.reply(ctx, msg, textTranscribeFailed, nil)
		return
	}

	h.reply(ctx, msg, textTranscribed+text, nil)
	h.converse(ctx, msg, text, textStartChatFirstVoice, textVoiceError)
}

func (h *Handler) download(ctx context.Context, fileID string) ([]byte, error) {
	file, err := h.api.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return h.api.DownloadFile(ctx, file.FilePath, maxVoiceBytes)
}

func (h *Handler) transcribe(ctx context.Context, audio []byte, format string) (string, error) {
	if h.transcriber == nil {
		return "", fmt.Errorf("%w: no speech backend configured", chatService.ErrDownstreamUnavailable)
	}
	start := time.Now()
	text, err := h.transcriber.Transcribe(ctx, audio, format)
	metrics.RecordDownstream("stt", err, time.Since(start))
	if err != nil {
		return "", fmt.Errorf("%w: %w", chatService.ErrDownstreamUnavailable, err)
	}
	return text, nil
}

func (h *Handler) handleCallback(ctx context.Context, cb *telegram.CallbackQuery) {
	if err := h.api.AnswerCallbackQuery(ctx, cb.ID); err != nil {
		log.Printf("[bot] answerCallbackQuery failed: %v", err)
	}
	if cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	userID := cb.From.ID

	var (
		header    string
		followUp  bool
		ratingErr error
	)
	switch {
	case cb.Data == CallbackRatingSuccessful || cb.Data == CallbackRatingUnsuccessful:
		successful := cb.Data == CallbackRatingSuccessful
		ratingErr = h.chatSvc.SetRating(ctx, userID, successful)
		header = textRatedUnsuccessful
		if successful {
			header = textRatedSuccessful
		}
	case strings.HasPrefix(cb.Data, CallbackNaturalnessPrefix):
		rating, err := strconv.Atoi(strings.TrimPrefix(cb.Data, CallbackNaturalnessPrefix))
		if err != nil {
			log.Printf("[bot] malformed naturalness callback %q", cb.Data)
			return
		}
		ratingErr = h.chatSvc.SetNaturalnessRating(ctx, userID, rating)
		header = fmt.Sprintf(textNaturalnessThanks, rating)
		followUp = true
	default:
		log.Printf("[bot] unknown callback data %q", cb.Data)
		return
	}

	if ratingErr != nil {
		log.Printf("[bot] rating rejected for user=%d: %v", userID, ratingErr)
		return
	}
	h.recordSession("rating")

	analysis := h.finalize(ctx, userID)
	h.editWithOverflow(ctx, cb.Message.Chat.ID, cb.Message.MessageID, header+textAnalysisResult+analysis)

	if followUp {
		h.send(ctx, cb.Message.Chat.ID, textRateSuccess, ratingKeyboard())
	}
}

func (h *Handler) finalize(ctx context.Context, userID int64) string {
	if h.finalizer == nil {
		return ""
	}
	start := time.Now()
	analysis, err := h.chatSvc.Finalize(ctx, userID, h.finalizer)
	metrics.RecordDownstream("journal", err, time.Since(start))
	if err != nil {
		log.Printf("[bot] finalize failed for user=%d: %v", userID, err)
	}
	return analysis
}

// editWithOverflow 编辑原消息，超长部分作为新消息继续发送。
func (h *Handler) editWithOverflow(ctx context.Context, chatID, messageID int64, text string) {
	chunks := telegram.SplitMessage(text, telegram.MaxMessageChars)
	if err := h.api.EditMessageText(ctx, chatID, messageID, chunks[0]); err != nil {
		log.Printf("[bot] editMessageText failed: %v", err)
	}
	for _, chunk := range chunks[1:] {
		h.send(ctx, chatID, chunk, nil)
	}
}

func (h *Handler) reply(ctx context.Context, msg *telegram.Message, text string, markup telegram.Keyboard) {
	if err := h.api.SendLongMessage(ctx, msg.Chat.ID, text, msg.MessageID, markup); err != nil {
		log.Printf("[bot] reply to user=%d failed: %v", msg.From.ID, err)
	}
}

func (h *Handler) send(ctx context.Context, chatID int64, text string, markup telegram.Keyboard) {
	if err := h.api.SendLongMessage(ctx, chatID, text, 0, markup); err != nil {
		log.Printf("[bot] send to chat=%d failed: %v", chatID, err)
	}
}

func (h *Handler) recordSession(event string) {
	metrics.RecordSessionEvent(event)
	metrics.SetActiveSessions(h.chatSvc.Registry().CountActive())
}

func (h *Handler) setAwaitingPrompt(userID int64) {
	h.mu.Lock()
	h.awaitingPrompt[userID] = true
	h.mu.Unlock()
}

// takeAwaitingPrompt 返回并清除用户的待设置状态。
func (h *Handler) takeAwaitingPrompt(userID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.awaitingPrompt[userID] {
		return false
	}
	delete(h.awaitingPrompt, userID)
	return true
}

func splitCommand(text string) (cmd string, rest string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ""
	}
	i := strings.IndexAny(text, " \n\t")
	if i == -1 {
		return text, ""
	}
	return text[:i], strings.TrimSpace(text[i:])
}

// normalizeSlashCommand 兼容 "/cmd@BotName" 写法。
func normalizeSlashCommand(cmd string) string {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" || !strings.HasPrefix(cmd, "/") {
		return ""
	}
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd)
}

func audioFormat(mime string) string {
	switch {
	case strings.Contains(mime, "mpeg"):
		return "mp3"
	case strings.Contains(mime, "wav"):
		return "wav"
	case strings.Contains(mime, "mp4"), strings.Contains(mime, "m4a"):
		return "m4a"
	default:
		return "ogg"
	}
}
