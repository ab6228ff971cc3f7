package journal

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

var csvHeader = []string{
	"Timestamp", "User ID", "User UUID",
	"System Prompt",
	"Naturalness Rating", "Analysis Result", "Conversation Log",
}

// CSVSink 向 <dir>/conversations.csv 追加记录，首次创建时写入表头。
type CSVSink struct {
	mu   sync.Mutex
	path string
}

// NewCSVSink 确保目录存在并返回 sink。
func NewCSVSink(dir string) (*CSVSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir %s: %w", dir, err)
	}
	return &CSVSink{path: filepath.Join(dir, "conversations.csv")}, nil
}

func (s *CSVSink) Name() string { return "csv" }

// Path 返回 CSV 文件路径。
func (s *CSVSink) Path() string { return s.path }

func (s *CSVSink) Write(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, statErr := os.Stat(s.path)
	needHeader := errors.Is(statErr, fs.ErrNotExist)

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if needHeader {
		if err := w.Write(csvHeader); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
	}

	naturalness := ""
	if entry.NaturalnessRating != nil {
		naturalness = strconv.Itoa(*entry.NaturalnessRating)
	}
	if err := w.Write([]string{
		entry.Timestamp.Format(time.RFC3339Nano),
		strconv.FormatInt(entry.UserID, 10),
		entry.SessionID,
		entry.SystemPrompt,
		naturalness,
		entry.Analysis,
		entry.ConversationLog,
	}); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}

	w.Flush()
	return w.Error()
}

const maxTextLogSuffix = 1000

// TextLogSink 为每次收尾写一个 conversation_<user>_<unix>.log 文件。
type TextLogSink struct {
	dir string
}

// NewTextLogSink 确保目录存在并返回 sink。
func NewTextLogSink(dir string) (*TextLogSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir %s: %w", dir, err)
	}
	return &TextLogSink{dir: dir}, nil
}

func (s *TextLogSink) Name() string { return "textlog" }

func (s *TextLogSink) Write(_ context.Context, entry Entry) error {
	var b strings.Builder
	fmt.Fprintf(&b, "User ID: %d\n", entry.UserID)
	fmt.Fprintf(&b, "System Prompt: %s\n", entry.SystemPrompt)
	fmt.Fprintf(&b, "Rating: %s\n\n", successLabel(entry.SuccessRating))
	b.WriteString("Conversation Log:\n")
	b.WriteString(entry.ConversationLog)
	if entry.ConversationLog != "" {
		b.WriteString("\n")
	}

	f, path, err := s.create(entry)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// create 以 O_EXCL 打开新文件，同一秒内重名时追加 _1、_2 后缀，已有日志不会被覆盖。
func (s *TextLogSink) create(entry Entry) (*os.File, string, error) {
	base := fmt.Sprintf("conversation_%d_%d", entry.UserID, entry.Timestamp.Unix())
	for i := 0; i < maxTextLogSuffix; i++ {
		name := base + ".log"
		if i > 0 {
			name = fmt.Sprintf("%s_%d.log", base, i)
		}
		path := filepath.Join(s.dir, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("create %s: %w", path, err)
		}
		return f, path, nil
	}
	return nil, "", fmt.Errorf("no free log name for %s after %d attempts", base, maxTextLogSuffix)
}

func successLabel(rating *bool) string {
	switch {
	case rating == nil:
		return "Не оценено"
	case *rating:
		return "Успешно"
	default:
		return "Неуспешно"
	}
}
