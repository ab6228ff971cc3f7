package journal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/zhouzirui/dialog-lab/bot/internal/model/chat"
)

// UnableToAnalyze 是分析失败时返回给用户并写入日志的固定文本。
const UnableToAnalyze = "Невозможно оценить естественность разговора"

// Analyzer 对渲染后的对话给出自然度评价。
type Analyzer interface {
	Analyze(ctx context.Context, conversationLog, systemPrompt string) (string, error)
}

// Entry 是一次收尾产生的日志记录。
type Entry struct {
	Timestamp         time.Time
	UserID            int64
	SessionID         string
	SystemPrompt      string
	SuccessRating     *bool
	NaturalnessRating *int
	Analysis          string
	ConversationLog   string
}

// Sink 持久化一条 Entry。
type Sink interface {
	Name() string
	Write(ctx context.Context, entry Entry) error
}

// Journal 负责分析对话并写入所有配置的 sink。
type Journal struct {
	analyzer Analyzer
	sinks    []Sink
	now      func() time.Time
}

// New 创建 Journal，analyzer 为 nil 时直接使用 UnableToAnalyze。
func New(analyzer Analyzer, sinks ...Sink) *Journal {
	return &Journal{
		analyzer: analyzer,
		sinks:    sinks,
		now:      time.Now,
	}
}

// AnalyzeAndPersist 对快照做分析并写入每个 sink。分析失败不会阻止写入；
// 任一 sink 失败时返回汇总错误，同时仍返回分析文本。
func (j *Journal) AnalyzeAndPersist(ctx context.Context, snapshot chat.Snapshot) (string, error) {
	analysis := j.analyze(ctx, snapshot)

	entry := Entry{
		Timestamp:         j.now(),
		UserID:            snapshot.UserID,
		SessionID:         snapshot.SessionID,
		SystemPrompt:      snapshot.SystemPrompt,
		SuccessRating:     snapshot.SuccessRating,
		NaturalnessRating: snapshot.NaturalnessRating,
		Analysis:          analysis,
		ConversationLog:   snapshot.Log,
	}

	var errs []error
	for _, sink := range j.sinks {
		if err := sink.Write(ctx, entry); err != nil {
			log.Printf("[journal] sink %s failed for user=%d: %v", sink.Name(), snapshot.UserID, err)
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}

	log.Printf("[journal] persisted session=%s user=%d sinks=%d failed=%d", snapshot.SessionID, snapshot.UserID, len(j.sinks), len(errs))
	return analysis, errors.Join(errs...)
}

func (j *Journal) analyze(ctx context.Context, snapshot chat.Snapshot) string {
	if j.analyzer == nil {
		return UnableToAnalyze
	}

	analysis, err := j.analyzer.Analyze(ctx, snapshot.Log, snapshot.SystemPrompt)
	if err != nil {
		log.Printf("[journal] analysis failed for user=%d: %v", snapshot.UserID, err)
		return UnableToAnalyze
	}
	return analysis
}
