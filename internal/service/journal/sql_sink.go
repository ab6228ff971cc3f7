package journal

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// ConversationRecord 是 SQL 中的一行收尾记录。
type ConversationRecord struct {
	ID                uint      `gorm:"primaryKey;autoIncrement"`
	CreatedAt         time.Time `gorm:"column:created_at;index"`
	UserID            int64     `gorm:"column:user_id;index;not null"`
	SessionID         string    `gorm:"column:session_id;size:64;not null"`
	SystemPrompt      string    `gorm:"column:system_prompt;type:text"`
	Successful        *bool     `gorm:"column:successful"`
	NaturalnessRating *int      `gorm:"column:naturalness_rating"`
	Analysis          string    `gorm:"column:analysis;type:text"`
	ConversationLog   string    `gorm:"column:conversation_log;type:mediumtext"`
}

func (ConversationRecord) TableName() string {
	return "conversation_records"
}

func recordFromEntry(entry Entry) ConversationRecord {
	return ConversationRecord{
		CreatedAt:         entry.Timestamp,
		UserID:            entry.UserID,
		SessionID:         entry.SessionID,
		SystemPrompt:      entry.SystemPrompt,
		Successful:        entry.SuccessRating,
		NaturalnessRating: entry.NaturalnessRating,
		Analysis:          entry.Analysis,
		ConversationLog:   entry.ConversationLog,
	}
}

// SQLSink 把记录写入 MySQL。
type SQLSink struct {
	db *gorm.DB
}

// NewSQLSink 连接 DATABASE_URL 并迁移表结构。
func NewSQLSink(dsn string) (*SQLSink, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}
	return NewSQLSinkWithDB(db)
}

// NewSQLSinkWithDB 复用已有连接。
func NewSQLSinkWithDB(db *gorm.DB) (*SQLSink, error) {
	if err := db.AutoMigrate(&ConversationRecord{}); err != nil {
		return nil, fmt.Errorf("migrate conversation_records: %w", err)
	}
	return &SQLSink{db: db}, nil
}

func (s *SQLSink) Name() string { return "sql" }

func (s *SQLSink) Write(ctx context.Context, entry Entry) error {
	record := recordFromEntry(entry)
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("insert conversation record: %w", err)
	}
	return nil
}
