package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type messageRow struct {
	Seq       uint      `gorm:"primaryKey;autoIncrement"`
	ID        string    `gorm:"uniqueIndex;size:36;not null"`
	Author    string    `gorm:"size:50;not null"`
	Room      string    `gorm:"index:idx_messages_room_time;size:100;not null"`
	Kind      string    `gorm:"size:10;not null"`
	Text      string    `gorm:"type:text"`
	Media     string    `gorm:"type:text"`
	Timestamp time.Time `gorm:"index:idx_messages_room_time;not null"`
}

func (messageRow) TableName() string {
	return "messages"
}

func (r messageRow) toMessage() chat.Message {
	return chat.Message{
		ID:        r.ID,
		Author:    r.Author,
		Room:      r.Room,
		Kind:      chat.Kind(r.Kind),
		Text:      r.Text,
		Media:     r.Media,
		Timestamp: r.Timestamp,
	}
}

// Messages is the GORM-backed chat.MessageStore.
type Messages struct {
	db *gorm.DB
}

// NewMessages creates a message store on db.
func NewMessages(db *gorm.DB) *Messages {
	return &Messages{db: db}
}

// Save validates and inserts msg, assigning it an ID.
func (s *Messages) Save(ctx context.Context, msg chat.Message) (chat.Message, error) {
	if err := msg.Validate(); err != nil {
		return chat.Message{}, fmt.Errorf("invalid message: %w", err)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	row := messageRow{
		ID:        uuid.NewString(),
		Author:    msg.Author,
		Room:      msg.Room,
		Kind:      string(msg.Kind),
		Text:      msg.Text,
		Media:     msg.Media,
		Timestamp: msg.Timestamp,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return chat.Message{}, fmt.Errorf("failed to save message: %w", err)
	}
	return row.toMessage(), nil
}

// FindByRoom returns the newest limit messages of room, oldest first.
func (s *Messages) FindByRoom(ctx context.Context, room string, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		return []chat.Message{}, nil
	}

	var rows []messageRow
	err := s.db.WithContext(ctx).
		Where("room = ?", room).
		Order("timestamp DESC").
		Order("seq DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	messages := make([]chat.Message, len(rows))
	for i, row := range rows {
		messages[len(rows)-1-i] = row.toMessage()
	}
	return messages, nil
}
