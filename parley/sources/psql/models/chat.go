package models

import (
	"time"

	"parley/parley/types"

	"gorm.io/gorm"
)

type Chat struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	UserID    string    `gorm:"type:varchar(64);not null;index:idx_chats_user_created,priority:1"`
	Title     string    `gorm:"type:varchar(255);not null;default:'New Chat'"`
	CreatedAt time.Time `gorm:"not null;index:idx_chats_user_created,priority:2"`
	Messages  []Message `gorm:"foreignKey:ChatID;constraint:OnDelete:CASCADE"`
}

func (c *Chat) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = types.NewID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return nil
}

func (c *Chat) ToType() types.Chat {
	return types.Chat{ID: c.ID, UserID: c.UserID, Title: c.Title, CreatedAt: c.CreatedAt}
}

type Message struct {
	ID        string     `gorm:"type:varchar(36);primaryKey"`
	ChatID    string     `gorm:"type:varchar(36);not null;index:idx_messages_chat_created,priority:1"`
	Role      types.Role `gorm:"type:varchar(16);not null"`
	Content   string     `gorm:"type:text;not null"`
	CreatedAt time.Time  `gorm:"not null;index:idx_messages_chat_created,priority:2"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = types.NewID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return nil
}

func (m *Message) ToType() types.Message {
	return types.Message{ID: m.ID, ChatID: m.ChatID, Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt}
}
