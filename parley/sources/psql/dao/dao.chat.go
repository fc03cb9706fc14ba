package dao

import (
	"context"
	"errors"

	"parley/parley/sources/psql/models"
	"parley/parley/types"

	"gorm.io/gorm"
)

type ChatDAO struct {
	DB *gorm.DB
}

func NewChatDAO(db *gorm.DB) *ChatDAO {
	return &ChatDAO{DB: db}
}

func (dao *ChatDAO) CreateChat(ctx context.Context, userID, title string) (*types.Chat, error) {
	chat := models.Chat{UserID: userID, Title: title}
	if err := dao.DB.WithContext(ctx).Create(&chat).Error; err != nil {
		return nil, err
	}
	out := chat.ToType()
	return &out, nil
}

// ListChats returns the user's chats, newest first.
func (dao *ChatDAO) ListChats(ctx context.Context, userID string) ([]types.Chat, error) {
	var rows []models.Chat
	err := dao.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	chats := make([]types.Chat, 0, len(rows))
	for i := range rows {
		chats = append(chats, rows[i].ToType())
	}
	return chats, nil
}

// GetChat returns nil, nil when the chat does not exist or belongs to someone else.
func (dao *ChatDAO) GetChat(ctx context.Context, userID, chatID string) (*types.Chat, error) {
	var chat models.Chat
	err := dao.DB.WithContext(ctx).
		Where("id = ? AND user_id = ?", chatID, userID).
		First(&chat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := chat.ToType()
	return &out, nil
}

// DeleteChat removes the chat and every message under it. It reports false
// when no chat owned by userID matched.
func (dao *ChatDAO) DeleteChat(ctx context.Context, userID, chatID string) (bool, error) {
	deleted := false
	err := dao.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", chatID, userID).Delete(&models.Chat{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		deleted = true
		return tx.Where("chat_id = ?", chatID).Delete(&models.Message{}).Error
	})
	return deleted, err
}

// RenameChat sets the title only while it still equals from, so a rename that
// lands after deletion or after another rename is a no-op.
func (dao *ChatDAO) RenameChat(ctx context.Context, userID, chatID, from, to string) (bool, error) {
	res := dao.DB.WithContext(ctx).
		Model(&models.Chat{}).
		Where("id = ? AND user_id = ? AND title = ?", chatID, userID, from).
		Update("title", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
