package dao

import (
	"context"

	"parley/parley/sources/psql/models"
	"parley/parley/types"

	"gorm.io/gorm"
)

type MessageDAO struct {
	DB *gorm.DB
}

func NewMessageDAO(db *gorm.DB) *MessageDAO {
	return &MessageDAO{DB: db}
}

func (dao *MessageDAO) SaveMessage(ctx context.Context, chatID string, role types.Role, content string) (*types.Message, error) {
	if !role.Valid() {
		return nil, types.ErrInvalidRole
	}
	msg := models.Message{ChatID: chatID, Role: role, Content: content}
	if err := dao.DB.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, err
	}
	out := msg.ToType()
	return &out, nil
}

// ListMessages returns the chat's messages in chronological order.
func (dao *MessageDAO) ListMessages(ctx context.Context, chatID string) ([]types.Message, error) {
	var rows []models.Message
	err := dao.DB.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	msgs := make([]types.Message, 0, len(rows))
	for i := range rows {
		msgs = append(msgs, rows[i].ToType())
	}
	return msgs, nil
}

func (dao *MessageDAO) DeleteMessage(ctx context.Context, chatID, messageID string) (bool, error) {
	res := dao.DB.WithContext(ctx).
		Where("id = ? AND chat_id = ?", messageID, chatID).
		Delete(&models.Message{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Store bundles the chat and message DAOs behind one value.
type Store struct {
	*ChatDAO
	*MessageDAO
}

func NewStore(db *gorm.DB) *Store {
	return &Store{ChatDAO: NewChatDAO(db), MessageDAO: NewMessageDAO(db)}
}
