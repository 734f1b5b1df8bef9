package postgres

import (
	"context"

	"gorm.io/gorm"

	"furrydomains/backend/internal/domain"
	"furrydomains/backend/internal/storage"
)

// CreateMailbox 新建收件箱
func (s *Store) CreateMailbox(ctx context.Context, mailbox *domain.Mailbox) error {
	return translate(s.db.WithContext(ctx).Create(mailbox).Error)
}

// GetMailbox 根据 ID 获取收件箱
func (s *Store) GetMailbox(ctx context.Context, id string) (*domain.Mailbox, error) {
	var mailbox domain.Mailbox
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&mailbox).Error; err != nil {
		return nil, translate(err)
	}
	return &mailbox, nil
}

// GetMailboxByEmail 根据完整地址获取收件箱
func (s *Store) GetMailboxByEmail(ctx context.Context, email string) (*domain.Mailbox, error) {
	var mailbox domain.Mailbox
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&mailbox).Error; err != nil {
		return nil, translate(err)
	}
	return &mailbox, nil
}

// ListMailboxesByUser 返回租户的全部收件箱
func (s *Store) ListMailboxesByUser(ctx context.Context, userID string) ([]*domain.Mailbox, error) {
	var mailboxes []*domain.Mailbox
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC").Find(&mailboxes).Error
	return mailboxes, translate(err)
}

// DeleteMailbox 在事务中删除收件箱及其邮件
func (s *Store) DeleteMailbox(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("inbox_id = ?", id).Delete(&domain.Message{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&domain.Mailbox{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return storage.ErrNotFound
		}
		return nil
	})
}

// SaveMessage 新建或覆盖邮件
func (s *Store) SaveMessage(ctx context.Context, message *domain.Message) error {
	return translate(s.db.WithContext(ctx).Save(message).Error)
}

// GetMessage 根据 ID 获取邮件
func (s *Store) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	var message domain.Message
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&message).Error; err != nil {
		return nil, translate(err)
	}
	return &message, nil
}

// ListMessages 返回文件夹内的邮件，最新的在前
func (s *Store) ListMessages(ctx context.Context, inboxID string, folder domain.MessageFolder, limit int) ([]*domain.Message, error) {
	query := s.db.WithContext(ctx).Where("inbox_id = ?", inboxID)
	switch folder {
	case domain.FolderDeleted:
		query = query.Where("deleted = ?", true)
	case domain.FolderSent:
		query = query.Where("deleted = ? AND sent = ?", false, true)
	default:
		query = query.Where("deleted = ? AND sent = ?", false, false)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var messages []*domain.Message
	err := query.Order("created_at DESC").Find(&messages).Error
	return messages, translate(err)
}

// ListMessagesByInboxes 返回多个收件箱的全部邮件
func (s *Store) ListMessagesByInboxes(ctx context.Context, inboxIDs []string) ([]*domain.Message, error) {
	if len(inboxIDs) == 0 {
		return []*domain.Message{}, nil
	}
	var messages []*domain.Message
	err := s.db.WithContext(ctx).Where("inbox_id IN ?", inboxIDs).Order("created_at DESC").Find(&messages).Error
	return messages, translate(err)
}

// DeleteMessage 永久删除邮件
func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Message{})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
