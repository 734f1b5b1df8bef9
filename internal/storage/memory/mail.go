package memory

import (
	"context"
	"sort"
	"time"

	"furrydomains/backend/internal/domain"
	"furrydomains/backend/internal/storage"
)

func cloneMailbox(m *domain.Mailbox) *domain.Mailbox {
	cp := *m
	cp.AllowedSenders = append([]string(nil), m.AllowedSenders...)
	return &cp
}

func cloneMessage(m *domain.Message) *domain.Message {
	cp := *m
	cp.Attachments = append([]*domain.Attachment(nil), m.Attachments...)
	return &cp
}

// CreateMailbox 新建收件箱，地址唯一。
func (s *Store) CreateMailbox(_ context.Context, mailbox *domain.Mailbox) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[mailbox.Email]; exists {
		return storage.ErrDuplicate
	}
	if mailbox.CreatedAt.IsZero() {
		mailbox.CreatedAt = time.Now().UTC()
	}
	s.mailboxes[mailbox.ID] = cloneMailbox(mailbox)
	s.byEmail[mailbox.Email] = mailbox.ID
	return nil
}

// GetMailbox 根据 ID 获取收件箱。
func (s *Store) GetMailbox(_ context.Context, id string) (*domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mailbox, ok := s.mailboxes[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneMailbox(mailbox), nil
}

// GetMailboxByEmail 根据完整地址获取收件箱。
func (s *Store) GetMailboxByEmail(ctx context.Context, email string) (*domain.Mailbox, error) {
	s.mu.RLock()
	id, ok := s.byEmail[email]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return s.GetMailbox(ctx, id)
}

// ListMailboxesByUser 返回租户的全部收件箱。
func (s *Store) ListMailboxesByUser(_ context.Context, userID string) ([]*domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Mailbox, 0)
	for _, mb := range s.mailboxes {
		if mb.UserID == userID {
			result = append(result, cloneMailbox(mb))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// DeleteMailbox 删除收件箱及其邮件。
func (s *Store) DeleteMailbox(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mailbox, ok := s.mailboxes[id]
	if !ok {
		return storage.ErrNotFound
	}
	delete(s.byEmail, mailbox.Email)
	delete(s.mailboxes, id)
	for msgID, msg := range s.messages {
		if msg.InboxID == id {
			delete(s.messages, msgID)
		}
	}
	return nil
}

// SaveMessage 新建或覆盖邮件。
func (s *Store) SaveMessage(_ context.Context, message *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	s.messages[message.ID] = cloneMessage(message)
	return nil
}

// GetMessage 根据 ID 获取邮件。
func (s *Store) GetMessage(_ context.Context, id string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneMessage(msg), nil
}

// ListMessages 返回文件夹内的邮件，最新的在前。
func (s *Store) ListMessages(_ context.Context, inboxID string, folder domain.MessageFolder, limit int) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Message, 0)
	for _, msg := range s.messages {
		if msg.InboxID == inboxID && msg.InFolder(folder) {
			result = append(result, cloneMessage(msg))
		}
	}
	sortMessagesNewestFirst(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ListMessagesByInboxes 返回多个收件箱的全部邮件。
func (s *Store) ListMessagesByInboxes(_ context.Context, inboxIDs []string) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(inboxIDs))
	for _, id := range inboxIDs {
		wanted[id] = true
	}
	result := make([]*domain.Message, 0)
	for _, msg := range s.messages {
		if wanted[msg.InboxID] {
			result = append(result, cloneMessage(msg))
		}
	}
	sortMessagesNewestFirst(result)
	return result, nil
}

// DeleteMessage 永久删除邮件。
func (s *Store) DeleteMessage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.messages, id)
	return nil
}

func sortMessagesNewestFirst(messages []*domain.Message) {
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].CreatedAt.After(messages[j].CreatedAt)
	})
}
