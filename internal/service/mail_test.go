package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"furrydomains/backend/internal/domain"
	"furrydomains/backend/internal/mail"
	"furrydomains/backend/internal/security"
	"furrydomains/backend/internal/storage/memory"
)

// MockTransport 模拟发信通道
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Send(ctx context.Context, msg *mail.OutboundMessage) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

// recordingNotifier 记录新邮件通知
type recordingNotifier struct {
	users []string
}

func (n *recordingNotifier) NotifyNewMail(_ context.Context, userID string, _ *domain.Message) {
	n.users = append(n.users, userID)
}

type mailFixture struct {
	svc       *MailService
	store     *memory.Store
	transport *MockTransport
	blobs     *memoryBlobs
	notifier  *recordingNotifier
}

func newMailFixture(t *testing.T) *mailFixture {
	t.Helper()
	f := &mailFixture{
		store:     memory.NewStore(),
		transport: new(MockTransport),
		blobs:     newMemoryBlobs(),
		notifier:  &recordingNotifier{},
	}
	f.svc = NewMailService(f.store, f.transport, f.blobs, f.notifier, nil, "", nil, zap.NewNop())
	return f
}

func TestMailService_Inboxes(t *testing.T) {
	ctx := context.Background()

	t.Run("创建收件箱", func(t *testing.T) {
		f := newMailFixture(t)
		mailbox, err := f.svc.CreateInbox(ctx, "u1", " Fox ", []string{" @Example.com ", ""})
		require.NoError(t, err)
		assert.Equal(t, "fox@hackclubber.dev", mailbox.Email)
		assert.Equal(t, []string{"@example.com"}, mailbox.AllowedSenders)
		assert.True(t, mailbox.Active)
	})

	t.Run("地址已被认领", func(t *testing.T) {
		f := newMailFixture(t)
		_, err := f.svc.CreateInbox(ctx, "u1", "fox", nil)
		require.NoError(t, err)
		_, err = f.svc.CreateInbox(ctx, "u2", "fox", nil)
		assert.ErrorIs(t, err, ErrInboxTaken)
	})

	t.Run("非法本地部分", func(t *testing.T) {
		f := newMailFixture(t)
		_, err := f.svc.CreateInbox(ctx, "u1", "a..b", nil)
		assert.ErrorIs(t, err, domain.ErrInvalidLocalPart)
	})

	t.Run("只能删除自己的收件箱", func(t *testing.T) {
		f := newMailFixture(t)
		mailbox, err := f.svc.CreateInbox(ctx, "u1", "fox", nil)
		require.NoError(t, err)

		assert.ErrorIs(t, f.svc.DeleteInbox(ctx, "u2", mailbox.ID), ErrInboxNotFound)
		require.NoError(t, f.svc.DeleteInbox(ctx, "u1", mailbox.ID))

		list, err := f.svc.ListInboxes(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestMailService_Deliver(t *testing.T) {
	ctx := context.Background()

	t.Run("投递到收件箱并通知", func(t *testing.T) {
		f := newMailFixture(t)
		mailbox, err := f.svc.CreateInbox(ctx, "u1", "fox", nil)
		require.NoError(t, err)

		msg, err := f.svc.Deliver(ctx, InboundInput{
			Source:    "webhook",
			Recipient: "Fox@HackClubber.dev",
			Sender:    "Wolf <wolf@example.com>",
			Subject:   "hi",
			Text:      "hello",
		})
		require.NoError(t, err)
		assert.Equal(t, mailbox.ID, msg.InboxID)
		assert.False(t, msg.Sent)
		assert.False(t, msg.Junk)
		assert.Equal(t, []string{"u1"}, f.notifier.users)

		list, err := f.svc.ListMessages(ctx, "u1", mailbox.ID, "inbox")
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("白名单外的发件人标记为垃圾邮件", func(t *testing.T) {
		f := newMailFixture(t)
		_, err := f.svc.CreateInbox(ctx, "u1", "fox", []string{"@trusted.org"})
		require.NoError(t, err)

		msg, err := f.svc.Deliver(ctx, InboundInput{Recipient: "fox@hackclubber.dev", Sender: "spam@bad.example"})
		require.NoError(t, err)
		assert.True(t, msg.Junk)
		assert.Empty(t, f.notifier.users)

		msg, err = f.svc.Deliver(ctx, InboundInput{Recipient: "fox@hackclubber.dev", Sender: "friend@trusted.org"})
		require.NoError(t, err)
		assert.False(t, msg.Junk)
	})

	t.Run("收件箱不存在", func(t *testing.T) {
		f := newMailFixture(t)
		_, err := f.svc.Deliver(ctx, InboundInput{Recipient: "nobody@hackclubber.dev"})
		assert.ErrorIs(t, err, ErrInboxNotFound)
		_, err = f.svc.Deliver(ctx, InboundInput{Recipient: "fox@elsewhere.dev"})
		assert.ErrorIs(t, err, ErrInboxNotFound)
	})

	t.Run("附件保存到对象存储，不合规的附件被丢弃", func(t *testing.T) {
		f := newMailFixture(t)
		_, err := f.svc.CreateInbox(ctx, "u1", "fox", nil)
		require.NoError(t, err)

		msg, err := f.svc.Deliver(ctx, InboundInput{
			Recipient: "fox@hackclubber.dev",
			Sender:    "wolf@example.com",
			Attachments: []*domain.Attachment{
				{Filename: "notes.txt", ContentType: "text/plain", Content: []byte("some notes")},
				{Filename: "run.exe", ContentType: "application/octet-stream", Content: []byte{0x4D, 0x5A, 0x00}},
			},
		})
		require.NoError(t, err)
		require.Len(t, msg.Attachments, 1)
		a := msg.Attachments[0]
		assert.True(t, strings.HasPrefix(a.Key, "attachments/"))
		assert.True(t, strings.HasSuffix(a.Key, ".txt"))
		assert.Nil(t, a.Content)
		assert.True(t, f.blobs.has(a.Key))
	})
}

func TestMailService_Messages(t *testing.T) {
	ctx := context.Background()
	f := newMailFixture(t)
	mailbox, err := f.svc.CreateInbox(ctx, "u1", "fox", nil)
	require.NoError(t, err)
	msg, err := f.svc.Deliver(ctx, InboundInput{Recipient: mailbox.Email, Sender: "wolf@example.com", Subject: "hi"})
	require.NoError(t, err)

	t.Run("参数校验", func(t *testing.T) {
		_, err := f.svc.ListMessages(ctx, "u1", "", "inbox")
		assert.ErrorIs(t, err, ErrInboxRequired)
		_, err = f.svc.ListMessages(ctx, "u1", mailbox.ID, "spam")
		assert.ErrorIs(t, err, ErrInvalidFolder)
		_, err = f.svc.ListMessages(ctx, "u2", mailbox.ID, "inbox")
		assert.ErrorIs(t, err, ErrInboxNotFound)
	})

	t.Run("读取后标记已读", func(t *testing.T) {
		got, err := f.svc.GetMessage(ctx, "u1", msg.ID)
		require.NoError(t, err)
		assert.True(t, got.Read)

		_, err = f.svc.GetMessage(ctx, "u2", msg.ID)
		assert.ErrorIs(t, err, ErrMessageNotFound)
	})

	t.Run("操作", func(t *testing.T) {
		tests := []struct {
			name    string
			action  string
			folder  string
			wantLen int
		}{
			{"标记未读", "unread", "inbox", 1},
			{"删除后进入已删除", "delete", "deleted", 1},
			{"恢复", "restore", "inbox", 1},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := f.svc.ApplyAction(ctx, "u1", msg.ID, tt.action)
				require.NoError(t, err)
				list, err := f.svc.ListMessages(ctx, "u1", mailbox.ID, tt.folder)
				require.NoError(t, err)
				assert.Len(t, list, tt.wantLen)
			})
		}

		_, err := f.svc.ApplyAction(ctx, "u1", msg.ID, "archive")
		assert.ErrorIs(t, err, ErrInvalidAction)

		deleted, err := f.svc.ApplyAction(ctx, "u1", msg.ID, "permanent-delete")
		require.NoError(t, err)
		assert.Nil(t, deleted)
		_, err = f.svc.GetMessage(ctx, "u1", msg.ID)
		assert.ErrorIs(t, err, ErrMessageNotFound)
	})
}

func TestMailService_Send(t *testing.T) {
	ctx := context.Background()

	t.Run("发送成功后保存到已发送", func(t *testing.T) {
		f := newMailFixture(t)
		mailbox, err := f.svc.CreateInbox(ctx, "u1", "fox", nil)
		require.NoError(t, err)
		att, err := f.svc.UploadAttachment(ctx, "hello.txt", "text/plain", 5, strings.NewReader("hello"))
		require.NoError(t, err)

		f.transport.On("Send", ctx, mock.MatchedBy(func(m *mail.OutboundMessage) bool {
			return m.From == "fox@hackclubber.dev" &&
				len(m.To) == 2 && m.To[1] == "b+tag@example.com" &&
				len(m.Attachments) == 1 && string(m.Attachments[0].Content) == "hello"
		})).Return("provider-1", nil)

		msg, err := f.svc.Send(ctx, SendInput{
			UserID:      "u1",
			From:        "fox@hackclubber.dev",
			To:          "a@example.com, B+Tag@example.com",
			Subject:     "hi",
			Text:        "body",
			Attachments: []*domain.Attachment{{Filename: "hello.txt", Key: att.Key}},
		})
		require.NoError(t, err)
		assert.True(t, msg.Sent)
		assert.Equal(t, "provider-1", msg.MessageID)
		assert.Nil(t, msg.Attachments[0].Content)

		sent, err := f.svc.ListMessages(ctx, "u1", mailbox.ID, "sent")
		require.NoError(t, err)
		assert.Len(t, sent, 1)
		f.transport.AssertExpectations(t)
	})

	t.Run("发送失败不保存", func(t *testing.T) {
		f := newMailFixture(t)
		mailbox, err := f.svc.CreateInbox(ctx, "u1", "fox", nil)
		require.NoError(t, err)
		f.transport.On("Send", ctx, mock.Anything).Return("", errors.New("mailgun down"))

		_, err = f.svc.Send(ctx, SendInput{UserID: "u1", From: mailbox.Email, To: "a@example.com"})
		assert.ErrorIs(t, err, ErrUpstream)

		sent, err := f.svc.ListMessages(ctx, "u1", mailbox.ID, "sent")
		require.NoError(t, err)
		assert.Empty(t, sent)
	})

	t.Run("不能使用别人的收件箱", func(t *testing.T) {
		f := newMailFixture(t)
		mailbox, err := f.svc.CreateInbox(ctx, "u1", "fox", nil)
		require.NoError(t, err)
		_, err = f.svc.Send(ctx, SendInput{UserID: "u2", From: mailbox.Email, To: "a@example.com"})
		assert.ErrorIs(t, err, ErrInboxNotFound)
		f.transport.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})

	t.Run("收件人校验", func(t *testing.T) {
		f := newMailFixture(t)
		mailbox, err := f.svc.CreateInbox(ctx, "u1", "fox", nil)
		require.NoError(t, err)
		_, err = f.svc.Send(ctx, SendInput{UserID: "u1", From: mailbox.Email, To: " "})
		assert.ErrorIs(t, err, ErrRecipientRequired)
		_, err = f.svc.Send(ctx, SendInput{UserID: "u1", From: mailbox.Email, To: "not-an-address"})
		assert.ErrorIs(t, err, domain.ErrInvalidEmail)
	})

	t.Run("附件引用无效", func(t *testing.T) {
		f := newMailFixture(t)
		mailbox, err := f.svc.CreateInbox(ctx, "u1", "fox", nil)
		require.NoError(t, err)
		_, err = f.svc.Send(ctx, SendInput{
			UserID: "u1", From: mailbox.Email, To: "a@example.com",
			Attachments: []*domain.Attachment{{Key: "U1/private.txt"}},
		})
		assert.ErrorIs(t, err, ErrAttachmentNotFound)
	})
}

func TestMailService_UploadAttachment(t *testing.T) {
	ctx := context.Background()
	f := newMailFixture(t)

	t.Run("类型不在允许列表", func(t *testing.T) {
		_, err := f.svc.UploadAttachment(ctx, "page.html", "text/html", 10, strings.NewReader("<html></html>"))
		assert.ErrorIs(t, err, security.ErrFileTypeNotAllowed)
	})

	t.Run("超过大小限制", func(t *testing.T) {
		_, err := f.svc.UploadAttachment(ctx, "big.txt", "text/plain", security.DefaultAttachmentSize+1, strings.NewReader("x"))
		assert.ErrorIs(t, err, security.ErrFileTooLarge)
	})

	t.Run("文件名非法", func(t *testing.T) {
		_, err := f.svc.UploadAttachment(ctx, "../etc/passwd", "text/plain", 1, strings.NewReader("x"))
		assert.ErrorIs(t, err, security.ErrInvalidFilename)
	})
}
