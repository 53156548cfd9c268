package csvlog

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/fitcoach/store"
)

var (
	messageHeader = []string{"conversation_id", "user_id", "role", "message", "timestamp"}
	subjectHeader = []string{"conversation_id", "user_id", "subject", "timestamp"}
)

// ConversationLog is the append-only message and subject log.
// Every successful append synchronously reloads the matching view.
type ConversationLog struct {
	messages *File
	subjects *File

	Messages *MessageView
	Subjects *SubjectView

	now    func() time.Time
	logger *slog.Logger
}

func NewConversationLog(messagesPath, subjectsPath string, logger *slog.Logger) *ConversationLog {
	if logger == nil {
		logger = slog.Default()
	}
	messages := NewFile(messagesPath, messageHeader)
	subjects := NewFile(subjectsPath, subjectHeader)
	messageView := &MessageView{file: messages}
	return &ConversationLog{
		messages: messages,
		subjects: subjects,
		Messages: messageView,
		Subjects: &SubjectView{file: subjects, messages: messageView},
		now:      time.Now,
		logger:   logger,
	}
}

// Load fills both views.
func (l *ConversationLog) Load() error {
	if err := l.Messages.Reload(); err != nil {
		return err
	}
	return l.Subjects.Reload()
}

// ReadHistory scans the message file and returns the messages of one
// conversation in append order. A missing file yields an empty history.
func (l *ConversationLog) ReadHistory(ctx context.Context, conversationID string) ([]*store.ConversationMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := l.messages.ReadAll()
	if err != nil {
		return nil, err
	}

	var history []*store.ConversationMessage
	for _, row := range rows {
		if row["conversation_id"] != conversationID {
			continue
		}
		history = append(history, messageFromRow(row))
	}
	return history, nil
}

func (l *ConversationLog) AppendMessage(ctx context.Context, msg *store.ConversationMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.Role != store.RoleUser && msg.Role != store.RoleAssistant {
		return errors.Errorf("invalid role %q", msg.Role)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = l.now()
	}
	msg.Message = Sanitize(msg.Message)

	if err := l.messages.Append([]string{
		msg.ConversationID, msg.UserID, string(msg.Role), msg.Message, formatTimestamp(msg.CreatedAt),
	}); err != nil {
		return err
	}
	l.logger.Debug("conversation: message appended",
		"conversation_id", msg.ConversationID, "role", msg.Role, "length", len(msg.Message))
	return l.Messages.Reload()
}

func (l *ConversationLog) AppendSubject(ctx context.Context, subject *store.ConversationSubject) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if subject.CreatedAt.IsZero() {
		subject.CreatedAt = l.now()
	}
	subject.Title = Sanitize(subject.Title)

	if err := l.subjects.Append([]string{
		subject.ConversationID, subject.UserID, subject.Title, formatTimestamp(subject.CreatedAt),
	}); err != nil {
		return err
	}
	l.logger.Debug("conversation: subject appended", "conversation_id", subject.ConversationID)
	return l.Subjects.Reload()
}

func messageFromRow(row map[string]string) *store.ConversationMessage {
	return &store.ConversationMessage{
		ConversationID: row["conversation_id"],
		UserID:         row["user_id"],
		Role:           store.Role(row["role"]),
		Message:        row["message"],
		CreatedAt:      parseTimestamp(row["timestamp"]),
	}
}

func subjectFromRow(row map[string]string) *store.ConversationSubject {
	return &store.ConversationSubject{
		ConversationID: row["conversation_id"],
		UserID:         row["user_id"],
		Title:          row["subject"],
		CreatedAt:      parseTimestamp(row["timestamp"]),
	}
}

// ListSubjects returns one page of a user's conversations from the subject view.
func (l *ConversationLog) ListSubjects(find *store.FindConversationSubject) ([]*store.ConversationSubject, int, error) {
	return l.Subjects.List(find)
}

// ListMessages returns the messages of one conversation from the message view.
func (l *ConversationLog) ListMessages(conversationID string) ([]*store.ConversationMessage, error) {
	return l.Messages.List(conversationID)
}
