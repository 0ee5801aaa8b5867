package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/compozy/statusstream/engine/core"
	"github.com/compozy/statusstream/engine/streaming"
)

// Status tracks the lifecycle of a persisted conversation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) String() string { return string(s) }

// IsTerminal reports whether no further transitions are expected.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

var (
	ErrNotFound      = errors.New("conversation not found")
	ErrAlreadyExists = errors.New("conversation already exists")
	ErrInvalidStatus = errors.New("invalid conversation status")
)

// Conversation is the authoritative record a stream consumer reconciles
// against after a completion event.
type Conversation struct {
	ID        string    `json:"id"              db:"id"`
	OwnerID   string    `json:"owner_id"        db:"owner_id"`
	Title     string    `json:"title"           db:"title"`
	Status    Status    `json:"status"          db:"status"`
	Answer    string    `json:"answer"          db:"answer"`
	Error     string    `json:"error,omitempty" db:"error"`
	CreatedAt time.Time `json:"created_at"      db:"created_at"`
	UpdatedAt time.Time `json:"updated_at"      db:"updated_at"`
}

// Repository persists conversations. Implementations return ErrNotFound for
// unknown ids.
type Repository interface {
	Create(ctx context.Context, conv *Conversation) error
	Get(ctx context.Context, id string) (*Conversation, error)
	Owner(ctx context.Context, id string) (string, error)
	SaveAnswer(ctx context.Context, id string, answer string) error
	MarkStatus(ctx context.Context, id string, status Status, errMsg string) error
}

// Prepare fills defaults on a conversation about to be created and validates it.
func Prepare(conv *Conversation, now time.Time) error {
	if conv == nil {
		return fmt.Errorf("conversation is required")
	}
	if conv.ID == "" {
		id, err := core.NewID()
		if err != nil {
			return err
		}
		conv.ID = id.String()
	}
	if err := streaming.ValidateConversationID(conv.ID); err != nil {
		return err
	}
	conv.OwnerID = strings.TrimSpace(conv.OwnerID)
	if conv.OwnerID == "" {
		return fmt.Errorf("conversation %s: owner is required", conv.ID)
	}
	if conv.Status == "" {
		conv.Status = StatusPending
	}
	if !conv.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, conv.Status)
	}
	now = now.UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now
	return nil
}
