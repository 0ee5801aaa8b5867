package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/compozy/statusstream/engine/conversation"
	"github.com/georgysavva/scany/v2/sqlscan"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const conversationsTable = "conversations"

var conversationColumns = []string{
	"id", "owner_id", "title", "status", "answer", "error", "created_at", "updated_at",
}

// ConversationRepo implements conversation.Repository on top of a SQLite *sql.DB.
type ConversationRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewConversationRepo creates a SQLite-backed conversation repository.
func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db, now: time.Now}
}

func (r *ConversationRepo) Create(ctx context.Context, conv *conversation.Conversation) error {
	if err := conversation.Prepare(conv, r.now()); err != nil {
		return err
	}
	query, args, err := squirrel.Insert(conversationsTable).
		Columns(conversationColumns...).
		Values(
			conv.ID, conv.OwnerID, conv.Title, conv.Status,
			conv.Answer, conv.Error, conv.CreatedAt, conv.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("sqlite: build insert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", conversation.ErrAlreadyExists, conv.ID)
		}
		return fmt.Errorf("sqlite: create conversation: %w", err)
	}
	return nil
}

func (r *ConversationRepo) Get(ctx context.Context, id string) (*conversation.Conversation, error) {
	query, args, err := squirrel.Select(conversationColumns...).
		From(conversationsTable).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlite: build select: %w", err)
	}
	var conv conversation.Conversation
	if err := sqlscan.Get(ctx, r.db, &conv, query, args...); err != nil {
		if sqlscan.NotFound(err) {
			return nil, conversation.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: get conversation: %w", err)
	}
	return &conv, nil
}

func (r *ConversationRepo) Owner(ctx context.Context, id string) (string, error) {
	query, args, err := squirrel.Select("owner_id").
		From(conversationsTable).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("sqlite: build owner select: %w", err)
	}
	var owner string
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&owner); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", conversation.ErrNotFound
		}
		return "", fmt.Errorf("sqlite: get conversation owner: %w", err)
	}
	return owner, nil
}

func (r *ConversationRepo) SaveAnswer(ctx context.Context, id string, answer string) error {
	return r.update(ctx, id, squirrel.Eq{"answer": answer})
}

func (r *ConversationRepo) MarkStatus(
	ctx context.Context,
	id string,
	status conversation.Status,
	errMsg string,
) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", conversation.ErrInvalidStatus, status)
	}
	return r.update(ctx, id, squirrel.Eq{"status": status, "error": errMsg})
}

func (r *ConversationRepo) update(ctx context.Context, id string, fields squirrel.Eq) error {
	sb := squirrel.Update(conversationsTable).
		Set("updated_at", r.now().UTC()).
		Where(squirrel.Eq{"id": id})
	for column, value := range fields {
		sb = sb.Set(column, value)
	}
	query, args, err := sb.ToSql()
	if err != nil {
		return fmt.Errorf("sqlite: build update: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: update conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if affected == 0 {
		return conversation.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
