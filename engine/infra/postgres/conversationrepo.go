package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/compozy/statusstream/engine/conversation"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolationCode = "23505"

var conversationColumns = []string{
	"id", "owner_id", "title", "status", "answer", "error", "created_at", "updated_at",
}

// DB is the minimal database interface the repository depends on (pgxpool or pgxmock).
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ConversationRepo implements conversation.Repository backed by a pgx-compatible pool.
type ConversationRepo struct {
	db  DB
	now func() time.Time
}

func NewConversationRepo(db DB) *ConversationRepo {
	return &ConversationRepo{db: db, now: time.Now}
}

func psql() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *ConversationRepo) Create(ctx context.Context, conv *conversation.Conversation) error {
	if err := conversation.Prepare(conv, r.now()); err != nil {
		return err
	}
	query, args, err := psql().Insert("conversations").
		Columns(conversationColumns...).
		Values(
			conv.ID, conv.OwnerID, conv.Title, string(conv.Status),
			conv.Answer, conv.Error, conv.CreatedAt, conv.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert: %w", err)
	}
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return fmt.Errorf("%w: %s", conversation.ErrAlreadyExists, conv.ID)
		}
		return fmt.Errorf("creating conversation: %w", err)
	}
	return nil
}

func (r *ConversationRepo) Get(ctx context.Context, id string) (*conversation.Conversation, error) {
	query, args, err := psql().Select(conversationColumns...).
		From("conversations").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}
	var conv conversation.Conversation
	if err := pgxscan.Get(ctx, r.db, &conv, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, conversation.ErrNotFound
		}
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}
	return &conv, nil
}

func (r *ConversationRepo) Owner(ctx context.Context, id string) (string, error) {
	var owner string
	err := r.db.QueryRow(ctx, "SELECT owner_id FROM conversations WHERE id = $1", id).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", conversation.ErrNotFound
		}
		return "", fmt.Errorf("scanning conversation owner: %w", err)
	}
	return owner, nil
}

func (r *ConversationRepo) SaveAnswer(ctx context.Context, id string, answer string) error {
	return r.exec(ctx,
		"UPDATE conversations SET answer = $1, updated_at = $2 WHERE id = $3",
		answer, r.now().UTC(), id,
	)
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
	return r.exec(ctx,
		"UPDATE conversations SET status = $1, error = $2, updated_at = $3 WHERE id = $4",
		string(status), errMsg, r.now().UTC(), id,
	)
}

func (r *ConversationRepo) exec(ctx context.Context, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return conversation.ErrNotFound
	}
	return nil
}
