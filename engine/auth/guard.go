package auth

import (
	"context"
	"fmt"

	"github.com/compozy/statusstream/engine/auth/userctx"
)

// OwnershipResolver finds the owner of a conversation.
type OwnershipResolver interface {
	Owner(ctx context.Context, conversationID string) (string, error)
}

// Guard decides whether a user may read or write a conversation's stream.
type Guard struct {
	owners OwnershipResolver
}

// NewGuard creates a guard over an ownership resolver.
func NewGuard(owners OwnershipResolver) *Guard {
	return &Guard{owners: owners}
}

// AuthorizeDrain allows the drain only when the requester owns the queue.
func (g *Guard) AuthorizeDrain(requestingUserID, ownerUserID string) error {
	if requestingUserID == "" || ownerUserID == "" || requestingUserID != ownerUserID {
		return ErrUnauthorized
	}
	return nil
}

// AuthorizeConversation resolves the owner of conversationID and checks it
// against requestingUserID. Lookup failures are reported as ErrUnauthorized
// so callers cannot learn whether it exists.
func (g *Guard) AuthorizeConversation(ctx context.Context, requestingUserID, conversationID string) (string, error) {
	owner, err := g.owners.Owner(ctx, conversationID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if err := g.AuthorizeDrain(requestingUserID, owner); err != nil {
		return "", err
	}
	return owner, nil
}

// AuthorizeEmit lets the owner and the system identity produce events for a
// conversation.
func (g *Guard) AuthorizeEmit(ctx context.Context, actorID, conversationID string) error {
	if userctx.IsSystem(actorID) {
		return nil
	}
	_, err := g.AuthorizeConversation(ctx, actorID, conversationID)
	return err
}
