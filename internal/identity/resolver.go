// Package identity maps caller-supplied display names to durable users.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wuwenbin0122/chatquota/internal/apperr"
	"github.com/wuwenbin0122/chatquota/internal/db"
	"github.com/wuwenbin0122/chatquota/internal/models"
	"github.com/wuwenbin0122/chatquota/internal/utils"
)

// UserStore is the subset of db.UserStore the resolver needs.
type UserStore interface {
	FindByName(ctx context.Context, name string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Insert(ctx context.Context, name string, now time.Time) (string, error)
}

type Resolver struct {
	users  UserStore
	now    func() time.Time
	logger *zap.Logger
}

func NewResolver(users UserStore, logger *zap.Logger) *Resolver {
	return &Resolver{
		users:  users,
		now:    func() time.Time { return time.Now().UTC() },
		logger: utils.OrNop(logger),
	}
}

// Resolve returns the user named displayName, creating it on first sight.
// Losing a creation race to a concurrent caller returns the winner's record.
func (r *Resolver) Resolve(ctx context.Context, displayName string) (*models.User, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return nil, apperr.Validation("user_name is required", nil)
	}

	user, err := r.users.FindByName(ctx, name)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	id, err := r.users.Insert(ctx, name, r.now())
	switch {
	case errors.Is(err, db.ErrDuplicate):
		r.logger.Debug("user created concurrently, re-reading", zap.String("name", name))
		user, err = r.users.FindByName(ctx, name)
	case err != nil:
		return nil, err
	default:
		r.logger.Info("created user", zap.String("name", name), zap.String("user_id", id))
		user, err = r.users.FindByID(ctx, id)
	}

	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, err
	}

	return user, nil
}
