// Package chat runs a chat turn end to end: identity, quota, completion and
// persistence of the exchange.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wuwenbin0122/chatquota/internal/apperr"
	"github.com/wuwenbin0122/chatquota/internal/metrics"
	"github.com/wuwenbin0122/chatquota/internal/models"
	"github.com/wuwenbin0122/chatquota/internal/utils"
)

type Resolver interface {
	Resolve(ctx context.Context, displayName string) (*models.User, error)
}

type Limiter interface {
	CheckBurst(ctx context.Context, userID string) error
	CheckDaily(ctx context.Context, userID string) error
	TodayCount(ctx context.Context, userID string) (int64, error)
}

type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type MessageStore interface {
	Append(ctx context.Context, messages []models.NewMessage) (int, error)
	Recent(ctx context.Context, userID string, limit int) ([]models.Message, error)
}

// TurnLocker serialises turns of one user. ok is false while another turn holds it.
type TurnLocker interface {
	Acquire(ctx context.Context, userID string) (release func(context.Context) error, ok bool, err error)
}

type Service struct {
	resolver  Resolver
	limiter   Limiter
	completer Completer
	messages  MessageStore
	lock      TurnLocker
	now       func() time.Time
	logger    *zap.Logger
}

type Option func(*Service)

// WithTurnLock enables per-user turn serialisation.
func WithTurnLock(lock TurnLocker) Option {
	return func(s *Service) {
		s.lock = lock
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = utils.OrNop(logger)
	}
}

func NewService(resolver Resolver, limiter Limiter, completer Completer, messages MessageStore, opts ...Option) *Service {
	s := &Service{
		resolver:  resolver,
		limiter:   limiter,
		completer: completer,
		messages:  messages,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitTurn answers text on behalf of displayName. Quota rejections happen
// before the provider is called or anything is written. When the reply was
// generated but could not be stored, both the reply and a store error are
// returned.
func (s *Service) SubmitTurn(ctx context.Context, displayName, text string) (string, error) {
	user, err := s.resolve(ctx, displayName)
	if err != nil {
		metrics.RecordTurn(metrics.OutcomeFailed)
		return "", err
	}

	if strings.TrimSpace(text) == "" {
		metrics.RecordTurn(metrics.OutcomeFailed)
		return "", apperr.Validation("message must not be empty", nil)
	}

	logger := s.logger.With(zap.String("user_id", user.ID))

	if s.lock != nil {
		release, ok, err := s.lock.Acquire(ctx, user.ID)
		if err != nil {
			metrics.RecordTurn(metrics.OutcomeFailed)
			return "", err
		}
		if !ok {
			metrics.RecordRejection(metrics.WindowLock)
			return "", apperr.NotAuthorized("chat turn already in progress")
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("release turn lock", zap.Error(err))
			}
		}()
	}

	if err := s.limiter.CheckBurst(ctx, user.ID); err != nil {
		s.recordCheckFailure(metrics.WindowBurst, err)
		return "", err
	}
	if err := s.limiter.CheckDaily(ctx, user.ID); err != nil {
		s.recordCheckFailure(metrics.WindowDaily, err)
		return "", err
	}

	reply, err := s.completer.Complete(ctx, text)
	if err != nil {
		metrics.RecordTurn(metrics.OutcomeFailed)
		logger.Warn("completion failed", zap.Error(err))
		return "", err
	}

	completedAt := s.now().UTC()
	exchange := []models.NewMessage{
		{UserID: user.ID, Role: models.RoleUser, Text: text, CreatedAt: completedAt},
		{UserID: user.ID, Role: models.RoleAssistant, Text: reply, CreatedAt: completedAt},
	}

	if _, err := s.messages.Append(ctx, exchange); err != nil {
		metrics.RecordTurn(metrics.OutcomeFailed)
		logger.Error("persist chat turn", zap.Error(err))
		if apperr.KindOf(err) != apperr.KindStoreUnavailable {
			err = apperr.StoreUnavailable("persist chat turn", err)
		}
		return reply, err
	}

	metrics.RecordTurn(metrics.OutcomeDone)
	logger.Debug("chat turn stored", zap.Int("reply_len", len(reply)))

	return reply, nil
}

// History returns the user's most recent messages, newest first. lastN is
// raised to the store's minimum page size.
func (s *Service) History(ctx context.Context, displayName string, lastN int) ([]models.ChatEntry, error) {
	user, err := s.resolve(ctx, displayName)
	if err != nil {
		return nil, err
	}

	messages, err := s.messages.Recent(ctx, user.ID, lastN)
	if err != nil {
		return nil, err
	}

	entries := make([]models.ChatEntry, 0, len(messages))
	for _, message := range messages {
		entries = append(entries, models.ChatEntry{Role: message.Role, Text: message.Text})
	}

	return entries, nil
}

func (s *Service) TodayStatus(ctx context.Context, displayName string) (*models.ChatStatus, error) {
	user, err := s.resolve(ctx, displayName)
	if err != nil {
		return nil, err
	}

	count, err := s.limiter.TodayCount(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return &models.ChatStatus{UserName: user.Name, CountToday: count}, nil
}

func (s *Service) resolve(ctx context.Context, displayName string) (*models.User, error) {
	user, err := s.resolver.Resolve(ctx, displayName)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFound("user not found")
	}
	return user, nil
}

func (s *Service) recordCheckFailure(window string, err error) {
	if errors.Is(err, apperr.ErrNotAuthorized) {
		metrics.RecordRejection(window)
		return
	}
	metrics.RecordTurn(metrics.OutcomeFailed)
}
