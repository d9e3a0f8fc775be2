// Package remote composes the multi-device cart store the reconciler talks to:
// a row repository for reads and writes plus a notifier for change signals.
package remote

import (
	"context"

	"github.com/jsa498/digitalmarketing/internal/model"
	"github.com/jsa498/digitalmarketing/internal/notify"
	"github.com/jsa498/digitalmarketing/internal/repository"
	"github.com/sirupsen/logrus"
)

// Store is the remote cart store.
type Store interface {
	FetchRows(ctx context.Context, userID string) ([]model.RemoteCartRow, error)
	InsertRow(ctx context.Context, row model.RemoteCartRow) error
	DeleteRow(ctx context.Context, userID, productID string) error
	DeleteAllRows(ctx context.Context, userID string) error

	// Subscribe delivers a callback whenever userID's rows may have changed.
	Subscribe(ctx context.Context, userID string, onChange func()) (notify.Subscription, error)
	Unsubscribe(sub notify.Subscription) error
}

// RepositoryStore joins a repository and a notifier. Every successful write
// publishes a change for the row owner, including writes made by this agent;
// subscribers see their own echo.
type RepositoryStore struct {
	repo     repository.CartRepository
	notifier notify.Notifier
	log      logrus.FieldLogger
}

// NewStore creates a remote store.
func NewStore(repo repository.CartRepository, notifier notify.Notifier, log logrus.FieldLogger) *RepositoryStore {
	return &RepositoryStore{
		repo:     repo,
		notifier: notifier,
		log:      log,
	}
}

func (s *RepositoryStore) FetchRows(ctx context.Context, userID string) ([]model.RemoteCartRow, error) {
	return s.repo.FetchRows(ctx, userID)
}

func (s *RepositoryStore) InsertRow(ctx context.Context, row model.RemoteCartRow) error {
	if err := s.repo.InsertRow(ctx, row); err != nil {
		return err
	}
	s.publish(ctx, row.UserID)
	return nil
}

func (s *RepositoryStore) DeleteRow(ctx context.Context, userID, productID string) error {
	if err := s.repo.DeleteRow(ctx, userID, productID); err != nil {
		return err
	}
	s.publish(ctx, userID)
	return nil
}

func (s *RepositoryStore) DeleteAllRows(ctx context.Context, userID string) error {
	if err := s.repo.DeleteAllRows(ctx, userID); err != nil {
		return err
	}
	s.publish(ctx, userID)
	return nil
}

func (s *RepositoryStore) Subscribe(ctx context.Context, userID string, onChange func()) (notify.Subscription, error) {
	return s.notifier.Subscribe(ctx, userID, onChange)
}

func (s *RepositoryStore) Unsubscribe(sub notify.Subscription) error {
	if sub == nil {
		return nil
	}
	return sub.Close()
}

// publish failures do not fail the write; the row is already stored.
func (s *RepositoryStore) publish(ctx context.Context, userID string) {
	if err := s.notifier.Publish(ctx, userID); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("Failed to publish cart change")
	}
}

var _ Store = (*RepositoryStore)(nil)
