package session

import "context"

// Store persists sessions between requests. Load must return a copy the
// caller may mutate freely, or ErrNotFound.
type Store interface {
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Close() error
}
