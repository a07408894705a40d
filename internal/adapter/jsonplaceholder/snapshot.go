package jsonplaceholder

import (
	"context"
	"sync"

	"github.com/couchcryptid/sales-data-etl/internal/domain"
)

// Snapshot serves customers from the full list, fetched again on every
// Refresh. Before the first successful refresh, and after a failed one,
// lookups go to the per-id endpoint.
type Snapshot struct {
	client *Client

	mu  sync.RWMutex
	dir domain.CustomerDirectory
}

// NewSnapshot creates a Snapshot over client. It holds no customers until
// Refresh is called.
func NewSnapshot(client *Client) *Snapshot {
	return &Snapshot{client: client}
}

// Refresh replaces the snapshot with the current customer list.
func (s *Snapshot) Refresh(ctx context.Context) error {
	dir, err := s.client.FetchAll(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.dir = nil
		return err
	}
	s.dir = dir
	return nil
}

// FetchCustomer implements domain.CustomerSource.
func (s *Snapshot) FetchCustomer(ctx context.Context, id int64) (domain.CustomerPayload, error) {
	s.mu.RLock()
	dir := s.dir
	s.mu.RUnlock()

	if dir == nil {
		return s.client.FetchCustomer(ctx, id)
	}
	return dir.FetchCustomer(ctx, id)
}
