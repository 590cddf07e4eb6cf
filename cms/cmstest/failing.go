// Package cmstest provides helpers for tests that need a misbehaving document store.
package cmstest

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/Techyishu/writerly/cms"
)

// ErrUnavailable - error returned while the store is down
var ErrUnavailable = errors.New("document store unavailable")

// Switchable - wraps a cms.Client and fails every call while it is down
type Switchable struct {
	cms.Client
	down  atomic.Bool
	calls atomic.Int64
}

// NewSwitchable - wraps the client. The store starts up
func NewSwitchable(client cms.Client) *Switchable {
	return &Switchable{Client: client}
}

// SetDown - switches the store down or up
func (s *Switchable) SetDown(down bool) {
	s.down.Store(down)
}

// Calls - number of calls received, including failed ones
func (s *Switchable) Calls() int64 {
	return s.calls.Load()
}

func (s *Switchable) check() error {
	s.calls.Add(1)
	if s.down.Load() {
		return &cms.Error{StatusCode: 503, Message: ErrUnavailable.Error(), Err: ErrUnavailable}
	}
	return nil
}

func (s *Switchable) Fetch(ctx context.Context, q *cms.Query) ([]cms.Document, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.Client.Fetch(ctx, q)
}

func (s *Switchable) GetDocument(ctx context.Context, id string) (cms.Document, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.Client.GetDocument(ctx, id)
}

func (s *Switchable) Create(ctx context.Context, doc cms.Document) (cms.Document, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.Client.Create(ctx, doc)
}

func (s *Switchable) Patch(ctx context.Context, id string, p *cms.Patch) (cms.Document, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.Client.Patch(ctx, id, p)
}

func (s *Switchable) Delete(ctx context.Context, id string) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.Client.Delete(ctx, id)
}
