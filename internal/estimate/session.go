package estimate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"quickestimate/internal"
	"quickestimate/internal/extract"
)

// Extractor reads size rows off a sheet photo or document.
type Extractor = extract.Extractor

var ErrExtractionInProgress = errors.New("estimate: extraction already in progress")

const DefaultExtractTimeout = 30 * time.Second

// Session ties a Store to an Extractor and tracks whether an extraction is
// in flight. At most one extraction runs per session.
type Session struct {
	store     *Store
	extractor Extractor
	timeout   time.Duration
	policy    UnmatchedPolicy

	processing atomic.Bool

	mu      sync.Mutex
	lastErr error
}

type SessionOption func(*Session)

func WithTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithUnmatchedPolicy(p UnmatchedPolicy) SessionOption {
	return func(s *Session) { s.policy = p }
}

func NewSession(store *Store, extractor Extractor, opts ...SessionOption) *Session {
	s := &Session{
		store:     store,
		extractor: extractor,
		timeout:   DefaultExtractTimeout,
		policy:    UnmatchedDrop,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) Store() *Store { return s.store }

func (s *Session) Processing() bool { return s.processing.Load() }

// LastError is the failure of the most recent extraction, nil after a
// success.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Extract runs the extractor and applies its patches. A second call while
// one is running returns ErrExtractionInProgress without touching the
// store. On any extraction failure the rows are left as they were.
func (s *Session) Extract(ctx context.Context, image []byte) (ApplyResult, error) {
	if !s.processing.CompareAndSwap(false, true) {
		return ApplyResult{}, ErrExtractionInProgress
	}
	defer s.processing.Store(false)

	patches, err := s.run(ctx, image)
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	if err != nil {
		return ApplyResult{}, err
	}
	return s.store.ApplyPatches(patches, s.policy), nil
}

type extractOutcome struct {
	patches []internal.ExtractedPatch
	err     error
}

func (s *Session) run(ctx context.Context, image []byte) ([]internal.ExtractedPatch, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan extractOutcome, 1)
	go func() {
		patches, err := s.extractor.Extract(ctx, image)
		done <- extractOutcome{patches: patches, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, extract.Wrap("extract", out.err)
		}
		return out.patches, nil
	case <-ctx.Done():
		return nil, extract.Wrap("extract", ctx.Err())
	}
}
