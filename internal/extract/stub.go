package extract

import (
	"context"
	"sync/atomic"

	"quickestimate/internal"
)

// StubExtractor returns canned results. Block, when set, is waited on
// before answering so tests can hold an extraction in flight.
type StubExtractor struct {
	Patches []internal.ExtractedPatch
	Err     error
	Block   <-chan struct{}

	calls atomic.Int32
}

func (s *StubExtractor) Extract(ctx context.Context, _ []byte) ([]internal.ExtractedPatch, error) {
	s.calls.Add(1)
	if s.Block != nil {
		select {
		case <-s.Block:
		case <-ctx.Done():
			return nil, Wrap("stub", ctx.Err())
		}
	}
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]internal.ExtractedPatch, len(s.Patches))
	copy(out, s.Patches)
	return out, nil
}

func (s *StubExtractor) Calls() int { return int(s.calls.Load()) }
