package device

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"wled_mapper/core-go/internal/mapping"
)

// StandaloneInput seeds a Standalone device. Mapping wins when both are set.
type StandaloneInput struct {
	PixelCount *int
	Mapping    string
}

// Standalone is an in-memory device. Writes always succeed and highlights do nothing.
type Standalone struct {
	mu        sync.RWMutex
	persisted mapping.Persisted
}

// NewStandalone validates in before any state is created.
func NewStandalone(in StandaloneInput) (*Standalone, error) {
	if raw := strings.TrimSpace(in.Mapping); raw != "" {
		p, err := mapping.ParseLedMap([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		return &Standalone{persisted: p}, nil
	}

	if in.PixelCount == nil {
		return nil, fmt.Errorf("%w: pixel count or mapping is required", ErrValidation)
	}
	if *in.PixelCount < 0 {
		return nil, fmt.Errorf("%w: pixel count must be non-negative, got %d", ErrValidation, *in.PixelCount)
	}
	return &Standalone{persisted: mapping.IdentityPersisted(*in.PixelCount)}, nil
}

func (s *Standalone) Kind() Kind { return KindStandalone }

func (s *Standalone) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Info{
		Kind:      KindStandalone,
		Name:      string(KindStandalone),
		Total:     len(s.persisted),
		Connected: true,
	}
}

func (s *Standalone) Connect(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Config: Config{
			Revision: SupportedRevision,
			Name:     string(KindStandalone),
			Total:    len(s.persisted),
		},
		Mapping: s.persisted.Clone(),
	}, nil
}

func (s *Standalone) CurrentNodes() mapping.Nodes {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return mapping.Seed(s.persisted, len(s.persisted))
}

func (s *Standalone) HasPendingChanges(nodes mapping.Nodes) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !nodes.ToPersisted().Equal(s.persisted)
}

func (s *Standalone) WriteMapping(_ context.Context, nodes mapping.Nodes) (WriteResult, error) {
	next := nodes.ToPersisted()
	if err := next.Validate(); err != nil {
		return WriteResult{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	s.mu.Lock()
	changed := !next.Equal(s.persisted)
	s.persisted = next.Clone()
	s.mu.Unlock()
	return WriteResult{Written: changed, Mapping: next}, nil
}

func (s *Standalone) HighlightPixel(context.Context, int) (bool, error) { return false, nil }

func (s *Standalone) CommitPending() bool { return false }

func (s *Standalone) AcknowledgeCommit() {}
