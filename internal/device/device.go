// Package device models the controller a mapping session talks to. A
// Networked device reconciles the mapping with a WLED controller over HTTP;
// a Standalone device keeps everything in memory so the same reorder and
// diff logic runs without hardware.
package device

import (
	"context"
	"fmt"

	"wled_mapper/core-go/internal/mapping"
	"wled_mapper/core-go/internal/wled"
)

// Kind tags the device variant.
type Kind string

const (
	KindNetworked  Kind = "wled"
	KindStandalone Kind = "standalone"
)

// SupportedRevision is the only cfg.json revision the mapper accepts.
var SupportedRevision = [2]int{1, 0}

// Device is the capability set a mapping session needs.
type Device interface {
	Kind() Kind
	Info() Info
	// Connect fetches controller state. Only a successful Connect makes the device usable.
	Connect(ctx context.Context) (Snapshot, error)
	// CurrentNodes seeds a node set from the last known persisted mapping.
	CurrentNodes() mapping.Nodes
	// HighlightPixel lights one pixel. It reports false when the request was dropped.
	HighlightPixel(ctx context.Context, ledIndex int) (bool, error)
	// WriteMapping persists nodes unless they match the last known persisted mapping.
	WriteMapping(ctx context.Context, nodes mapping.Nodes) (WriteResult, error)
	HasPendingChanges(nodes mapping.Nodes) bool
	CommitPending() bool
	AcknowledgeCommit()
}

// Config is the part of the controller configuration the mapper consumes.
type Config struct {
	Revision [2]int
	Name     string
	Total    int
	Outputs  []wled.Output
}

// Snapshot is what Connect observed. Mapping is nil when none is stored.
type Snapshot struct {
	Config  Config
	Mapping mapping.Persisted
}

// Info describes a device for status reporting.
type Info struct {
	Kind      Kind
	Host      string
	Name      string
	Total     int
	Connected bool
}

// WriteResult reports the outcome of WriteMapping.
type WriteResult struct {
	Written       bool
	CommitPending bool
	CommitURL     string
	Mapping       mapping.Persisted
}

// Advisory returns ErrCommitPending (wrapped with where to commit) while a commit is outstanding.
func (r WriteResult) Advisory() error {
	if !r.CommitPending {
		return nil
	}
	if r.CommitURL == "" {
		return ErrCommitPending
	}
	return fmt.Errorf("%w: save the LED settings at %s to apply it", ErrCommitPending, r.CommitURL)
}
