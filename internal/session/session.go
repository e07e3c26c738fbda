// Package session owns the one device an operator is mapping and the node
// set being edited for it. All reads and reorders go through the Manager,
// which serializes them; controller I/O runs outside its lock.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"wled_mapper/core-go/internal/device"
	"wled_mapper/core-go/internal/mapping"
	"wled_mapper/core-go/internal/naming"
)

// ErrNoSession is returned when no device has been opened.
var ErrNoSession = errors.New("no open session")

// Setup selects the device to open: a controller host, or standalone input.
type Setup struct {
	Host       string
	PixelCount *int
	Mapping    string
}

type Options struct {
	Device device.Options
	Layout mapping.LayoutOptions
}

// Status summarises the open session.
type Status struct {
	Kind           device.Kind `json:"kind"`
	Host           string      `json:"host,omitempty"`
	Name           string      `json:"name"`
	Total          int         `json:"total"`
	Connected      bool        `json:"connected"`
	PendingChanges bool        `json:"pending_changes"`
	CommitPending  bool        `json:"commit_pending"`
}

// View is the node set laid out for display.
type View struct {
	Total          int                  `json:"total"`
	PendingChanges bool                 `json:"pending_changes"`
	Nodes          []mapping.PlacedNode `json:"nodes"`
}

type Manager struct {
	log  zerolog.Logger
	opts Options

	mu    sync.Mutex
	dev   device.Device
	nodes mapping.Nodes
}

func NewManager(log zerolog.Logger, opts Options) *Manager {
	return &Manager{log: log, opts: opts}
}

// Open builds the device described by setup, connects it and makes it the
// current session. A failed open leaves the previous session in place.
func (m *Manager) Open(ctx context.Context, setup Setup) (Status, error) {
	dev, err := m.newDevice(setup)
	if err != nil {
		return Status{}, err
	}
	return m.Attach(ctx, dev)
}

func (m *Manager) newDevice(setup Setup) (device.Device, error) {
	host := strings.TrimSpace(setup.Host)
	standalone := setup.PixelCount != nil || strings.TrimSpace(setup.Mapping) != ""
	switch {
	case host != "" && standalone:
		return nil, fmt.Errorf("%w: give either a controller host or standalone input, not both", device.ErrValidation)
	case host != "":
		return device.NewNetworked(m.log, host, m.opts.Device)
	default:
		return device.NewStandalone(device.StandaloneInput{
			PixelCount: setup.PixelCount,
			Mapping:    setup.Mapping,
		})
	}
}

// Attach connects dev and replaces the current session with it.
func (m *Manager) Attach(ctx context.Context, dev device.Device) (Status, error) {
	if _, err := dev.Connect(ctx); err != nil {
		return Status{}, err
	}
	nodes := dev.CurrentNodes()

	m.mu.Lock()
	m.dev = dev
	m.nodes = nodes
	m.mu.Unlock()

	m.log.Info().Str("kind", string(dev.Kind())).Int("total", len(nodes)).Msg("session opened")
	return m.Status()
}

// Close drops the current session.
func (m *Manager) Close() {
	m.mu.Lock()
	m.dev = nil
	m.nodes = nil
	m.mu.Unlock()
}

// Connected reports whether a connected session is open.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dev != nil && m.dev.Info().Connected
}

func (m *Manager) Status() (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dev == nil {
		return Status{}, ErrNoSession
	}

	info := m.dev.Info()
	st := Status{
		Kind:           info.Kind,
		Total:          len(m.nodes),
		Connected:      info.Connected,
		PendingChanges: m.dev.HasPendingChanges(m.nodes),
		CommitPending:  m.dev.CommitPending(),
	}
	switch info.Kind {
	case device.KindNetworked:
		st.Host = info.Host
		name, ok := naming.ChooseBestDisplayName([]naming.Candidate{
			{Name: info.Name, Source: naming.SourceConfig},
			{Name: info.Host, Source: naming.SourceAddress},
		})
		if !ok {
			name = info.Host
		}
		st.Name = name
	default:
		st.Name = info.Name
	}
	return st, nil
}

// View returns the node set being edited with layout coordinates.
func (m *Manager) View() (View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dev == nil {
		return View{}, ErrNoSession
	}
	return m.viewLocked(), nil
}

func (m *Manager) viewLocked() View {
	return View{
		Total:          len(m.nodes),
		PendingChanges: m.dev.HasPendingChanges(m.nodes),
		Nodes:          mapping.Layout(m.nodes, m.opts.Layout),
	}
}

// Reorder moves ledIndex to posIndex in the edited node set.
func (m *Manager) Reorder(ledIndex, posIndex int) (View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dev == nil {
		return View{}, ErrNoSession
	}
	next, err := m.nodes.Reorder(ledIndex, posIndex)
	if err != nil {
		return View{}, err
	}
	m.nodes = next
	return m.viewLocked(), nil
}

// Reset discards unsaved edits and reseeds from the device.
func (m *Manager) Reset() (View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dev == nil {
		return View{}, ErrNoSession
	}
	m.nodes = m.dev.CurrentNodes()
	return m.viewLocked(), nil
}

// Persisted returns the edited node set in ledmap form.
func (m *Manager) Persisted() (mapping.Persisted, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dev == nil {
		return nil, ErrNoSession
	}
	return m.nodes.ToPersisted(), nil
}

// Highlight lights ledIndex on the device. It reports false when dropped.
func (m *Manager) Highlight(ctx context.Context, ledIndex int) (bool, error) {
	m.mu.Lock()
	dev := m.dev
	_, known := m.nodes.Find(ledIndex)
	m.mu.Unlock()

	if dev == nil {
		return false, ErrNoSession
	}
	if !known {
		return false, fmt.Errorf("%w: %d", mapping.ErrUnknownPixel, ledIndex)
	}
	return dev.HighlightPixel(ctx, ledIndex)
}

// Write persists the edited node set through the device.
func (m *Manager) Write(ctx context.Context) (device.WriteResult, error) {
	m.mu.Lock()
	dev := m.dev
	nodes := m.nodes.Clone()
	m.mu.Unlock()

	if dev == nil {
		return device.WriteResult{}, ErrNoSession
	}
	res, err := dev.WriteMapping(ctx, nodes)
	if err != nil {
		m.log.Error().Err(err).Msg("mapping write failed")
		return device.WriteResult{}, err
	}
	return res, nil
}

// AcknowledgeCommit records that the operator applied the written mapping.
func (m *Manager) AcknowledgeCommit() (Status, error) {
	m.mu.Lock()
	dev := m.dev
	m.mu.Unlock()
	if dev == nil {
		return Status{}, ErrNoSession
	}
	dev.AcknowledgeCommit()
	return m.Status()
}
