package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"wled_mapper/core-go/internal/mapping"
	"wled_mapper/core-go/internal/metrics"
	"wled_mapper/core-go/internal/wled"
)

// Controller is the minimal controller API a Networked device needs.
//
// NOTE: *wled.Client satisfies this.
type Controller interface {
	Host() string
	SettingsURL() string
	FetchConfig(ctx context.Context) (wled.ControllerConfig, error)
	FetchLedMap(ctx context.Context) (mapping.Persisted, error)
	UploadLedMap(ctx context.Context, p mapping.Persisted) error
	SetState(ctx context.Context, req wled.StateRequest) error
}

// Options tunes a Networked device. Zero values pick defaults.
type Options struct {
	Client  wled.Config
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Networked is a device backed by a WLED controller. All controller state is
// fetched by Connect; nothing is assumed.
type Networked struct {
	log     zerolog.Logger
	client  Controller
	metrics *metrics.Metrics
	now     func() time.Time

	mu            sync.RWMutex
	connected     bool
	config        Config
	persisted     mapping.Persisted
	commitPending bool
	lastStamp     int64

	highlighting atomic.Bool
}

// NewNetworked builds a device for the controller at host.
func NewNetworked(log zerolog.Logger, host string, opts Options) (*Networked, error) {
	client, err := wled.NewClient(host, opts.Client)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return NewNetworkedWithController(log, client, opts), nil
}

// NewNetworkedWithController builds a device over an existing controller client.
func NewNetworkedWithController(log zerolog.Logger, client Controller, opts Options) *Networked {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Networked{
		log:     log.With().Str("controller", client.Host()).Logger(),
		client:  client,
		metrics: opts.Metrics,
		now:     now,
	}
}

func (d *Networked) Kind() Kind { return KindNetworked }

func (d *Networked) Info() Info {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Info{
		Kind:      KindNetworked,
		Host:      d.client.Host(),
		Name:      d.config.Name,
		Total:     d.config.Total,
		Connected: d.connected,
	}
}

// Connect fetches the configuration and the stored mapping concurrently. A
// config failure fails the connect; a missing mapping only logs.
func (d *Networked) Connect(ctx context.Context) (Snapshot, error) {
	var (
		cfg    Config
		stored mapping.Persisted
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := d.fetchConfig(gctx)
		if err != nil {
			return err
		}
		cfg = c
		return nil
	})
	g.Go(func() error {
		stored = d.fetchLedMap(gctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		d.mu.Lock()
		d.connected = false
		d.mu.Unlock()
		return Snapshot{}, err
	}

	d.mu.Lock()
	d.connected = true
	d.config = cfg
	d.persisted = stored
	d.commitPending = false
	d.mu.Unlock()

	d.log.Info().
		Str("name", cfg.Name).
		Int("total", cfg.Total).
		Bool("stored_mapping", stored != nil).
		Msg("controller connected")

	return Snapshot{Config: cfg, Mapping: stored.Clone()}, nil
}

func (d *Networked) fetchConfig(ctx context.Context) (Config, error) {
	start := time.Now()
	raw, err := d.client.FetchConfig(ctx)
	d.metrics.ObserveControllerRequest("fetch_config", err, time.Since(start))
	if err != nil {
		if errors.Is(err, wled.ErrMalformedResponse) {
			return Config{}, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
		}
		return Config{}, fmt.Errorf("%w: fetch config: %w", ErrTransport, err)
	}
	return parseConfig(raw)
}

func parseConfig(raw wled.ControllerConfig) (Config, error) {
	if len(raw.Rev) != 2 || raw.Rev[0] != SupportedRevision[0] || raw.Rev[1] != SupportedRevision[1] {
		return Config{}, fmt.Errorf("%w: got %v, want %v", ErrConfigRevisionMismatch, raw.Rev, SupportedRevision[:])
	}
	if raw.HW.LED.Total == nil {
		return Config{}, fmt.Errorf("%w: hw.led.total missing", ErrConfigInvalid)
	}
	total := *raw.HW.LED.Total
	if total < 0 {
		return Config{}, fmt.Errorf("%w: hw.led.total is %d", ErrConfigInvalid, total)
	}
	return Config{
		Revision: SupportedRevision,
		Name:     strings.TrimSpace(raw.ID.Name),
		Total:    total,
		Outputs:  raw.HW.LED.Ins,
	}, nil
}

func (d *Networked) fetchLedMap(ctx context.Context) mapping.Persisted {
	start := time.Now()
	p, err := d.client.FetchLedMap(ctx)
	d.metrics.ObserveControllerRequest("fetch_ledmap", err, time.Since(start))
	if err != nil {
		d.log.Warn().Err(err).Msg(ErrMappingAbsent.Error())
		return nil
	}
	if err := p.Validate(); err != nil {
		d.log.Warn().Err(err).Msg("stored mapping is not a permutation; seeding identity")
	}
	return p
}

// CurrentNodes seeds nodes of size total from the stored mapping, padding
// pixels the mapping does not cover with identity entries.
func (d *Networked) CurrentNodes() mapping.Nodes {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.connected {
		return mapping.Nodes{}
	}
	return mapping.Seed(d.persisted, d.config.Total)
}

// baseline is the mapping the controller currently applies. No stored file
// means identity.
func (d *Networked) baseline() mapping.Persisted {
	if d.persisted != nil {
		return d.persisted
	}
	return mapping.IdentityPersisted(d.config.Total)
}

func (d *Networked) HasPendingChanges(nodes mapping.Nodes) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return !nodes.ToPersisted().Equal(d.baseline())
}

// WriteMapping uploads the mapping for nodes. An unchanged mapping costs no
// network call. On success the known mapping is updated without re-fetching.
func (d *Networked) WriteMapping(ctx context.Context, nodes mapping.Nodes) (WriteResult, error) {
	next := nodes.ToPersisted()

	d.mu.RLock()
	connected := d.connected
	unchanged := next.Equal(d.baseline())
	pending := d.commitPending
	d.mu.RUnlock()

	if !connected {
		return WriteResult{}, ErrNotConnected
	}
	if unchanged {
		d.metrics.IncMappingWrite(metrics.WriteResultUnchanged)
		return d.result(false, pending, next), nil
	}
	if err := next.Validate(); err != nil {
		return WriteResult{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	start := time.Now()
	err := d.client.UploadLedMap(ctx, next)
	d.metrics.ObserveControllerRequest("upload_ledmap", err, time.Since(start))
	if err != nil {
		d.metrics.IncMappingWrite(metrics.WriteResultFailed)
		return WriteResult{}, fmt.Errorf("%w: upload ledmap: %w", ErrTransport, err)
	}

	d.mu.Lock()
	d.persisted = next.Clone()
	d.commitPending = true
	d.mu.Unlock()

	d.metrics.IncMappingWrite(metrics.WriteResultWritten)
	d.log.Info().Int("pixels", len(next)).Msg("ledmap written; commit pending on controller")
	return d.result(true, true, next), nil
}

func (d *Networked) result(written, pending bool, p mapping.Persisted) WriteResult {
	r := WriteResult{Written: written, CommitPending: pending, Mapping: p}
	if pending {
		r.CommitURL = d.client.SettingsURL()
	}
	return r
}

func (d *Networked) CommitPending() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.commitPending
}

// AcknowledgeCommit records that the operator applied the mapping on the controller.
func (d *Networked) AcknowledgeCommit() {
	d.mu.Lock()
	d.commitPending = false
	d.mu.Unlock()
}

// HighlightPixel lights ledIndex on the controller. At most one request is in
// flight per device; requests arriving meanwhile are dropped and report false.
func (d *Networked) HighlightPixel(ctx context.Context, ledIndex int) (bool, error) {
	d.mu.RLock()
	connected := d.connected
	d.mu.RUnlock()
	if !connected {
		return false, ErrNotConnected
	}

	if !d.highlighting.CompareAndSwap(false, true) {
		d.metrics.IncHighlightDropped()
		return false, nil
	}
	defer d.highlighting.Store(false)

	pos := d.logicalPosition(ledIndex)
	req := wled.StateRequest{
		Seg:  wled.Segment{ID: 1, Start: pos, Stop: pos + 1, Grp: 1, Spc: 0, Of: 0},
		V:    true,
		Time: d.stamp(),
	}

	start := time.Now()
	err := d.client.SetState(ctx, req)
	d.metrics.ObserveControllerRequest("highlight", err, time.Since(start))
	if err != nil {
		d.log.Error().Err(err).Int("led_index", ledIndex).Int("pos_index", pos).Msg("highlight failed")
		return true, fmt.Errorf("%w: highlight: %w", ErrTransport, err)
	}
	return true, nil
}

// logicalPosition translates a physical index to the position the controller
// addresses after applying its stored mapping. Indices the mapping does not
// contain are sent as-is.
func (d *Networked) logicalPosition(ledIndex int) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if pos := d.persisted.IndexOf(ledIndex); pos >= 0 {
		return pos
	}
	return ledIndex
}

// stamp returns unix seconds, never going backwards for this device.
func (d *Networked) stamp() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	ts := d.now().Unix()
	if ts < d.lastStamp {
		ts = d.lastStamp
	}
	d.lastStamp = ts
	return ts
}
