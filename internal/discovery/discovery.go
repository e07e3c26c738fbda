// Package discovery finds LED controllers on the local network through a
// one-shot mDNS browse.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/rs/zerolog"

	"wled_mapper/core-go/internal/naming"
)

const (
	DefaultService = "_wled._tcp.local."
	DefaultAddr    = "224.0.0.251:5353"

	// qclass bit asking responders to answer unicast to the querying port.
	unicastResponseBit = 1 << 15
)

// Config describes the browse. Zero values pick defaults.
type Config struct {
	Service string
	Timeout time.Duration
	Addr    string
}

// Candidate is one controller that answered the browse.
type Candidate struct {
	Instance string `json:"instance"`
	Name     string `json:"name"`
	Host     string `json:"host,omitempty"`
	Address  string `json:"address,omitempty"`
	Port     int    `json:"port,omitempty"`
	MAC      string `json:"mac,omitempty"`
}

// Browser sends mDNS queries for one service type.
type Browser struct {
	log zerolog.Logger
	cfg Config
}

func NewBrowser(log zerolog.Logger, cfg Config) *Browser {
	cfg.Service = strings.TrimSpace(cfg.Service)
	if cfg.Service == "" {
		cfg.Service = DefaultService
	}
	cfg.Service = dns.Fqdn(cfg.Service)
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = DefaultAddr
	}
	return &Browser{log: log, cfg: cfg}
}

// Browse sends one PTR query and collects answers until the timeout or ctx ends.
func (b *Browser) Browse(ctx context.Context) ([]Candidate, error) {
	raddr, err := net.ResolveUDPAddr("udp4", b.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("resolve mdns address: %w", err)
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero})
	if err != nil {
		return nil, fmt.Errorf("open mdns socket: %w", err)
	}
	defer conn.Close()

	q := new(dns.Msg)
	q.SetQuestion(b.cfg.Service, dns.TypePTR)
	q.Id = 0
	q.RecursionDesired = false
	q.Question[0].Qclass |= unicastResponseBit
	packed, err := q.Pack()
	if err != nil {
		return nil, err
	}
	if _, err := conn.WriteToUDP(packed, raddr); err != nil {
		return nil, fmt.Errorf("send mdns query: %w", err)
	}

	deadline := time.Now().Add(b.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	col := newCollector(b.cfg.Service)
	buf := make([]byte, dns.MaxMsgSize)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				break
			}
			return nil, fmt.Errorf("read mdns response: %w", err)
		}
		msg := new(dns.Msg)
		if err := msg.Unpack(buf[:n]); err != nil {
			b.log.Debug().Err(err).Msg("ignoring malformed mdns packet")
			continue
		}
		col.add(msg)
	}

	out := col.candidates()
	b.log.Debug().Int("controllers", len(out)).Str("service", b.cfg.Service).Msg("mdns browse finished")
	return out, nil
}

type collector struct {
	service   string
	instances map[string]string
	srv       map[string]*dns.SRV
	txt       map[string][]string
	hosts     map[string]string
}

func newCollector(service string) *collector {
	return &collector{
		service:   strings.ToLower(dns.Fqdn(service)),
		instances: make(map[string]string),
		srv:       make(map[string]*dns.SRV),
		txt:       make(map[string][]string),
		hosts:     make(map[string]string),
	}
}

func (c *collector) add(msg *dns.Msg) {
	records := make([]dns.RR, 0, len(msg.Answer)+len(msg.Extra))
	records = append(records, msg.Answer...)
	records = append(records, msg.Extra...)

	for _, rr := range records {
		key := strings.ToLower(rr.Header().Name)
		switch r := rr.(type) {
		case *dns.PTR:
			if key == c.service {
				c.instances[strings.ToLower(r.Ptr)] = r.Ptr
			}
		case *dns.SRV:
			c.srv[key] = r
		case *dns.TXT:
			c.txt[key] = r.Txt
		case *dns.A:
			c.hosts[key] = r.A.String()
		}
	}
}

func (c *collector) candidates() []Candidate {
	byKey := make(map[string]Candidate, len(c.instances))
	ranked := make([]naming.Candidate, 0, len(c.instances))
	for key, instance := range c.instances {
		cand := Candidate{Instance: c.label(instance)}
		if srv, ok := c.srv[key]; ok {
			cand.Host = strings.TrimSuffix(srv.Target, ".")
			cand.Port = int(srv.Port)
			cand.Address = c.hosts[strings.ToLower(srv.Target)]
		}
		for _, kv := range c.txt[key] {
			if v, ok := strings.CutPrefix(kv, "mac="); ok {
				cand.MAC = strings.ToLower(v)
			}
		}

		name, source := displayName(cand)
		cand.Name = name
		byKey[key] = cand
		ranked = append(ranked, naming.Candidate{Name: name, Source: source, Key: key})
	}

	// Map order is random; fix it before the stable sort so ties are repeatable.
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Key < ranked[j].Key })

	out := make([]Candidate, 0, len(ranked))
	for _, nc := range naming.SortCandidatesForDisplay(ranked) {
		out = append(out, byKey[nc.Key])
	}
	return out
}

// displayName picks the best label for cand and the source it came from.
func displayName(cand Candidate) (string, string) {
	sources := []naming.Candidate{
		{Name: cand.Instance, Source: naming.SourceMDNSInstance},
		{Name: cand.Host, Source: naming.SourceMDNSHost},
		{Name: cand.Address, Source: naming.SourceAddress},
	}
	name, ok := naming.ChooseBestDisplayName(sources)
	if !ok {
		return cand.Instance, naming.SourceMDNSInstance
	}
	for _, s := range sources {
		if display, _, usable := naming.NormalizeCandidate(s.Source, s.Name); usable && display == name {
			return name, s.Source
		}
	}
	return name, naming.SourceMDNSInstance
}

// label strips the service suffix from an instance name.
func (c *collector) label(instance string) string {
	lower := strings.ToLower(instance)
	if strings.HasSuffix(lower, "."+c.service) {
		return instance[:len(instance)-len(c.service)-1]
	}
	return strings.TrimSuffix(instance, ".")
}
