package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/rs/zerolog"
)

func mustRR(t *testing.T, s string) dns.RR {
	t.Helper()
	rr, err := dns.NewRR(s)
	if err != nil {
		t.Fatalf("NewRR(%q): %v", s, err)
	}
	return rr
}

func kitchenResponse(t *testing.T) *dns.Msg {
	t.Helper()
	msg := new(dns.Msg)
	msg.Response = true
	msg.Answer = []dns.RR{
		mustRR(t, "_wled._tcp.local. 120 IN PTR Kitchen._wled._tcp.local."),
	}
	msg.Extra = []dns.RR{
		mustRR(t, "Kitchen._wled._tcp.local. 120 IN SRV 0 0 80 wled-kitchen.local."),
		mustRR(t, `Kitchen._wled._tcp.local. 120 IN TXT "mac=AABBCCDDEEFF"`),
		mustRR(t, "wled-kitchen.local. 120 IN A 192.168.1.50"),
	}
	return msg
}

func TestCollector_ParsesResponse(t *testing.T) {
	col := newCollector(DefaultService)
	col.add(kitchenResponse(t))

	// A second controller answering without additional records.
	other := new(dns.Msg)
	other.Answer = []dns.RR{
		mustRR(t, "_wled._tcp.local. 120 IN PTR Attic._wled._tcp.local."),
		mustRR(t, "_http._tcp.local. 120 IN PTR Printer._http._tcp.local."),
	}
	col.add(other)

	got := col.candidates()
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %+v", got)
	}
	if got[0].Instance != "Attic" || got[0].Name != "Attic" || got[0].Address != "" {
		t.Fatalf("unexpected first candidate %+v", got[0])
	}
	k := got[1]
	if k.Instance != "Kitchen" || k.Name != "Kitchen" {
		t.Fatalf("unexpected kitchen names %+v", k)
	}
	if k.Host != "wled-kitchen.local" || k.Address != "192.168.1.50" || k.Port != 80 {
		t.Fatalf("unexpected kitchen address %+v", k)
	}
	if k.MAC != "aabbccddeeff" {
		t.Fatalf("unexpected mac %q", k.MAC)
	}
}

func TestCollector_OrdersByNameQuality(t *testing.T) {
	col := newCollector(DefaultService)
	msg := new(dns.Msg)
	msg.Answer = []dns.RR{
		mustRR(t, "_wled._tcp.local. 120 IN PTR x._wled._tcp.local."),
		mustRR(t, "_wled._tcp.local. 120 IN PTR WLED._wled._tcp.local."),
		mustRR(t, "_wled._tcp.local. 120 IN PTR Zeta._wled._tcp.local."),
	}
	col.add(msg)

	got := col.candidates()
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %+v", got)
	}
	// Operator-set names beat the factory default; unusable labels go last.
	if got[0].Name != "Zeta" || got[1].Name != "WLED" || got[2].Name != "x" {
		t.Fatalf("unexpected order %+v", got)
	}
}

func TestCollector_DuplicateAnswersCollapse(t *testing.T) {
	col := newCollector(DefaultService)
	col.add(kitchenResponse(t))
	col.add(kitchenResponse(t))
	if got := col.candidates(); len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %+v", got)
	}
}

func TestBrowse_LocalResponder(t *testing.T) {
	responder, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer responder.Close()

	resp := kitchenResponse(t)
	questions := make(chan dns.Question, 1)
	go func() {
		buf := make([]byte, dns.MaxMsgSize)
		n, from, err := responder.ReadFromUDP(buf)
		if err != nil {
			return
		}
		q := new(dns.Msg)
		if err := q.Unpack(buf[:n]); err != nil || len(q.Question) != 1 {
			return
		}
		questions <- q.Question[0]

		packed, err := resp.Pack()
		if err != nil {
			return
		}
		_, _ = responder.WriteToUDP([]byte("garbage"), from)
		_, _ = responder.WriteToUDP(packed, from)
	}()

	b := NewBrowser(zerolog.Nop(), Config{
		Addr:    responder.LocalAddr().String(),
		Timeout: 500 * time.Millisecond,
	})
	got, err := b.Browse(context.Background())
	if err != nil {
		t.Fatalf("Browse: %v", err)
	}

	select {
	case q := <-questions:
		if q.Name != DefaultService || q.Qtype != dns.TypePTR {
			t.Fatalf("unexpected question %+v", q)
		}
		if q.Qclass&unicastResponseBit == 0 {
			t.Fatalf("expected unicast-response bit, got class %d", q.Qclass)
		}
	default:
		t.Fatalf("responder never saw a query")
	}

	if len(got) != 1 || got[0].Address != "192.168.1.50" {
		t.Fatalf("unexpected candidates %+v", got)
	}
}

func TestBrowse_ContextCancelEndsEarly(t *testing.T) {
	sink, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer sink.Close()

	b := NewBrowser(zerolog.Nop(), Config{Addr: sink.LocalAddr().String(), Timeout: time.Minute})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	got, err := b.Browse(ctx)
	if err != nil {
		t.Fatalf("Browse: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no candidates, got %+v", got)
	}
	if time.Since(start) > 10*time.Second {
		t.Fatalf("expected browse to stop with the context")
	}
}
