package wled

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"wled_mapper/core-go/internal/mapping"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL, Config{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClient_Host(t *testing.T) {
	c, err := NewClient(" 10.0.0.5:8080 ", Config{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.Host() != "10.0.0.5:8080" {
		t.Fatalf("expected host 10.0.0.5:8080, got %q", c.Host())
	}
	if got := c.SettingsURL(); got != "http://10.0.0.5:8080/settings/leds" {
		t.Fatalf("unexpected settings url %q", got)
	}

	c, err = NewClient("wled.local", Config{Scheme: "HTTPS"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if got := c.url(pathState); got != "https://wled.local/json/si" {
		t.Fatalf("unexpected state url %q", got)
	}

	if _, err := NewClient("  ", Config{}); err == nil {
		t.Fatalf("expected empty host to be rejected")
	}
}

func TestFetchConfig(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/cfg.json" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.String())
		}
		_, _ = io.WriteString(w, `{"rev":[1,0],"id":{"name":"Desk","mdns":"wled-desk"},"hw":{"led":{"total":30,"ins":[{"start":0,"len":30,"order":0,"rev":false}]}}}`)
	}))

	cfg, err := c.FetchConfig(context.Background())
	if err != nil {
		t.Fatalf("FetchConfig: %v", err)
	}
	if len(cfg.Rev) != 2 || cfg.Rev[0] != 1 || cfg.Rev[1] != 0 {
		t.Fatalf("unexpected rev %v", cfg.Rev)
	}
	if cfg.HW.LED.Total == nil || *cfg.HW.LED.Total != 30 {
		t.Fatalf("unexpected total %v", cfg.HW.LED.Total)
	}
	if cfg.ID.Name != "Desk" || len(cfg.HW.LED.Ins) != 1 || cfg.HW.LED.Ins[0].Len != 30 {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestFetchConfig_Malformed(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html>`)
	}))
	if _, err := c.FetchConfig(context.Background()); !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestFetchLedMap(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/edit" || r.URL.Query().Get("edit") != "ledmap.json" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		_, _ = io.WriteString(w, `{"map":[2,0,1]}`)
	}))

	p, err := c.FetchLedMap(context.Background())
	if err != nil {
		t.Fatalf("FetchLedMap: %v", err)
	}
	if !p.Equal(mapping.Persisted{2, 0, 1}) {
		t.Fatalf("unexpected map %v", p)
	}
}

func TestFetchLedMap_NotFound(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler())

	_, err := c.FetchLedMap(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Fatalf("expected StatusError 404, got %v", err)
	}
}

func TestUploadLedMap(t *testing.T) {
	var gotName, gotType string
	var got mapping.LedMap
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/edit" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		file, header, err := r.FormFile("data")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		gotName = header.Filename
		gotType = header.Header.Get("Content-Type")
		if err := json.NewDecoder(file).Decode(&got); err != nil {
			t.Errorf("decode upload: %v", err)
		}
	}))

	if err := c.UploadLedMap(context.Background(), mapping.Persisted{4, 0, 1, 2, 3}); err != nil {
		t.Fatalf("UploadLedMap: %v", err)
	}
	if gotName != "ledmap.json" {
		t.Fatalf("expected ledmap.json filename, got %q", gotName)
	}
	if gotType != "application/json" {
		t.Fatalf("expected application/json part, got %q", gotType)
	}
	if !got.Map.Equal(mapping.Persisted{4, 0, 1, 2, 3}) {
		t.Fatalf("unexpected uploaded map %v", got.Map)
	}
}

func TestUploadLedMap_ServerError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "disk full", http.StatusInternalServerError)
	}))

	err := c.UploadLedMap(context.Background(), mapping.Persisted{0})
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected StatusError 500, got %v", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("500 must not match ErrNotFound")
	}
}

func TestSetState(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/json/si" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
			t.Errorf("unexpected content-type %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = io.WriteString(w, `{"success":true}`)
	}))

	err := c.SetState(context.Background(), StateRequest{
		Seg:  Segment{ID: 1, Start: 3, Stop: 4, Grp: 1},
		V:    true,
		Time: 1700000000,
	})
	if err != nil {
		t.Fatalf("SetState: %v", err)
	}
	seg, ok := body["seg"].(map[string]any)
	if !ok {
		t.Fatalf("expected seg object, got %v", body)
	}
	if seg["start"] != float64(3) || seg["stop"] != float64(4) || seg["id"] != float64(1) || seg["grp"] != float64(1) {
		t.Fatalf("unexpected segment %v", seg)
	}
	if _, ok := seg["spc"]; !ok {
		t.Fatalf("expected spc to be sent, got %v", seg)
	}
	if body["v"] != true || body["time"] != float64(1700000000) {
		t.Fatalf("unexpected body %v", body)
	}
}
