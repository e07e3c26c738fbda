package naming

import (
	"net/netip"
	"sort"
	"strings"
)

const (
	SourceConfig       = "config"
	SourceMDNSInstance = "mdns_instance"
	SourceMDNSHost     = "mdns_host"
	SourceAddress      = "address"
)

// minScore is the quality bar for a usable controller name.
const minScore = 30

type Candidate struct {
	Name   string
	Source string
	// Key is carried through untouched so callers can map sorted results back.
	Key string
}

type normalizedCandidate struct {
	Source      string
	DisplayName string
	Score       int
}

func NormalizeCandidate(source, rawName string) (displayName string, score int, ok bool) {
	source = strings.ToLower(strings.TrimSpace(source))
	name := strings.TrimSpace(rawName)
	name = strings.TrimSuffix(name, ".")
	if name == "" {
		return "", 0, false
	}

	display := name
	switch source {
	case SourceMDNSInstance:
		display = strings.ReplaceAll(display, `\032`, " ")
		display = strings.ReplaceAll(display, `\ `, " ")
	case SourceMDNSHost:
		display = strings.ToLower(display)
		display = strings.TrimSuffix(display, ".local")
		if i := strings.Index(display, "."); i > 0 {
			display = display[:i]
		}
	}
	display = strings.TrimSpace(display)

	s := scoreCandidate(source, display)
	if s < minScore {
		return display, s, false
	}
	return display, s, true
}

func ChooseBestDisplayName(candidates []Candidate) (string, bool) {
	best := normalizedCandidate{Score: -1_000_000}

	for _, c := range candidates {
		display, score, ok := NormalizeCandidate(c.Source, c.Name)
		if !ok {
			continue
		}
		next := normalizedCandidate{
			Source:      c.Source,
			DisplayName: display,
			Score:       score,
		}
		if betterCandidate(next, best) {
			best = next
		}
	}

	if best.Score < minScore || best.DisplayName == "" {
		return "", false
	}
	return best.DisplayName, true
}

// SortCandidatesForDisplay orders candidates best first; unusable ones go last.
func SortCandidatesForDisplay(candidates []Candidate) []Candidate {
	type scored struct {
		orig       Candidate
		normalized normalizedCandidate
		ok         bool
	}

	scoredList := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		display, score, ok := NormalizeCandidate(c.Source, c.Name)
		scoredList = append(scoredList, scored{
			orig:       c,
			normalized: normalizedCandidate{Source: c.Source, DisplayName: display, Score: score},
			ok:         ok,
		})
	}

	sort.SliceStable(scoredList, func(i, j int) bool {
		ai := scoredList[i]
		aj := scoredList[j]
		if ai.ok != aj.ok {
			return ai.ok
		}
		return betterCandidate(ai.normalized, aj.normalized)
	})

	out := make([]Candidate, 0, len(scoredList))
	for _, item := range scoredList {
		out = append(out, item.orig)
	}
	return out
}

func betterCandidate(a, b normalizedCandidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if len(a.DisplayName) != len(b.DisplayName) {
		return len(a.DisplayName) < len(b.DisplayName)
	}
	return a.DisplayName < b.DisplayName
}

func scoreCandidate(source, display string) int {
	base := 50
	switch source {
	case SourceConfig:
		base = 95
	case SourceMDNSInstance:
		base = 85
	case SourceMDNSHost:
		base = 80
	case SourceAddress:
		base = 40
	}

	if len(display) < 2 {
		base -= 70
	}

	// Factory default name; anything the operator set is more useful.
	if strings.EqualFold(display, "wled") {
		base -= 30
	}

	if looksAddress(display) && source != SourceAddress {
		base -= 40
	}

	return base
}

func looksAddress(value string) bool {
	if _, err := netip.ParseAddr(value); err == nil {
		return true
	}
	if _, err := netip.ParseAddrPort(value); err == nil {
		return true
	}
	return false
}
