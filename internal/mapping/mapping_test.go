package mapping

import (
	"errors"
	"math/rand"
	"testing"
)

func samePersisted(a, b Persisted) bool { return a.Equal(b) }

func TestReorder_MoveLastToFront(t *testing.T) {
	nodes := Identity(5)

	got, err := nodes.Reorder(4, 0)
	if err != nil {
		t.Fatalf("Reorder: %v", err)
	}

	want := Persisted{4, 0, 1, 2, 3}
	if p := got.ToPersisted(); !samePersisted(p, want) {
		t.Fatalf("expected %v, got %v", want, p)
	}
	if p := nodes.ToPersisted(); !samePersisted(p, IdentityPersisted(5)) {
		t.Fatalf("expected input node set untouched, got %v", p)
	}
}

func TestReorder_MoveForwardShiftsBack(t *testing.T) {
	got, err := Identity(6).Reorder(1, 4)
	if err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	want := Persisted{0, 2, 3, 4, 1, 5}
	if p := got.ToPersisted(); !samePersisted(p, want) {
		t.Fatalf("expected %v, got %v", want, p)
	}
	// Nodes outside [1,4] are untouched.
	if got[0].PosIndex != 0 || got[5].PosIndex != 5 {
		t.Fatalf("expected nodes outside the interval untouched, got %+v", got)
	}
}

func TestReorder_SamePositionIsNoop(t *testing.T) {
	nodes := Seed(Persisted{2, 0, 1, 3}, 4)
	got, err := nodes.Reorder(0, 1)
	if err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	for i := range nodes {
		if got[i] != nodes[i] {
			t.Fatalf("expected no change, got %+v want %+v", got, nodes)
		}
	}
}

func TestReorder_ClampsPosition(t *testing.T) {
	got, err := Identity(4).Reorder(0, 99)
	if err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	if p := got.ToPersisted(); !samePersisted(p, Persisted{1, 2, 3, 0}) {
		t.Fatalf("expected clamp to last slot, got %v", p)
	}

	got, err = Identity(4).Reorder(3, -7)
	if err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	if p := got.ToPersisted(); !samePersisted(p, Persisted{3, 0, 1, 2}) {
		t.Fatalf("expected clamp to first slot, got %v", p)
	}
}

func TestReorder_UnknownPixel(t *testing.T) {
	_, err := Identity(3).Reorder(7, 0)
	if !errors.Is(err, ErrUnknownPixel) {
		t.Fatalf("expected ErrUnknownPixel, got %v", err)
	}
	_, err = Nodes{}.Reorder(0, 0)
	if !errors.Is(err, ErrUnknownPixel) {
		t.Fatalf("expected ErrUnknownPixel on empty set, got %v", err)
	}
}

func TestReorder_RandomSequenceKeepsPermutation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const total = 37
	nodes := Identity(total)

	for i := 0; i < 2000; i++ {
		led := rng.Intn(total)
		pos := rng.Intn(total+10) - 5
		before := nodes.ToPersisted()

		next, err := nodes.Reorder(led, pos)
		if err != nil {
			t.Fatalf("step %d: Reorder: %v", i, err)
		}
		if err := next.Validate(); err != nil {
			t.Fatalf("step %d: invariant broken: %v", i, err)
		}

		// Equivalent to removing led from the ordering and reinserting it.
		want := moveElement(before, before.IndexOf(led), clamp(pos, 0, total-1))
		if got := next.ToPersisted(); !samePersisted(got, want) {
			t.Fatalf("step %d: expected %v, got %v", i, want, got)
		}
		nodes = next
	}
}

func moveElement(p Persisted, from, to int) Persisted {
	v := p[from]
	out := make(Persisted, 0, len(p))
	out = append(out, p[:from]...)
	out = append(out, p[from+1:]...)
	out = append(out[:to], append(Persisted{v}, out[to:]...)...)
	return out
}

func TestSeed_RoundTrip(t *testing.T) {
	stored := Persisted{3, 1, 4, 0, 2}
	nodes := Seed(stored, len(stored))
	if err := nodes.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got := nodes.ToPersisted(); !samePersisted(got, stored) {
		t.Fatalf("expected round trip %v, got %v", stored, got)
	}
	for i, n := range nodes {
		if n.LedIndex != i {
			t.Fatalf("expected nodes ordered by led index, got %+v", nodes)
		}
	}
}

func TestSeed_InvertsMapping(t *testing.T) {
	nodes := Seed(Persisted{2, 0, 1}, 3)
	want := Nodes{{LedIndex: 0, PosIndex: 1}, {LedIndex: 1, PosIndex: 2}, {LedIndex: 2, PosIndex: 0}}
	for i := range want {
		if nodes[i] != want[i] {
			t.Fatalf("expected %+v, got %+v", want, nodes)
		}
	}
}

func TestSeed_PadsGrownStrip(t *testing.T) {
	nodes := Seed(Persisted{1, 0}, 4)
	want := Persisted{1, 0, 2, 3}
	if got := nodes.ToPersisted(); !samePersisted(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestSeed_ShrunkStripStaysDense(t *testing.T) {
	nodes := Seed(Persisted{4, 0, 3, 1, 2}, 3)
	if err := nodes.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	want := Persisted{0, 1, 2}
	if got := nodes.ToPersisted(); !samePersisted(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	nodes = Seed(Persisted{2, 4, 0, 3, 1}, 3)
	if got := nodes.ToPersisted(); !samePersisted(got, Persisted{2, 0, 1}) {
		t.Fatalf("expected relative order kept, got %v", got)
	}
}

func TestSeed_InvalidFallsBackToIdentity(t *testing.T) {
	nodes := Seed(Persisted{0, 0, 5}, 3)
	if got := nodes.ToPersisted(); !samePersisted(got, IdentityPersisted(3)) {
		t.Fatalf("expected identity, got %v", got)
	}
	if got := Seed(nil, 0); len(got) != 0 {
		t.Fatalf("expected empty node set, got %v", got)
	}
}

func TestPersisted_Validate(t *testing.T) {
	cases := []struct {
		name string
		p    Persisted
		ok   bool
	}{
		{"empty", Persisted{}, true},
		{"identity", Persisted{0, 1, 2}, true},
		{"shuffled", Persisted{2, 0, 1}, true},
		{"duplicate", Persisted{0, 0, 1}, false},
		{"out of range", Persisted{0, 3, 1}, false},
		{"negative", Persisted{-1, 0}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.p.Validate()
			if tc.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalidMapping) {
				t.Fatalf("expected ErrInvalidMapping, got %v", err)
			}
		})
	}
}

func TestPersisted_EqualAndIndexOf(t *testing.T) {
	if !(Persisted{1, 2}).Equal(Persisted{1, 2}) {
		t.Fatalf("expected equal")
	}
	if (Persisted{1, 2}).Equal(Persisted{1, 2, 3}) {
		t.Fatalf("expected length mismatch to differ")
	}
	if (Persisted{1, 2}).Equal(Persisted{2, 1}) {
		t.Fatalf("expected element mismatch to differ")
	}
	if got := (Persisted{4, 0, 1}).IndexOf(0); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := (Persisted{4, 0, 1}).IndexOf(9); got != -1 {
		t.Fatalf("expected -1, got %d", got)
	}
}

func TestNodes_Validate(t *testing.T) {
	if err := (Nodes{{LedIndex: 0, PosIndex: 0}, {LedIndex: 1, PosIndex: 0}}).Validate(); !errors.Is(err, ErrInvalidMapping) {
		t.Fatalf("expected duplicate position to fail, got %v", err)
	}
	if err := (Nodes{{LedIndex: 0, PosIndex: 1}, {LedIndex: 0, PosIndex: 0}}).Validate(); !errors.Is(err, ErrInvalidMapping) {
		t.Fatalf("expected duplicate led to fail, got %v", err)
	}
}
