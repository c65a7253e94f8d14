package registry

import (
	"errors"
	"math/rand"
	"testing"
)

func TestRandomSelectorEmpty(t *testing.T) {
	s := NewRandomSelector(rand.New(rand.NewSource(1)))
	if _, err := s.Pick(nil); !errors.Is(err, ErrNoValidHost) {
		t.Errorf("Pick(nil) = %v, want ErrNoValidHost", err)
	}
}

func TestRandomSelectorSingleHost(t *testing.T) {
	s := NewRandomSelector(rand.New(rand.NewSource(1)))
	host, err := s.Pick([]string{"agent-1"})
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	if host != "agent-1" {
		t.Errorf("host = %q, want agent-1", host)
	}
}

func TestRandomSelectorDeterministicWithSeed(t *testing.T) {
	hosts := []string{"a", "b", "c", "d"}

	s1 := NewRandomSelector(rand.New(rand.NewSource(42)))
	s2 := NewRandomSelector(rand.New(rand.NewSource(42)))
	for i := 0; i < 20; i++ {
		h1, _ := s1.Pick(hosts)
		h2, _ := s2.Pick(hosts)
		if h1 != h2 {
			t.Fatalf("pick %d diverged: %q vs %q", i, h1, h2)
		}
	}
}

func TestRandomSelectorCoversHosts(t *testing.T) {
	hosts := []string{"a", "b", "c"}
	s := NewRandomSelector(rand.New(rand.NewSource(7)))

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		h, err := s.Pick(hosts)
		if err != nil {
			t.Fatalf("pick: %v", err)
		}
		seen[h] = true
	}
	if len(seen) != 3 {
		t.Errorf("seen %d hosts over 100 picks, want 3", len(seen))
	}
}

func TestRoundRobinSelector(t *testing.T) {
	s := NewRoundRobinSelector()
	hosts := []string{"a", "b", "c"}

	want := []string{"a", "b", "c", "a", "b"}
	for i, w := range want {
		got, err := s.Pick(hosts)
		if err != nil {
			t.Fatalf("pick %d: %v", i, err)
		}
		if got != w {
			t.Errorf("pick %d = %q, want %q", i, got, w)
		}
	}
}

func TestRoundRobinSelectorEmpty(t *testing.T) {
	s := NewRoundRobinSelector()
	if _, err := s.Pick(nil); !errors.Is(err, ErrNoValidHost) {
		t.Errorf("Pick(nil) = %v, want ErrNoValidHost", err)
	}
}

func TestRoundRobinSurvivesSnapshotShrink(t *testing.T) {
	s := NewRoundRobinSelector()
	s.Pick([]string{"a", "b", "c"})
	s.Pick([]string{"a", "b", "c"})

	// Snapshot shrank; the cursor wraps instead of going out of range.
	host, err := s.Pick([]string{"a"})
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	if host != "a" {
		t.Errorf("host = %q, want a", host)
	}
}

func TestTopicFor(t *testing.T) {
	if got := TopicFor("iotronic.conductors", "cond-a"); got != "iotronic.conductors.cond-a" {
		t.Errorf("TopicFor = %q", got)
	}
}
