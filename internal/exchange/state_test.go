package exchange

import (
	"testing"
	"time"
)

func TestBackoffDoublesAndCaps(t *testing.T) {
	b := &Backoff{Initial: 3 * time.Second, Max: 20 * time.Second}
	want := []time.Duration{3, 6, 12, 20, 20}
	for i, w := range want {
		if got := b.Next(); got != w*time.Second {
			t.Fatalf("step %d: got %v want %v", i, got, w*time.Second)
		}
	}
	b.Reset()
	if got := b.Next(); got != 3*time.Second {
		t.Fatalf("after reset got %v", got)
	}
}

func TestBackoffZeroValue(t *testing.T) {
	var b Backoff
	if got := b.Next(); got != time.Second {
		t.Fatalf("zero value first delay %v", got)
	}
	if got := b.Next(); got != time.Second {
		t.Fatalf("max clamps to initial, got %v", got)
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateDisconnected: "disconnected",
		StateConnecting:   "connecting",
		StateSubscribed:   "subscribed",
		StateStreaming:    "streaming",
		State(42):         "disconnected",
	}
	for s, want := range cases {
		if s.String() != want {
			t.Fatalf("%d: got %s want %s", s, s.String(), want)
		}
	}
}
