package gateway

import (
	"testing"

	"github.com/sugawarayuuta/sonnet"
)

func TestFlexFloat(t *testing.T) {
	cases := []struct {
		raw   string
		value float64
		set   bool
	}{
		{`{"p":"1.25"}`, 1.25, true},
		{`{"p":1.25}`, 1.25, true},
		{`{"p":" 3 "}`, 3, true},
		{`{"p":""}`, 0, false},
		{`{"p":null}`, 0, false},
		{`{}`, 0, false},
	}
	for _, c := range cases {
		var v struct {
			P FlexFloat `json:"p"`
		}
		if err := sonnet.Unmarshal([]byte(c.raw), &v); err != nil {
			t.Fatalf("%s: %v", c.raw, err)
		}
		if v.P.Value != c.value || v.P.Set != c.set {
			t.Fatalf("%s: got %+v", c.raw, v.P)
		}
	}
}

func TestFlexFloatRejectsGarbage(t *testing.T) {
	var v struct {
		P FlexFloat `json:"p"`
	}
	for _, raw := range []string{`{"p":"abc"}`, `{"p":true}`, `{"p":[1]}`} {
		if err := sonnet.Unmarshal([]byte(raw), &v); err == nil {
			t.Fatalf("%s: expected error", raw)
		}
	}
}

func TestChunk(t *testing.T) {
	got := chunk([]string{"a", "b", "c", "d", "e"}, 2)
	if len(got) != 3 || len(got[2]) != 1 || got[2][0] != "e" {
		t.Fatalf("unexpected chunks %v", got)
	}
	if chunk(nil, 10) != nil {
		t.Fatalf("empty input must yield no batches")
	}
}
