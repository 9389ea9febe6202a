package transcript

import (
	"strings"
	"testing"
	"time"
)

func TestNewSegment(t *testing.T) {
	seg := NewSegment("Speaker 1", "hello world", 2*time.Second, 5*time.Second)

	if seg.ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Errorf("NewSegment() did not assign an ID")
	}
	if seg.Duration() != 3*time.Second {
		t.Errorf("Duration() = %v, want 3s", seg.Duration())
	}
	if err := seg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestSegmentValidate(t *testing.T) {
	tests := []struct {
		name    string
		start   time.Duration
		end     time.Duration
		wantErr bool
	}{
		{"valid", 0, time.Second, false},
		{"zero length", time.Second, time.Second, false},
		{"negative start", -time.Second, time.Second, true},
		{"end before start", 5 * time.Second, 2 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seg := NewSegment("", "text", tt.start, tt.end)
			err := seg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := []Segment{
		NewSegment("Speaker 0", "first", 0, 1500*time.Millisecond),
		NewSegment("Speaker 1", "second", 1500*time.Millisecond, 4*time.Second),
	}

	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("Decode() returned %d segments, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i].ID != in[i].ID {
			t.Errorf("segment %d: ID = %s, want %s", i, out[i].ID, in[i].ID)
		}
		if out[i].Text != in[i].Text {
			t.Errorf("segment %d: Text = %q, want %q", i, out[i].Text, in[i].Text)
		}
		if out[i].StartTime != in[i].StartTime || out[i].EndTime != in[i].EndTime {
			t.Errorf("segment %d: times [%v, %v], want [%v, %v]",
				i, out[i].StartTime, out[i].EndTime, in[i].StartTime, in[i].EndTime)
		}
	}
}

func TestDecodeTimesInSeconds(t *testing.T) {
	data := []byte(`[{"text":"hi","startTime":12.5,"endTime":48.0}]`)

	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if out[0].StartTime != 12500*time.Millisecond {
		t.Errorf("StartTime = %v, want 12.5s", out[0].StartTime)
	}
	if out[0].EndTime != 48*time.Second {
		t.Errorf("EndTime = %v, want 48s", out[0].EndTime)
	}
	// Missing IDs are assigned on decode so downstream stages can always
	// key on them.
	if out[0].ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Errorf("Decode() left segment without an ID")
	}
}

func TestDecodeSortsByStart(t *testing.T) {
	data := []byte(`[
		{"text":"later","startTime":10,"endTime":12},
		{"text":"earlier","startTime":1,"endTime":3}
	]`)

	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if out[0].Text != "earlier" || out[1].Text != "later" {
		t.Errorf("Decode() did not sort by start time: %q, %q", out[0].Text, out[1].Text)
	}
}

func TestDecodeRejectsInvalidTiming(t *testing.T) {
	data := []byte(`[{"text":"bad","startTime":5,"endTime":2}]`)

	if _, err := Decode(data); err == nil {
		t.Errorf("Decode() accepted end before start")
	}
}

func TestSortByStartStable(t *testing.T) {
	a := NewSegment("", "a", time.Second, 2*time.Second)
	b := NewSegment("", "b", time.Second, 3*time.Second)
	segments := []Segment{a, b}

	SortByStart(segments)

	// Equal start times keep their original order.
	if segments[0].Text != "a" || segments[1].Text != "b" {
		t.Errorf("SortByStart() reordered equal-start segments")
	}
}

func TestTotalChars(t *testing.T) {
	segments := []Segment{
		NewSegment("", strings.Repeat("x", 10), 0, time.Second),
		NewSegment("", strings.Repeat("y", 5), time.Second, 2*time.Second),
	}
	if got := TotalChars(segments); got != 15 {
		t.Errorf("TotalChars() = %d, want 15", got)
	}
}
