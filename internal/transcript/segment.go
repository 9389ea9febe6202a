package transcript

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Segment is one timed utterance of a transcript. StartTime and EndTime are
// offsets from the start of the capture session, not wall-clock times.
type Segment struct {
	ID        uuid.UUID
	Speaker   string
	Text      string
	StartTime time.Duration
	EndTime   time.Duration
}

// NewSegment creates a segment with a fresh ID.
func NewSegment(speaker, text string, start, end time.Duration) Segment {
	return Segment{
		ID:        uuid.New(),
		Speaker:   speaker,
		Text:      text,
		StartTime: start,
		EndTime:   end,
	}
}

// Validate checks the per-segment timing invariant.
func (s Segment) Validate() error {
	if s.StartTime < 0 {
		return fmt.Errorf("segment %s: negative start time %v", s.ID, s.StartTime)
	}
	if s.EndTime < s.StartTime {
		return fmt.Errorf("segment %s: end time %v before start time %v", s.ID, s.EndTime, s.StartTime)
	}
	return nil
}

// Duration returns the segment span.
func (s Segment) Duration() time.Duration {
	return s.EndTime - s.StartTime
}

// SortByStart orders segments by start time in place. Ordering by start
// time is an invariant every consumer of a transcript relies on.
func SortByStart(segments []Segment) {
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].StartTime < segments[j].StartTime
	})
}

// TotalChars returns the cumulative text length of segments, in runes.
func TotalChars(segments []Segment) int {
	n := 0
	for _, s := range segments {
		n += utf8.RuneCountInString(s.Text)
	}
	return n
}

// segmentJSON is the persisted artifact shape: times serialize as seconds.
type segmentJSON struct {
	ID        string  `json:"id,omitempty"`
	Speaker   string  `json:"speaker,omitempty"`
	Text      string  `json:"text"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
}

func (s Segment) MarshalJSON() ([]byte, error) {
	return json.Marshal(segmentJSON{
		ID:        s.ID.String(),
		Speaker:   s.Speaker,
		Text:      s.Text,
		StartTime: s.StartTime.Seconds(),
		EndTime:   s.EndTime.Seconds(),
	})
}

func (s *Segment) UnmarshalJSON(data []byte) error {
	var raw segmentJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id := uuid.Nil
	if raw.ID != "" {
		parsed, err := uuid.Parse(raw.ID)
		if err != nil {
			return fmt.Errorf("parse segment id: %w", err)
		}
		id = parsed
	}
	if id == uuid.Nil {
		id = uuid.New()
	}
	s.ID = id
	s.Speaker = raw.Speaker
	s.Text = raw.Text
	s.StartTime = time.Duration(raw.StartTime * float64(time.Second))
	s.EndTime = time.Duration(raw.EndTime * float64(time.Second))
	return nil
}

// Encode serializes segments as the ordered JSON array artifact.
func Encode(segments []Segment) ([]byte, error) {
	return json.MarshalIndent(segments, "", "  ")
}

// Decode parses the JSON array artifact and enforces ordering and timing
// invariants on the result.
func Decode(data []byte) ([]Segment, error) {
	var segments []Segment
	if err := json.Unmarshal(data, &segments); err != nil {
		return nil, fmt.Errorf("parse transcript: %w", err)
	}
	for _, s := range segments {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	SortByStart(segments)
	return segments, nil
}
