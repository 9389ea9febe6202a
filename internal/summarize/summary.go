// Package summarize turns a finished transcript into one structured
// summary via a chunked remote LLM pipeline.
package summarize

import (
	"encoding/json"
	"fmt"
)

// Ref is a timestamp range, in seconds from session start, pointing back
// into the original transcript. Refs are set during chunk summarization
// and are never renormalized by the merge step.
type Ref struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type Point struct {
	Text string `json:"text"`
	Refs []Ref  `json:"refs,omitempty"`
}

type ActionItem struct {
	Text  string `json:"text"`
	Owner string `json:"owner,omitempty"`
	Refs  []Ref  `json:"refs,omitempty"`
}

type Decision struct {
	Text string `json:"text"`
	Refs []Ref  `json:"refs,omitempty"`
}

type Quote struct {
	Text    string `json:"text"`
	Speaker string `json:"speaker,omitempty"`
	Refs    []Ref  `json:"refs,omitempty"`
}

type TimelineEntry struct {
	Text string `json:"text"`
	Refs []Ref  `json:"refs,omitempty"`
}

// Summary is the structured result of summarizing one transcript. It is
// produced once per finished transcription; regenerating discards the
// previous value.
type Summary struct {
	Overview    string          `json:"overview"`
	KeyPoints   []Point         `json:"keyPoints"`
	ActionItems []ActionItem    `json:"actionItems"`
	Decisions   []Decision      `json:"decisions"`
	Quotes      []Quote         `json:"quotes"`
	Timeline    []TimelineEntry `json:"timeline"`
	Locale      string          `json:"locale"`
}

// Empty returns the default summary used for an empty transcript, when
// the remote processor is never called at all.
func Empty(locale string) Summary {
	return Summary{Locale: locale}
}

// decodeSummary parses a model response strictly. A JSON parse failure
// and a shape violation are distinct error kinds so callers can tell
// "garbage" from "valid JSON with a broken invariant".
func decodeSummary(data []byte, chunkIndex int) (Summary, error) {
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return Summary{}, &ProcessingError{
			Kind:       KindMalformedResponse,
			ChunkIndex: chunkIndex,
			Err:        fmt.Errorf("decode summary: %w", err),
		}
	}
	if err := s.validateShape(); err != nil {
		return Summary{}, &ProcessingError{
			Kind:       KindShapeInvariant,
			ChunkIndex: chunkIndex,
			Err:        err,
		}
	}
	return s, nil
}

func (s Summary) validateShape() error {
	if s.Overview == "" {
		return fmt.Errorf("summary overview is empty")
	}
	check := func(refs []Ref, where string) error {
		for _, r := range refs {
			if r.End < r.Start || r.Start < 0 {
				return fmt.Errorf("%s: invalid ref [%v, %v]", where, r.Start, r.End)
			}
		}
		return nil
	}
	for _, p := range s.KeyPoints {
		if err := check(p.Refs, "key point"); err != nil {
			return err
		}
	}
	for _, a := range s.ActionItems {
		if err := check(a.Refs, "action item"); err != nil {
			return err
		}
	}
	for _, d := range s.Decisions {
		if err := check(d.Refs, "decision"); err != nil {
			return err
		}
	}
	for _, q := range s.Quotes {
		if err := check(q.Refs, "quote"); err != nil {
			return err
		}
	}
	for _, t := range s.Timeline {
		if err := check(t.Refs, "timeline entry"); err != nil {
			return err
		}
	}
	return nil
}
