// Package chunker partitions a finished, time-ordered transcript into
// bounded windows, each small enough for one remote request.
package chunker

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/memovox/memovox/internal/transcript"
)

// Chunk is a contiguous run of transcript segments belonging to one
// partition of the transcript. Index records the chunk's position so
// out-of-order partial results can be reassembled later. Timestamps
// inside a chunk stay absolute session time; nothing downstream ever
// renormalizes them.
type Chunk struct {
	Index    int
	Segments []transcript.Segment
}

// Start returns the start time of the first segment.
func (c Chunk) Start() time.Duration {
	if len(c.Segments) == 0 {
		return 0
	}
	return c.Segments[0].StartTime
}

// End returns the end time of the last segment.
func (c Chunk) End() time.Duration {
	if len(c.Segments) == 0 {
		return 0
	}
	return c.Segments[len(c.Segments)-1].EndTime
}

// Chars returns the cumulative text length of the chunk.
func (c Chunk) Chars() int {
	return transcript.TotalChars(c.Segments)
}

type Config struct {
	// MaxChunkDuration bounds the time span of a summarization chunk.
	MaxChunkDuration time.Duration
	// OverlapDuration is the trailing window of a closed chunk repeated
	// at the start of the next one, for continuity across the cut.
	OverlapDuration time.Duration
	// MaxChunkChars bounds the character budget of a translation chunk.
	MaxChunkChars int
}

func DefaultConfig() Config {
	return Config{
		MaxChunkDuration: 8 * time.Minute,
		OverlapDuration:  15 * time.Second,
		MaxChunkChars:    3000,
	}
}

// ByDuration splits segments into duration-bounded chunks with a trailing
// overlap. Every input segment appears in at least one chunk; overlap
// permits membership in two. The overlap exists purely to give the remote
// summarizer continuity at a cut point; deduplication of output items is
// the merge step's job. An empty transcript yields zero chunks.
func ByDuration(segments []transcript.Segment, maxSpan, overlap time.Duration) []Chunk {
	if len(segments) == 0 {
		return nil
	}

	var chunks []Chunk
	var cur []transcript.Segment
	var curStart time.Duration
	fresh := 0 // segments in cur that are not overlap seed

	for i, seg := range segments {
		if len(cur) == 0 {
			curStart = seg.StartTime
		}
		cur = append(cur, seg)
		fresh++

		if seg.EndTime-curStart <= maxSpan {
			continue
		}

		// Close the chunk; the exceeding segment stays in it.
		chunks = append(chunks, Chunk{Index: len(chunks), Segments: cur})

		if i+1 >= len(segments) {
			cur = nil
			fresh = 0
			break
		}

		// Seed the next window with the trailing overlap of the closed
		// chunk, verbatim.
		cutoff := segments[i+1].StartTime - overlap
		if cutoff < curStart {
			cutoff = curStart
		}
		var seed []transcript.Segment
		for _, s := range cur {
			if s.StartTime >= cutoff {
				seed = append(seed, s)
			}
		}
		cur = append([]transcript.Segment(nil), seed...)
		fresh = 0
		if len(cur) > 0 {
			curStart = cur[0].StartTime
		}
	}

	// Flush the remainder, but never emit a chunk made purely of
	// overlap seed already present in the previous chunk.
	if fresh > 0 {
		chunks = append(chunks, Chunk{Index: len(chunks), Segments: cur})
	}
	return chunks
}

// ByCharCount splits segments into character-bounded chunks with no
// overlap: concatenating all chunks reproduces every input segment
// exactly once. A single segment whose text alone exceeds the budget is
// split into sub-segments at sentence or word boundaries; the
// sub-segments share the source segment's speaker and timing metadata,
// an accepted approximation. An empty transcript yields zero chunks.
func ByCharCount(segments []transcript.Segment, maxChars int) []Chunk {
	if len(segments) == 0 {
		return nil
	}
	if maxChars <= 0 {
		maxChars = DefaultConfig().MaxChunkChars
	}

	expanded := make([]transcript.Segment, 0, len(segments))
	for _, seg := range segments {
		if utf8.RuneCountInString(seg.Text) <= maxChars {
			expanded = append(expanded, seg)
			continue
		}
		for _, part := range splitText(seg.Text, maxChars) {
			sub := seg
			sub.Text = part
			expanded = append(expanded, sub)
		}
	}

	var chunks []Chunk
	var cur []transcript.Segment
	count := 0
	for _, seg := range expanded {
		segChars := utf8.RuneCountInString(seg.Text)
		// Close before the chunk would exceed the budget, but always
		// keep at least one segment per chunk so progress is guaranteed.
		if len(cur) > 0 && count+segChars > maxChars {
			chunks = append(chunks, Chunk{Index: len(chunks), Segments: cur})
			cur = nil
			count = 0
		}
		cur = append(cur, seg)
		count += segChars
	}
	if len(cur) > 0 {
		chunks = append(chunks, Chunk{Index: len(chunks), Segments: cur})
	}
	return chunks
}

// splitText cuts text into pieces of at most budget runes, preferring the
// last sentence-ending punctuation inside the budget, then the last word
// boundary, then a hard cut at the budget. Cuts always land on rune
// boundaries, and each iteration consumes at least one rune.
func splitText(text string, budget int) []string {
	var parts []string
	for utf8.RuneCountInString(text) > budget {
		limit := byteLimit(text, budget)
		cut := findSentenceCut(text, limit)
		if cut <= 0 {
			cut = findWordCut(text, limit)
		}
		if cut <= 0 {
			cut = limit
		}
		parts = append(parts, strings.TrimSpace(text[:cut]))
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}

// byteLimit returns the byte offset just past the first n runes of text,
// or len(text) when text is shorter.
func byteLimit(text string, n int) int {
	seen := 0
	for i := range text {
		if seen == n {
			return i
		}
		seen++
	}
	return len(text)
}

func findSentenceCut(text string, limit int) int {
	cut := -1
	for i, r := range text {
		if i >= limit {
			break
		}
		switch r {
		case '.', '!', '?', '。', '！', '？':
			cut = i + len(string(r))
		}
	}
	return cut
}

func findWordCut(text string, limit int) int {
	cut := -1
	for i, r := range text {
		if i >= limit {
			break
		}
		if unicode.IsSpace(r) {
			cut = i
		}
	}
	return cut
}
