package summarize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/memovox/memovox/internal/chunker"
)

const summarySchemaHint = `{
  "overview": "one-paragraph overview",
  "keyPoints": [{"text": "...", "refs": [{"start": 12.5, "end": 48.0}]}],
  "actionItems": [{"text": "...", "owner": "...", "refs": [{"start": 0, "end": 0}]}],
  "decisions": [{"text": "...", "refs": [{"start": 0, "end": 0}]}],
  "quotes": [{"text": "...", "speaker": "...", "refs": [{"start": 0, "end": 0}]}],
  "timeline": [{"text": "...", "refs": [{"start": 0, "end": 0}]}],
  "locale": "en"
}`

// BuildChunkSystemPrompt generates the system prompt for summarizing one
// transcript chunk.
func BuildChunkSystemPrompt(locale string) string {
	var b strings.Builder
	b.WriteString("You are a meeting summarization assistant. Summarize the transcript excerpt you are given.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Respond ONLY with a JSON object matching this shape:\n")
	b.WriteString(summarySchemaHint)
	b.WriteString("\n- Every ref start/end must be a timestamp in seconds copied from the transcript lines; never invent timestamps\n")
	b.WriteString("- Do not add information that is not in the transcript\n")
	b.WriteString(fmt.Sprintf("- Write all text in locale %q\n", locale))
	return b.String()
}

// BuildChunkUserPrompt renders a chunk as timestamped transcript lines,
// with optional meeting title and notes as context.
func BuildChunkUserPrompt(chunk chunker.Chunk, title, notes string) string {
	var b strings.Builder
	if title != "" {
		fmt.Fprintf(&b, "Meeting title: %s\n", title)
	}
	if notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", notes)
	}
	b.WriteString("Transcript:\n")
	for _, seg := range chunk.Segments {
		speaker := seg.Speaker
		if speaker == "" {
			speaker = "Speaker"
		}
		fmt.Fprintf(&b, "[%.1fs-%.1fs] %s: %s\n",
			seg.StartTime.Seconds(), seg.EndTime.Seconds(), speaker, seg.Text)
	}
	return b.String()
}

// BuildMergeSystemPrompt generates the system prompt for combining
// partial summaries into one.
func BuildMergeSystemPrompt(locale string) string {
	var b strings.Builder
	b.WriteString("You are a meeting summarization assistant. You are given several partial summaries of consecutive, slightly overlapping parts of one meeting. Combine them into a single summary.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Respond ONLY with a JSON object matching this shape:\n")
	b.WriteString(summarySchemaHint)
	b.WriteString("\n- Deduplicate items that appear in more than one partial (the parts overlap at their boundaries)\n")
	b.WriteString("- Preserve every ref timestamp exactly as given; never recompute or shift timestamps\n")
	b.WriteString(fmt.Sprintf("- Write all text in locale %q\n", locale))
	return b.String()
}

// BuildMergeUserPrompt serializes the partials, already ordered by their
// source chunk position.
func BuildMergeUserPrompt(partials []Summary) (string, error) {
	var b strings.Builder
	for i, p := range partials {
		data, err := json.Marshal(p)
		if err != nil {
			return "", fmt.Errorf("marshal partial %d: %w", i, err)
		}
		fmt.Fprintf(&b, "Part %d:\n%s\n\n", i+1, data)
	}
	return b.String(), nil
}
