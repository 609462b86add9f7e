package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnparseable reports that no usable JSON object could be extracted from
// a model reply. Callers treat it as a retryable planning failure.
var ErrUnparseable = errors.New("prompt: no parseable JSON object in model reply")

// terminalMarker is the legacy ending convention some models imitate from
// their instructions. A candidate carrying it marks the state terminal even
// when is_terminal was not set.
const terminalMarker = "[TERMINAL]"

// Parsed is the structured form of an exploration reply.
type Parsed struct {
	// Candidates are the proposed next customer responses, trimmed and
	// de-duplicated, in model order.
	Candidates []string

	// Terminal reports that the model judged the state a conversation
	// endpoint.
	Terminal bool

	// Confidence is the model's self-reported confidence in [0,1]. Zero
	// when the model omitted it.
	Confidence float64
}

// wireReply mirrors the JSON shape requested by ExplorationPrompt.
type wireReply struct {
	Candidates []string `json:"candidates"`
	IsTerminal bool     `json:"is_terminal"`
	Confidence float64  `json:"confidence"`
}

// Parse extracts a Parsed value from a raw model reply. Models wrap JSON in
// prose and code fences despite instructions, so the parser takes the region
// between the first '{' and the last '}' rather than demanding a bare
// object. Returns ErrUnparseable when no such region exists or it does not
// decode.
func Parse(raw string) (Parsed, error) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start == -1 || end <= start {
		return Parsed{}, ErrUnparseable
	}

	var wire wireReply
	if err := json.Unmarshal([]byte(raw[start:end+1]), &wire); err != nil {
		return Parsed{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}

	out := Parsed{
		Terminal:   wire.IsTerminal,
		Confidence: clamp01(wire.Confidence),
	}

	seen := make(map[string]struct{}, len(wire.Candidates))
	for _, c := range wire.Candidates {
		c = strings.TrimSpace(c)
		if marked, ok := strings.CutPrefix(c, terminalMarker); ok {
			out.Terminal = true
			c = strings.TrimSpace(marked)
		}
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out.Candidates = append(out.Candidates, c)
	}

	return out, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
