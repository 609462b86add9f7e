package explore

import (
	"strings"

	"github.com/MrWong99/dialmap/internal/similarity"
	"github.com/MrWong99/dialmap/internal/textnorm"
	"github.com/MrWong99/dialmap/pkg/provider/transcribe"
)

// diarizationMatchThreshold is the similarity score at which a transcribed
// turn counts as one of the scripted user lines when validating speaker
// labels.
const diarizationMatchThreshold = 0.85

// splitRoles separates a transcript into agent and caller utterances.
//
// With diarized turns the speaker of the first turn is taken to be the
// agent, since the remote agent greets first on an answered outbound call,
// and consecutive turns by one speaker merge into a single utterance. Without
// speaker labels roles alternate starting with the agent.
func splitRoles(turns []transcribe.Turn) (agent, caller []string) {
	diarized := false
	for _, t := range turns {
		if t.Speaker != "" {
			diarized = true
			break
		}
	}

	if !diarized {
		for i, t := range turns {
			if i%2 == 0 {
				agent = append(agent, t.Text)
			} else {
				caller = append(caller, t.Text)
			}
		}
		return agent, caller
	}

	agentSpeaker := turns[0].Speaker
	var cur strings.Builder
	curAgent := true
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		if curAgent {
			agent = append(agent, cur.String())
		} else {
			caller = append(caller, cur.String())
		}
		cur.Reset()
	}
	for _, t := range turns {
		isAgent := t.Speaker == agentSpeaker
		if isAgent != curAgent {
			flush()
			curAgent = isAgent
		}
		if cur.Len() > 0 {
			cur.WriteString(" ")
		}
		cur.WriteString(t.Text)
	}
	flush()
	return agent, caller
}

// diarizationSuspect reports whether the speaker assignment looks wrong:
// a scripted caller line that matches an agent-labelled utterance better
// than any caller-labelled one means the labels are probably swapped or
// interleaved.
func diarizationSuspect(scripted, agent, caller []string) bool {
	best := func(line string, utterances []string) float64 {
		norm := textnorm.Normalize(line)
		var top float64
		for _, u := range utterances {
			if s := similarity.Score(norm, textnorm.Normalize(u)); s > top {
				top = s
			}
		}
		return top
	}

	for _, line := range scripted {
		agentScore := best(line, agent)
		callerScore := best(line, caller)
		if agentScore >= diarizationMatchThreshold && agentScore > callerScore {
			return true
		}
	}
	return false
}
