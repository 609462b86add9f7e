// Package prompt builds the prompts dialmap sends to its two LLM consumers
// and parses the model's replies.
//
// The call prompt drives the telephony platform's voice agent: it casts the
// agent as a customer with a fixed script so a specific path through the
// remote menu is replayed deterministically. The exploration prompt asks the
// planning model for candidate next responses at a newly discovered state.
// Both are pure string assembly from their inputs, so identical graph state
// always yields identical prompts.
package prompt

import (
	"fmt"
	"strings"
)

// PathStep is one traversed hop: the agent utterance heard at a node and the
// user response spoken there.
type PathStep struct {
	Agent    string
	Response string
}

// role is the fixed system framing for the exploration model.
const role = `You are an automated conversation path explorer for voice AI systems. Your task is to interact with voice AI agents for different business types to discover all possible conversation flows and decision trees. You systematically explore different conversation paths, generate natural and realistic customer responses, avoid repeating previously explored paths, test both standard and edge cases, and maintain contextual awareness of the business type.`

// Role returns the system prompt for exploration completions.
func Role() string { return role }

// CallPrompt renders the persona instruction for one outbound call. The
// voice agent plays a customer: it speaks the scripted responses in order as
// the remote menu progresses, then speaks nextResponse at the state under
// exploration, listens to the reply, and ends the call politely.
//
// An empty script with an empty nextResponse produces the cold-call prompt
// that discovers the root state.
func CallPrompt(scenario string, script []PathStep, nextResponse string) string {
	var b strings.Builder

	b.WriteString("You are a customer calling ")
	b.WriteString(scenario)
	b.WriteString(". Stay fully in character for the whole call.\n\n")

	if len(script) == 0 && nextResponse == "" {
		b.WriteString("Listen to the agent's opening message, then say \"goodbye\" and end the call. Do not press any buttons or give any other answers.\n")
		return b.String()
	}

	b.WriteString("Follow this script exactly, one step per agent turn:\n")
	for i, step := range script {
		fmt.Fprintf(&b, "%d. When the agent says something like %q, respond: %q\n", i+1, step.Agent, step.Response)
	}
	if nextResponse != "" {
		fmt.Fprintf(&b, "%d. At the next agent message, respond: %q\n", len(script)+1, nextResponse)
	}
	b.WriteString("\nAfter your final scripted response, listen to the agent's full reply, then say \"goodbye\" and end the call.\n")
	b.WriteString("If the agent says something unexpected at any step, still speak your scripted response for that step.\n")
	b.WriteString("Keep every response short. Never volunteer information that is not in the script.\n")
	return b.String()
}

// ExplorationPrompt asks the model for candidate next responses at an agent
// state. maxCandidates bounds the list; explored lists the normalized
// responses already tried there so the model proposes new paths.
func ExplorationPrompt(scenario, agentMessage string, history []PathStep, explored []string, maxCandidates int) string {
	var b strings.Builder

	b.WriteString("Here is the business context for this interaction:\n<context_type>\n")
	b.WriteString(scenario)
	b.WriteString("\n</context_type>\n\n")

	b.WriteString("The current message from the voice AI agent is:\n<current_agent_message>\n")
	b.WriteString(agentMessage)
	b.WriteString("\n</current_agent_message>\n\n")

	b.WriteString("Here is the conversation history so far:\n<conversation_history>\n")
	if len(history) == 0 {
		b.WriteString("(start of call)\n")
	}
	for _, step := range history {
		fmt.Fprintf(&b, "agent: %s\ncustomer: %s\n", step.Agent, step.Response)
	}
	b.WriteString("</conversation_history>\n\n")

	b.WriteString("These customer responses have already been explored from the current state:\n<explored_paths>\n")
	if len(explored) == 0 {
		b.WriteString("(none)\n")
	}
	for _, e := range explored {
		b.WriteString("- ")
		b.WriteString(e)
		b.WriteString("\n")
	}
	b.WriteString("</explored_paths>\n\n")

	fmt.Fprintf(&b, `Propose up to %d distinct customer responses that each explore a NEW conversation path from the current state:
- Every response must be appropriate for the business context and sound like a real customer.
- Do not repeat or paraphrase anything in explored_paths.
- Mix standard choices with the occasional edge case (ambiguous answers, "agent please", off-menu requests).
- Keep each response to one or two short sentences.

If the current agent message is a conversation endpoint (goodbye, voicemail, transfer completed, appointment confirmed, "anything else?"), report it as terminal and propose no responses.

Reply with a single JSON object and nothing else:
{"candidates": ["...", "..."], "is_terminal": false, "confidence": 0.9}
`, maxCandidates)
	return b.String()
}

// StrictReprompt wraps a follow-up after a malformed reply. It restates the
// required shape and nothing else; the conversation context is already in
// the prior messages.
func StrictReprompt() string {
	return `Your previous reply could not be parsed. Respond again with ONLY a JSON object in exactly this shape, with no surrounding prose or code fences:
{"candidates": ["response one", "response two"], "is_terminal": false, "confidence": 0.9}`
}
