package extraction

import (
	"strings"
)

// MaxTextLength is the maximum number of characters sent to the LLM.
const MaxTextLength = 8000

// SystemPrompt instructs the LLM to return structured JSON only.
const SystemPrompt = `You are a knowledge extraction assistant for a personal memory store.
Extract durable memories (decisions, facts, tasks, code snippets) from the given conversation turn.
Return ONLY a valid JSON object with one array: "memories".
No markdown, no explanation. Start with { and end with }.`

// BuildUserPrompt constructs the extraction prompt for one turn's text.
func BuildUserPrompt(text string) string {
	truncated := text
	if len(truncated) > MaxTextLength {
		truncated = truncated[:MaxTextLength]
	}

	var sb strings.Builder
	sb.WriteString("Extract memories from this conversation turn. ")
	sb.WriteString("Return a JSON object with one array: \"memories\".\n\n")

	sb.WriteString("Each memory object:\n")
	sb.WriteString("- \"kind\": One of: decision, fact, snippet, task\n")
	sb.WriteString("- \"text\": The distilled statement (string)\n")
	sb.WriteString("- \"topic\": Optional short topic label (string)\n")
	sb.WriteString("- \"entities\": Names, tools, and identifiers mentioned (string[])\n")
	sb.WriteString("- \"confidence\": 0.0-1.0 (number)\n")
	sb.WriteString("- \"reasoning\": Optional - why this is worth remembering (string)\n\n")

	sb.WriteString("KIND GUIDE:\n")
	sb.WriteString("- decision: A choice that was made, with its rationale if stated\n")
	sb.WriteString("- fact: A durable statement about how something works or is configured\n")
	sb.WriteString("- snippet: A code block or file reference worth keeping\n")
	sb.WriteString("- task: Something that still needs to be done\n\n")

	sb.WriteString("RULES:\n")
	sb.WriteString("1. Only durable knowledge - skip greetings and filler\n")
	sb.WriteString("2. Deduplicate memories\n")
	sb.WriteString("3. One memory per distinct decision, fact, task, or snippet\n")
	sb.WriteString("4. confidence >= 0.8 for explicit statements, 0.5-0.8 for implied\n\n")

	sb.WriteString("TEXT:\n")
	sb.WriteString(truncated)

	return sb.String()
}
