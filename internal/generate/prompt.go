package generate

import (
	"fmt"
	"strings"
)

// maxPromptPool caps the persona names embedded in a prompt so large
// category pools do not crowd out the brief.
const maxPromptPool = 30

const systemPrompt = `You are an audience strategist for an advertising persona platform. Given a brand and a campaign brief, you propose audience personas from a fixed canon.

RULES:
1. Propose ONLY persona names from the ALLOWED PERSONAS list — never invent names
2. Personas must fit the brand and the brief, not just the category
3. Generational segment names must be copied exactly, including the cohort prefix
4. Each insight is one sentence of audience prose that names exactly one proposed persona in single quotes
5. An insight must not name a persona you proposed as a highlight

OUTPUT FORMAT:
Return ONLY valid JSON matching this exact structure (no markdown fences, no extra text):
{
  "personas": [
    {"name": "Persona Name"},
    {"name": "Persona Name", "highlight": "One sentence on why this persona leads the program"}
  ],
  "generational": [
    {"name": "Gen Z–Segment Name", "cohort": "Gen Z"}
  ],
  "insights": [
    "One sentence naming a proposed persona in 'single quotes'."
  ]
}

IMPORTANT: Output raw JSON only. No markdown code fences. No text before or after the JSON.`

func buildUserPrompt(req BriefRequest) string {
	pool := req.Pool
	if len(pool) > maxPromptPool {
		pool = pool[:maxPromptPool]
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<scratchpad>
Before proposing candidates, plan your approach:
1. Identify what the brand actually sells and who buys it
2. Pick the personas whose identity matches the brief, not just the category
3. Mark %d of them as highlights with a one-line reason
4. Draft %d insight sentences, each quoting a non-highlight persona
</scratchpad>

Propose a persona program for the campaign below.

`, req.HighlightCount, req.InsightCount)

	fmt.Fprintf(&b, "BRAND: %s\n\n", req.Brand)
	fmt.Fprintf(&b, "CATEGORY: %s\n\n", req.Category)
	fmt.Fprintf(&b, "BRIEF:\n%s\n\n", req.Brief)
	fmt.Fprintf(&b, "ALLOWED PERSONAS:\n%s\n\n", strings.Join(pool, ", "))
	fmt.Fprintf(&b, "TARGET: %d personas, %d marked as highlights, %d insights.\n",
		req.PersonaCount, req.HighlightCount, req.InsightCount)

	return b.String()
}
