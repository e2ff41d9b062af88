package services

import (
	"encoding/json"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/agents"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/domain/plan"
)

// protocolInstructions tells the model how to shape its streamed reply:
// a sequence of JSON documents separated by the record separator, one
// patch per section edit, finishing with a prompt document addressed to
// the teacher.
const protocolInstructions = `# Response protocol

Respond with a sequence of JSON documents separated by the record separator character (␞). Do not wrap them in markdown fences or any other text.

For each edit to the lesson plan, emit one patch document:

␞{"type":"patch","reasoning":"<one line on why>","value":{"op":"add","path":"/<sectionKey>","value":<section value>}}␞

Use "op":"add" for a section that does not exist yet and "op":"replace" to change an existing one. The section value must satisfy the section's requirements exactly.

After the patches, emit exactly one message to the teacher:

␞{"type":"prompt","message":"<what you did and a question inviting the next step>"}␞`

func streamSystemPrompt(def *agents.Definition) string {
	return agents.Identity() + "\n\n" + def.Instructions + "\n\n" + protocolInstructions
}

func streamUserPrompt(def *agents.Definition, p *plan.LessonPlan, userRequest string) string {
	planJSON, _ := json.Marshal(p)
	prompt := "# Current lesson plan\n\n" + string(planJSON) +
		"\n\n# Teacher's request\n\n" + userRequest +
		"\n\nGenerate the " + string(def.Section) + " section now."
	if def.ExtractRAGData != nil {
		if rag := def.ExtractRAGData(p); rag != "" {
			prompt += "\n\n# Reference material\n\n" + rag
		}
	}
	return prompt
}
