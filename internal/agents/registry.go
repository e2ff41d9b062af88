// Package agents holds the per-section generation agents and the dispatch
// table that routes a lesson plan section to the agent that produces it.
package agents

import (
	"encoding/json"
	"fmt"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/domain/plan"
)

type Name string

const (
	AgentTitle               Name = "title"
	AgentKeyStage            Name = "keyStage"
	AgentSubject             Name = "subject"
	AgentTopic               Name = "topic"
	AgentLearningOutcome     Name = "learningOutcome"
	AgentLearningCycles      Name = "learningCycles"
	AgentPriorKnowledge      Name = "priorKnowledge"
	AgentKeyLearningPoints   Name = "keyLearningPoints"
	AgentMisconceptions      Name = "misconceptions"
	AgentKeywords            Name = "keywords"
	AgentStarterQuiz         Name = "starterQuiz"
	AgentCycle               Name = "cycle"
	AgentExitQuiz            Name = "exitQuiz"
	AgentMathsStarterQuiz    Name = "mathsStarterQuiz"
	AgentMathsExitQuiz       Name = "mathsExitQuiz"
	AgentDeleteSection       Name = "deleteSection"
	AgentEndTurn             Name = "endTurn"
	AgentBasedOn             Name = "basedOn"
	AgentAdditionalMaterials Name = "additionalMaterials"
)

// Kind distinguishes how an agent produces its output.
//
//	prompt   - one LLM call constrained by the section schema
//	pipeline - a programmatic pipeline (maths quizzes, basedOn retrieval)
//	control  - flow control, no content is generated
type Kind string

const (
	KindPrompt   Kind = "prompt"
	KindPipeline Kind = "pipeline"
	KindControl  Kind = "control"
)

// Definition describes one agent. For prompt agents, Section is the plan
// section the agent writes and Instructions is the task portion of its
// prompt; validation reuses the section schema so an agent can never emit
// a value the plan itself would reject.
type Definition struct {
	Name         Name
	Kind         Kind
	Section      plan.SectionKey
	Instructions string

	// ExtractRAGData pulls this agent's section from an example lesson
	// plan for few-shot grounding. Nil for agents that take no RAG data.
	ExtractRAGData func(example *plan.LessonPlan) string
}

// ValidateOutput checks a candidate value against the agent's section
// schema without touching any live plan.
func (d *Definition) ValidateOutput(raw json.RawMessage) error {
	if d.Kind != KindPrompt {
		return nil
	}
	scratch := &plan.LessonPlan{}
	return scratch.SetSection(d.Section, raw)
}

func ragJSON(get func(*plan.LessonPlan) any) func(*plan.LessonPlan) string {
	return func(p *plan.LessonPlan) string {
		v := get(p)
		if v == nil {
			return ""
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		s := string(raw)
		if s == "null" {
			return ""
		}
		return s
	}
}

var registry = map[Name]*Definition{
	AgentTitle: {
		Name: AgentTitle, Kind: KindPrompt, Section: plan.SectionTitle,
		Instructions:   titleInstructions,
		ExtractRAGData: func(p *plan.LessonPlan) string { return p.Title },
	},
	AgentKeyStage: {
		Name: AgentKeyStage, Kind: KindPrompt, Section: plan.SectionKeyStage,
		Instructions:   keyStageInstructions,
		ExtractRAGData: func(p *plan.LessonPlan) string { return p.KeyStage },
	},
	AgentSubject: {
		Name: AgentSubject, Kind: KindPrompt, Section: plan.SectionSubject,
		Instructions:   subjectInstructions,
		ExtractRAGData: func(p *plan.LessonPlan) string { return p.Subject },
	},
	AgentTopic: {
		Name: AgentTopic, Kind: KindPrompt, Section: plan.SectionTopic,
		Instructions:   topicInstructions,
		ExtractRAGData: func(p *plan.LessonPlan) string { return p.Topic },
	},
	AgentLearningOutcome: {
		Name: AgentLearningOutcome, Kind: KindPrompt, Section: plan.SectionLearningOutcome,
		Instructions:   learningOutcomeInstructions,
		ExtractRAGData: func(p *plan.LessonPlan) string { return p.LearningOutcome },
	},
	AgentLearningCycles: {
		Name: AgentLearningCycles, Kind: KindPrompt, Section: plan.SectionLearningCycles,
		Instructions:   learningCycleTitlesInstructions,
		ExtractRAGData: ragJSON(func(p *plan.LessonPlan) any { return p.LearningCycles }),
	},
	AgentPriorKnowledge: {
		Name: AgentPriorKnowledge, Kind: KindPrompt, Section: plan.SectionPriorKnowledge,
		Instructions:   priorKnowledgeInstructions,
		ExtractRAGData: ragJSON(func(p *plan.LessonPlan) any { return p.PriorKnowledge }),
	},
	AgentKeyLearningPoints: {
		Name: AgentKeyLearningPoints, Kind: KindPrompt, Section: plan.SectionKeyLearningPoints,
		Instructions:   keyLearningPointsInstructions,
		ExtractRAGData: ragJSON(func(p *plan.LessonPlan) any { return p.KeyLearningPoints }),
	},
	AgentMisconceptions: {
		Name: AgentMisconceptions, Kind: KindPrompt, Section: plan.SectionMisconceptions,
		Instructions:   misconceptionsInstructions,
		ExtractRAGData: ragJSON(func(p *plan.LessonPlan) any { return p.Misconceptions }),
	},
	AgentKeywords: {
		Name: AgentKeywords, Kind: KindPrompt, Section: plan.SectionKeywords,
		Instructions:   keywordsInstructions,
		ExtractRAGData: ragJSON(func(p *plan.LessonPlan) any { return p.Keywords }),
	},
	AgentStarterQuiz: {
		Name: AgentStarterQuiz, Kind: KindPrompt, Section: plan.SectionStarterQuiz,
		Instructions:   starterQuizInstructions,
		ExtractRAGData: ragJSON(func(p *plan.LessonPlan) any { return p.StarterQuiz }),
	},
	AgentCycle: {
		Name: AgentCycle, Kind: KindPrompt, Section: plan.SectionCycle1,
		Instructions: learningCyclesInstructions,
		ExtractRAGData: ragJSON(func(p *plan.LessonPlan) any {
			return map[string]any{"cycle1": p.Cycle1, "cycle2": p.Cycle2, "cycle3": p.Cycle3}
		}),
	},
	AgentExitQuiz: {
		Name: AgentExitQuiz, Kind: KindPrompt, Section: plan.SectionExitQuiz,
		Instructions:   exitQuizInstructions,
		ExtractRAGData: ragJSON(func(p *plan.LessonPlan) any { return p.ExitQuiz }),
	},
	AgentAdditionalMaterials: {
		Name: AgentAdditionalMaterials, Kind: KindPrompt, Section: plan.SectionAdditionalMaterials,
		Instructions:   additionalMaterialsInstructions,
		ExtractRAGData: func(p *plan.LessonPlan) string { return p.AdditionalMaterials },
	},

	AgentMathsStarterQuiz: {Name: AgentMathsStarterQuiz, Kind: KindPipeline, Section: plan.SectionStarterQuiz},
	AgentMathsExitQuiz:    {Name: AgentMathsExitQuiz, Kind: KindPipeline, Section: plan.SectionExitQuiz},
	AgentBasedOn:          {Name: AgentBasedOn, Kind: KindPipeline, Section: plan.SectionBasedOn},

	AgentDeleteSection: {Name: AgentDeleteSection, Kind: KindControl},
	AgentEndTurn:       {Name: AgentEndTurn, Kind: KindControl},
}

// Lookup returns the definition for a named agent.
func Lookup(name Name) (*Definition, error) {
	def, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown agent %q", name)
	}
	return def, nil
}

// All returns every registered agent name, for diagnostics.
func All() []Name {
	out := make([]Name, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	return out
}
