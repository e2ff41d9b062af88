package agents

import (
	"fmt"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/domain/plan"
)

// dispatchRules maps each plan section to the agent that generates it.
// Quiz sections route on subject: maths lessons take their quizzes from
// the retrieval pipeline rather than direct generation.
var dispatchRules = map[plan.SectionKey]func(p *plan.LessonPlan) Name{
	plan.SectionTitle:             func(*plan.LessonPlan) Name { return AgentTitle },
	plan.SectionKeyStage:          func(*plan.LessonPlan) Name { return AgentKeyStage },
	plan.SectionSubject:           func(*plan.LessonPlan) Name { return AgentSubject },
	plan.SectionTopic:             func(*plan.LessonPlan) Name { return AgentTopic },
	plan.SectionBasedOn:           func(*plan.LessonPlan) Name { return AgentBasedOn },
	plan.SectionLearningOutcome:   func(*plan.LessonPlan) Name { return AgentLearningOutcome },
	plan.SectionLearningCycles:    func(*plan.LessonPlan) Name { return AgentLearningCycles },
	plan.SectionPriorKnowledge:    func(*plan.LessonPlan) Name { return AgentPriorKnowledge },
	plan.SectionKeyLearningPoints: func(*plan.LessonPlan) Name { return AgentKeyLearningPoints },
	plan.SectionMisconceptions:    func(*plan.LessonPlan) Name { return AgentMisconceptions },
	plan.SectionKeywords:          func(*plan.LessonPlan) Name { return AgentKeywords },
	plan.SectionCycle1:            func(*plan.LessonPlan) Name { return AgentCycle },
	plan.SectionCycle2:            func(*plan.LessonPlan) Name { return AgentCycle },
	plan.SectionCycle3:            func(*plan.LessonPlan) Name { return AgentCycle },
	plan.SectionStarterQuiz: func(p *plan.LessonPlan) Name {
		if plan.IsMathsSubject(p.Subject) {
			return AgentMathsStarterQuiz
		}
		return AgentStarterQuiz
	},
	plan.SectionExitQuiz: func(p *plan.LessonPlan) Name {
		if plan.IsMathsSubject(p.Subject) {
			return AgentMathsExitQuiz
		}
		return AgentExitQuiz
	},
	plan.SectionAdditionalMaterials: func(*plan.LessonPlan) Name { return AgentAdditionalMaterials },
}

// Dispatch resolves the agent for a section given the current plan state.
func Dispatch(key plan.SectionKey, p *plan.LessonPlan) (*Definition, error) {
	rule, ok := dispatchRules[key]
	if !ok {
		return nil, fmt.Errorf("no agent for section %q", key)
	}
	return Lookup(rule(p))
}
