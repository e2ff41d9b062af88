package plan

import (
	"strings"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/domain/quiz"
)

// SectionKey names one slot of the lesson plan aggregate. Patch paths are
// "/" + SectionKey.
type SectionKey string

const (
	SectionTitle               SectionKey = "title"
	SectionSubject             SectionKey = "subject"
	SectionKeyStage            SectionKey = "keyStage"
	SectionTopic               SectionKey = "topic"
	SectionBasedOn             SectionKey = "basedOn"
	SectionLearningOutcome     SectionKey = "learningOutcome"
	SectionLearningCycles      SectionKey = "learningCycles"
	SectionPriorKnowledge      SectionKey = "priorKnowledge"
	SectionKeyLearningPoints   SectionKey = "keyLearningPoints"
	SectionMisconceptions      SectionKey = "misconceptions"
	SectionKeywords            SectionKey = "keywords"
	SectionStarterQuiz         SectionKey = "starterQuiz"
	SectionCycle1              SectionKey = "cycle1"
	SectionCycle2              SectionKey = "cycle2"
	SectionCycle3              SectionKey = "cycle3"
	SectionExitQuiz            SectionKey = "exitQuiz"
	SectionAdditionalMaterials SectionKey = "additionalMaterials"
)

// SectionOrder is the canonical generation order of the document.
var SectionOrder = []SectionKey{
	SectionTitle,
	SectionSubject,
	SectionKeyStage,
	SectionTopic,
	SectionBasedOn,
	SectionLearningOutcome,
	SectionLearningCycles,
	SectionPriorKnowledge,
	SectionKeyLearningPoints,
	SectionMisconceptions,
	SectionKeywords,
	SectionStarterQuiz,
	SectionCycle1,
	SectionCycle2,
	SectionCycle3,
	SectionExitQuiz,
	SectionAdditionalMaterials,
}

func ParseSectionKey(s string) (SectionKey, bool) {
	key := SectionKey(strings.TrimPrefix(s, "/"))
	for _, k := range SectionOrder {
		if k == key {
			return key, true
		}
	}
	return "", false
}

type Misconception struct {
	Misconception string `json:"misconception"`
	Description   string `json:"description,omitempty"`
	// Definition is a legacy alias for Description, still present in old
	// persisted plans. The patch applier folds it into Description.
	Definition string `json:"definition,omitempty"`
}

type Keyword struct {
	Keyword    string `json:"keyword"`
	Definition string `json:"definition,omitempty"`
	// Description is the legacy alias for Definition.
	Description string `json:"description,omitempty"`
}

type BasedOn struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type Explanation struct {
	SpokenExplanation        []string `json:"spokenExplanation"`
	AccompanyingSlideDetails string   `json:"accompanyingSlideDetails,omitempty"`
	ImagePrompt              string   `json:"imagePrompt,omitempty"`
	SlideText                string   `json:"slideText,omitempty"`
}

type CheckQuestion struct {
	Question    string   `json:"question"`
	Answers     []string `json:"answers"`
	Distractors []string `json:"distractors"`
}

// Cycle is one learn-check-practise learning cycle.
type Cycle struct {
	Title                 string          `json:"title"`
	DurationInMinutes     int             `json:"durationInMinutes,omitempty"`
	Explanation           Explanation     `json:"explanation"`
	CheckForUnderstanding []CheckQuestion `json:"checkForUnderstanding,omitempty"`
	Practice              string          `json:"practice,omitempty"`
	Feedback              string          `json:"feedback,omitempty"`
}

// LessonPlan is the partially-filled document co-written during a chat.
// A nil/zero section means not yet generated. Sections are only ever
// mutated through the patch applier while a run is in flight.
type LessonPlan struct {
	Title               string          `json:"title,omitempty"`
	Subject             string          `json:"subject,omitempty"`
	KeyStage            string          `json:"keyStage,omitempty"`
	Topic               string          `json:"topic,omitempty"`
	BasedOn             *BasedOn        `json:"basedOn,omitempty"`
	LearningOutcome     string          `json:"learningOutcome,omitempty"`
	LearningCycles      []string        `json:"learningCycles,omitempty"`
	PriorKnowledge      []string        `json:"priorKnowledge,omitempty"`
	KeyLearningPoints   []string        `json:"keyLearningPoints,omitempty"`
	Misconceptions      []Misconception `json:"misconceptions,omitempty"`
	Keywords            []Keyword       `json:"keywords,omitempty"`
	StarterQuiz         *quiz.Quiz      `json:"starterQuiz,omitempty"`
	Cycle1              *Cycle          `json:"cycle1,omitempty"`
	Cycle2              *Cycle          `json:"cycle2,omitempty"`
	Cycle3              *Cycle          `json:"cycle3,omitempty"`
	ExitQuiz            *quiz.Quiz      `json:"exitQuiz,omitempty"`
	AdditionalMaterials string          `json:"additionalMaterials,omitempty"`
}

// Has reports whether a section is present (possibly invalid mid-stream).
func (p *LessonPlan) Has(key SectionKey) bool {
	switch key {
	case SectionTitle:
		return p.Title != ""
	case SectionSubject:
		return p.Subject != ""
	case SectionKeyStage:
		return p.KeyStage != ""
	case SectionTopic:
		return p.Topic != ""
	case SectionBasedOn:
		return p.BasedOn != nil
	case SectionLearningOutcome:
		return p.LearningOutcome != ""
	case SectionLearningCycles:
		return len(p.LearningCycles) > 0
	case SectionPriorKnowledge:
		return len(p.PriorKnowledge) > 0
	case SectionKeyLearningPoints:
		return len(p.KeyLearningPoints) > 0
	case SectionMisconceptions:
		return len(p.Misconceptions) > 0
	case SectionKeywords:
		return len(p.Keywords) > 0
	case SectionStarterQuiz:
		return p.StarterQuiz != nil
	case SectionCycle1:
		return p.Cycle1 != nil
	case SectionCycle2:
		return p.Cycle2 != nil
	case SectionCycle3:
		return p.Cycle3 != nil
	case SectionExitQuiz:
		return p.ExitQuiz != nil
	case SectionAdditionalMaterials:
		return p.AdditionalMaterials != ""
	}
	return false
}

// MissingSections returns the not-yet-present sections in canonical order.
// basedOn and additionalMaterials are user-initiated, so they are not
// treated as missing for autocompletion.
func (p *LessonPlan) MissingSections() []SectionKey {
	var out []SectionKey
	for _, key := range SectionOrder {
		if key == SectionBasedOn || key == SectionAdditionalMaterials {
			continue
		}
		if !p.Has(key) {
			out = append(out, key)
		}
	}
	return out
}

// IsMathsSubject is the predicate behind quiz-agent routing. Maths lessons
// get their quizzes from the retrieval pipeline instead of direct prose
// generation.
func IsMathsSubject(subject string) bool {
	switch strings.ToLower(strings.TrimSpace(subject)) {
	case "maths", "math", "mathematics":
		return true
	}
	return false
}

// Clone returns a deep-enough copy for patch application: slices and
// pointer sections are copied so a rejected patch never leaks partial
// writes into the caller's document.
func (p *LessonPlan) Clone() *LessonPlan {
	out := *p
	out.LearningCycles = append([]string(nil), p.LearningCycles...)
	out.PriorKnowledge = append([]string(nil), p.PriorKnowledge...)
	out.KeyLearningPoints = append([]string(nil), p.KeyLearningPoints...)
	out.Misconceptions = append([]Misconception(nil), p.Misconceptions...)
	out.Keywords = append([]Keyword(nil), p.Keywords...)
	if p.BasedOn != nil {
		b := *p.BasedOn
		out.BasedOn = &b
	}
	if p.StarterQuiz != nil {
		q := *p.StarterQuiz
		q.Questions = append([]quiz.QuestionV2(nil), p.StarterQuiz.Questions...)
		out.StarterQuiz = &q
	}
	if p.ExitQuiz != nil {
		q := *p.ExitQuiz
		q.Questions = append([]quiz.QuestionV2(nil), p.ExitQuiz.Questions...)
		out.ExitQuiz = &q
	}
	for _, c := range []struct {
		src *Cycle
		dst **Cycle
	}{
		{p.Cycle1, &out.Cycle1},
		{p.Cycle2, &out.Cycle2},
		{p.Cycle3, &out.Cycle3},
	} {
		if c.src != nil {
			cp := *c.src
			*c.dst = &cp
		}
	}
	return &out
}
