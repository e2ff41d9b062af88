package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/domain/quiz"
)

const (
	maxLearningOutcomeLen = 190
	maxLearningCycles     = 3
	maxListItems          = 5
)

// section binds a key to its decode, validate, assign and clear behaviour.
// One authoritative table, so patch handling stays declarative.
type section struct {
	validateAndAssign func(p *LessonPlan, raw json.RawMessage) error
	clear             func(p *LessonPlan)
}

func decodeStrict(raw json.RawMessage, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func stringSection(assign func(p *LessonPlan, v string), maxLen int) func(*LessonPlan, json.RawMessage) error {
	return func(p *LessonPlan, raw json.RawMessage) error {
		var v string
		if err := decodeStrict(raw, &v); err != nil {
			return fmt.Errorf("expected a string: %w", err)
		}
		v = strings.TrimSpace(v)
		if v == "" {
			return fmt.Errorf("value is empty")
		}
		if maxLen > 0 && len(v) > maxLen {
			return fmt.Errorf("value exceeds %d characters", maxLen)
		}
		assign(p, v)
		return nil
	}
}

func stringListSection(assign func(p *LessonPlan, v []string), maxItems int) func(*LessonPlan, json.RawMessage) error {
	return func(p *LessonPlan, raw json.RawMessage) error {
		var v []string
		if err := decodeStrict(raw, &v); err != nil {
			return fmt.Errorf("expected an array of strings: %w", err)
		}
		if len(v) == 0 {
			return fmt.Errorf("list is empty")
		}
		if maxItems > 0 && len(v) > maxItems {
			return fmt.Errorf("list exceeds %d items", maxItems)
		}
		for i, item := range v {
			if strings.TrimSpace(item) == "" {
				return fmt.Errorf("item %d is empty", i+1)
			}
		}
		assign(p, v)
		return nil
	}
}

func quizSection(assign func(p *LessonPlan, q *quiz.Quiz)) func(*LessonPlan, json.RawMessage) error {
	return func(p *LessonPlan, raw json.RawMessage) error {
		q, err := quiz.ParseQuiz(raw)
		if err != nil {
			return err
		}
		if err := q.Validate(); err != nil {
			return err
		}
		assign(p, q)
		return nil
	}
}

func cycleSection(assign func(p *LessonPlan, c *Cycle)) func(*LessonPlan, json.RawMessage) error {
	return func(p *LessonPlan, raw json.RawMessage) error {
		var c Cycle
		if err := decodeStrict(raw, &c); err != nil {
			return fmt.Errorf("expected a learning cycle object: %w", err)
		}
		if strings.TrimSpace(c.Title) == "" {
			return fmt.Errorf("cycle title is required")
		}
		if len(c.Explanation.SpokenExplanation) == 0 {
			return fmt.Errorf("cycle explanation is required")
		}
		assign(p, &c)
		return nil
	}
}

var sections = map[SectionKey]section{
	SectionTitle: {
		validateAndAssign: stringSection(func(p *LessonPlan, v string) { p.Title = v }, 0),
		clear:             func(p *LessonPlan) { p.Title = "" },
	},
	SectionSubject: {
		validateAndAssign: stringSection(func(p *LessonPlan, v string) { p.Subject = v }, 0),
		clear:             func(p *LessonPlan) { p.Subject = "" },
	},
	SectionKeyStage: {
		validateAndAssign: func(p *LessonPlan, raw json.RawMessage) error {
			var v string
			if err := decodeStrict(raw, &v); err != nil {
				return fmt.Errorf("expected a string: %w", err)
			}
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "early-years-foundation-stage", "key-stage-1", "key-stage-2", "key-stage-3", "key-stage-4", "key-stage-5", "specialist":
				p.KeyStage = strings.ToLower(strings.TrimSpace(v))
				return nil
			}
			return fmt.Errorf("unknown key stage %q", v)
		},
		clear: func(p *LessonPlan) { p.KeyStage = "" },
	},
	SectionTopic: {
		validateAndAssign: stringSection(func(p *LessonPlan, v string) { p.Topic = v }, 0),
		clear:             func(p *LessonPlan) { p.Topic = "" },
	},
	SectionBasedOn: {
		validateAndAssign: func(p *LessonPlan, raw json.RawMessage) error {
			var b BasedOn
			if err := decodeStrict(raw, &b); err != nil {
				return fmt.Errorf("expected a basedOn object: %w", err)
			}
			if b.ID == "" || b.Title == "" {
				return fmt.Errorf("basedOn requires id and title")
			}
			p.BasedOn = &b
			return nil
		},
		clear: func(p *LessonPlan) { p.BasedOn = nil },
	},
	SectionLearningOutcome: {
		validateAndAssign: stringSection(func(p *LessonPlan, v string) { p.LearningOutcome = v }, maxLearningOutcomeLen),
		clear:             func(p *LessonPlan) { p.LearningOutcome = "" },
	},
	SectionLearningCycles: {
		validateAndAssign: stringListSection(func(p *LessonPlan, v []string) { p.LearningCycles = v }, maxLearningCycles),
		clear:             func(p *LessonPlan) { p.LearningCycles = nil },
	},
	SectionPriorKnowledge: {
		validateAndAssign: stringListSection(func(p *LessonPlan, v []string) { p.PriorKnowledge = v }, maxListItems),
		clear:             func(p *LessonPlan) { p.PriorKnowledge = nil },
	},
	SectionKeyLearningPoints: {
		validateAndAssign: stringListSection(func(p *LessonPlan, v []string) { p.KeyLearningPoints = v }, maxListItems),
		clear:             func(p *LessonPlan) { p.KeyLearningPoints = nil },
	},
	SectionMisconceptions: {
		validateAndAssign: func(p *LessonPlan, raw json.RawMessage) error {
			var v []Misconception
			if err := decodeStrict(raw, &v); err != nil {
				return fmt.Errorf("expected an array of misconceptions: %w", err)
			}
			if len(v) == 0 {
				return fmt.Errorf("list is empty")
			}
			for i := range v {
				if v[i].Misconception == "" {
					return fmt.Errorf("misconception %d has no statement", i+1)
				}
				// Old generations wrote "definition" instead of "description".
				if v[i].Description == "" {
					v[i].Description = v[i].Definition
				}
				v[i].Definition = ""
				if v[i].Description == "" {
					return fmt.Errorf("misconception %d has no description", i+1)
				}
			}
			p.Misconceptions = v
			return nil
		},
		clear: func(p *LessonPlan) { p.Misconceptions = nil },
	},
	SectionKeywords: {
		validateAndAssign: func(p *LessonPlan, raw json.RawMessage) error {
			var v []Keyword
			if err := decodeStrict(raw, &v); err != nil {
				return fmt.Errorf("expected an array of keywords: %w", err)
			}
			if len(v) == 0 {
				return fmt.Errorf("list is empty")
			}
			for i := range v {
				if v[i].Keyword == "" {
					return fmt.Errorf("keyword %d has no term", i+1)
				}
				if v[i].Definition == "" {
					v[i].Definition = v[i].Description
				}
				v[i].Description = ""
				if v[i].Definition == "" {
					return fmt.Errorf("keyword %d has no definition", i+1)
				}
			}
			p.Keywords = v
			return nil
		},
		clear: func(p *LessonPlan) { p.Keywords = nil },
	},
	SectionStarterQuiz: {
		validateAndAssign: quizSection(func(p *LessonPlan, q *quiz.Quiz) { p.StarterQuiz = q }),
		clear:             func(p *LessonPlan) { p.StarterQuiz = nil },
	},
	SectionCycle1: {
		validateAndAssign: cycleSection(func(p *LessonPlan, c *Cycle) { p.Cycle1 = c }),
		clear:             func(p *LessonPlan) { p.Cycle1 = nil },
	},
	SectionCycle2: {
		validateAndAssign: cycleSection(func(p *LessonPlan, c *Cycle) { p.Cycle2 = c }),
		clear:             func(p *LessonPlan) { p.Cycle2 = nil },
	},
	SectionCycle3: {
		validateAndAssign: cycleSection(func(p *LessonPlan, c *Cycle) { p.Cycle3 = c }),
		clear:             func(p *LessonPlan) { p.Cycle3 = nil },
	},
	SectionExitQuiz: {
		validateAndAssign: quizSection(func(p *LessonPlan, q *quiz.Quiz) { p.ExitQuiz = q }),
		clear:             func(p *LessonPlan) { p.ExitQuiz = nil },
	},
	SectionAdditionalMaterials: {
		validateAndAssign: stringSection(func(p *LessonPlan, v string) { p.AdditionalMaterials = v }, 0),
		clear:             func(p *LessonPlan) { p.AdditionalMaterials = "" },
	},
}

// SetSection validates raw against the section's schema and assigns it.
// On error the plan is left untouched.
func (p *LessonPlan) SetSection(key SectionKey, raw json.RawMessage) error {
	s, ok := sections[key]
	if !ok {
		return fmt.Errorf("unknown section %q", key)
	}
	return s.validateAndAssign(p, raw)
}

// RemoveSection clears a section. Removing an absent section is a no-op.
func (p *LessonPlan) RemoveSection(key SectionKey) error {
	s, ok := sections[key]
	if !ok {
		return fmt.Errorf("unknown section %q", key)
	}
	s.clear(p)
	return nil
}

// ValidateSection checks a present section against its schema without
// mutating anything. Absent sections are valid (not yet generated).
func (p *LessonPlan) ValidateSection(key SectionKey) error {
	if !p.Has(key) {
		return nil
	}
	raw, err := p.SectionJSON(key)
	if err != nil {
		return err
	}
	scratch := p.Clone()
	return scratch.SetSection(key, raw)
}

// SectionJSON returns the current JSON value of a section.
func (p *LessonPlan) SectionJSON(key SectionKey) (json.RawMessage, error) {
	full, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(full, &m); err != nil {
		return nil, err
	}
	raw, ok := m[string(key)]
	if !ok {
		return nil, fmt.Errorf("section %q not present", key)
	}
	return raw, nil
}
