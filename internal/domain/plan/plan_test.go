package plan

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestSetSectionValidation(t *testing.T) {
	tests := []struct {
		name    string
		key     SectionKey
		raw     string
		wantErr string
	}{
		{"title accepted", SectionTitle, `"Glaciation"`, ""},
		{"empty title rejected", SectionTitle, `"  "`, "empty"},
		{"non-string title rejected", SectionTitle, `{"t":1}`, "expected a string"},
		{"key stage normalised", SectionKeyStage, `"Key-Stage-3"`, ""},
		{"unknown key stage rejected", SectionKeyStage, `"key-stage-9"`, "unknown key stage"},
		{"outcome within limit", SectionLearningOutcome, `"` + strings.Repeat("a", 190) + `"`, ""},
		{"outcome over limit rejected", SectionLearningOutcome, `"` + strings.Repeat("a", 191) + `"`, "exceeds 190"},
		{"prior knowledge list accepted", SectionPriorKnowledge, `["rivers erode","valleys form"]`, ""},
		{"empty list rejected", SectionPriorKnowledge, `[]`, "empty"},
		{"six-item list rejected", SectionPriorKnowledge, `["a","b","c","d","e","f"]`, "exceeds 5"},
		{"blank list item rejected", SectionKeyLearningPoints, `["fine"," "]`, "item 2 is empty"},
		{"four learning cycles rejected", SectionLearningCycles, `["a","b","c","d"]`, "exceeds 3"},
		{"based on requires id", SectionBasedOn, `{"title":"Rivers"}`, "requires id and title"},
		{"misconception without statement", SectionMisconceptions, `[{"description":"wrong"}]`, "no statement"},
		{"misconception without description", SectionMisconceptions, `[{"misconception":"ice melts up"}]`, "no description"},
		{"keyword without definition", SectionKeywords, `[{"keyword":"moraine"}]`, "no definition"},
		{"unknown section rejected", SectionKey("summary"), `"x"`, "unknown section"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &LessonPlan{}
			err := p.SetSection(tt.key, json.RawMessage(tt.raw))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("SetSection(%s) = %v", tt.key, err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("SetSection(%s) = %v, want error containing %q", tt.key, err, tt.wantErr)
			}
		})
	}
}

func TestSetSectionNormalisesKeyStage(t *testing.T) {
	p := &LessonPlan{}
	if err := p.SetSection(SectionKeyStage, json.RawMessage(`" Key-Stage-2 "`)); err != nil {
		t.Fatalf("SetSection: %v", err)
	}
	if p.KeyStage != "key-stage-2" {
		t.Errorf("KeyStage = %q", p.KeyStage)
	}
}

func TestSetSectionFoldsLegacyAliases(t *testing.T) {
	p := &LessonPlan{}
	raw := json.RawMessage(`[{"misconception":"glaciers are frozen rivers","definition":"they flow as solid ice, not liquid"}]`)
	if err := p.SetSection(SectionMisconceptions, raw); err != nil {
		t.Fatalf("SetSection: %v", err)
	}
	if p.Misconceptions[0].Description != "they flow as solid ice, not liquid" {
		t.Errorf("Description = %q", p.Misconceptions[0].Description)
	}
	if p.Misconceptions[0].Definition != "" {
		t.Errorf("legacy Definition not cleared: %q", p.Misconceptions[0].Definition)
	}

	kw := json.RawMessage(`[{"keyword":"moraine","description":"debris left by a glacier"}]`)
	if err := p.SetSection(SectionKeywords, kw); err != nil {
		t.Fatalf("SetSection: %v", err)
	}
	if p.Keywords[0].Definition != "debris left by a glacier" {
		t.Errorf("Definition = %q", p.Keywords[0].Definition)
	}
}

func TestMissingSectionsSkipsUserInitiated(t *testing.T) {
	p := &LessonPlan{}
	missing := p.MissingSections()
	for _, key := range missing {
		if key == SectionBasedOn || key == SectionAdditionalMaterials {
			t.Errorf("%s reported missing", key)
		}
	}
	if missing[0] != SectionTitle || missing[len(missing)-1] != SectionExitQuiz {
		t.Errorf("missing order = %v", missing)
	}

	p.Title = "Glaciation"
	p.Subject = "geography"
	missing = p.MissingSections()
	if missing[0] != SectionKeyStage {
		t.Errorf("first missing after title+subject = %s", missing[0])
	}
}

func TestRemoveSectionClears(t *testing.T) {
	p := &LessonPlan{Title: "Glaciation", PriorKnowledge: []string{"rivers erode"}}
	if err := p.RemoveSection(SectionTitle); err != nil {
		t.Fatalf("RemoveSection: %v", err)
	}
	if p.Has(SectionTitle) {
		t.Error("title still present after removal")
	}
	// Clearing an absent section is a no-op.
	if err := p.RemoveSection(SectionCycle1); err != nil {
		t.Fatalf("RemoveSection absent: %v", err)
	}
	if !p.Has(SectionPriorKnowledge) {
		t.Error("unrelated section cleared")
	}
}

func TestCloneIsolatesMutations(t *testing.T) {
	p := &LessonPlan{
		PriorKnowledge: []string{"rivers erode"},
		BasedOn:        &BasedOn{ID: "lesson-1", Title: "Rivers"},
		Cycle1:         &Cycle{Title: "Formation"},
	}
	c := p.Clone()
	c.PriorKnowledge[0] = "changed"
	c.BasedOn.Title = "changed"
	c.Cycle1.Title = "changed"

	if p.PriorKnowledge[0] != "rivers erode" {
		t.Error("slice mutation leaked into the original")
	}
	if p.BasedOn.Title != "Rivers" || p.Cycle1.Title != "Formation" {
		t.Error("pointer section mutation leaked into the original")
	}
}

func TestParseSectionKey(t *testing.T) {
	if key, ok := ParseSectionKey("/starterQuiz"); !ok || key != SectionStarterQuiz {
		t.Errorf("ParseSectionKey(/starterQuiz) = %q, %v", key, ok)
	}
	if _, ok := ParseSectionKey("/notASection"); ok {
		t.Error("unknown path accepted")
	}
}

func TestIsMathsSubject(t *testing.T) {
	for _, s := range []string{"maths", "Math", " MATHEMATICS "} {
		if !IsMathsSubject(s) {
			t.Errorf("IsMathsSubject(%q) = false", s)
		}
	}
	if IsMathsSubject("geography") {
		t.Error("geography classed as maths")
	}
}
