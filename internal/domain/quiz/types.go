package quiz

import (
	"encoding/json"
	"fmt"
)

// QuestionType enumerates the v2 question payload shapes. Exactly one typed
// payload is present per question, matching its type.
type QuestionType string

const (
	QuestionTypeMultipleChoice  QuestionType = "multiple-choice"
	QuestionTypeShortAnswer     QuestionType = "short-answer"
	QuestionTypeMatch           QuestionType = "match"
	QuestionTypeOrder           QuestionType = "order"
	QuestionTypeExplanatoryText QuestionType = "explanatory-text"
)

// StemItem is one element of a question stem: text or an image.
type StemItem struct {
	Type  string       `json:"type"`
	Text  string       `json:"text,omitempty"`
	Image *ImageObject `json:"image,omitempty"`
}

type ImageObject struct {
	URL         string `json:"url"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	Attribution string `json:"attribution,omitempty"`
}

func TextStem(text string) []StemItem {
	return []StemItem{{Type: "text", Text: text}}
}

// StemText flattens a stem to plain text, replacing images with their URL so
// downstream enrichment can substitute AI descriptions.
func StemText(stem []StemItem) string {
	out := ""
	for _, item := range stem {
		switch item.Type {
		case "text":
			out += item.Text
		case "image":
			if item.Image != nil {
				out += fmt.Sprintf("![](%s)", item.Image.URL)
			}
		}
	}
	return out
}

type MatchPair struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

// Answers holds the type-specific payload of a v2 question. Only the field
// matching the question's type may be set.
type Answers struct {
	MultipleChoice *MultipleChoiceAnswers `json:"multiple-choice,omitempty"`
	ShortAnswer    *ShortAnswerAnswers    `json:"short-answer,omitempty"`
	Match          *MatchAnswers          `json:"match,omitempty"`
	Order          *OrderAnswers          `json:"order,omitempty"`
}

type MultipleChoiceAnswers struct {
	Answers     []string `json:"answers"`
	Distractors []string `json:"distractors"`
}

type ShortAnswerAnswers struct {
	Answers []string `json:"answers"`
}

type MatchAnswers struct {
	Pairs []MatchPair `json:"pairs"`
}

type OrderAnswers struct {
	// Items in the semantically correct order. Display order is derived
	// separately by the deterministic shuffle.
	Items []string `json:"items"`
}

// QuestionV2 is the current quiz question schema generation.
type QuestionV2 struct {
	QuestionUID  string       `json:"questionUid,omitempty"`
	QuestionType QuestionType `json:"questionType"`
	QuestionStem []StemItem   `json:"questionStem"`
	Answers      Answers      `json:"answers,omitempty"`
	Hint         string       `json:"hint,omitempty"`
	Feedback     string       `json:"feedback,omitempty"`
}

// Validate enforces the one-payload-per-type invariant.
func (q *QuestionV2) Validate() error {
	if len(q.QuestionStem) == 0 {
		return fmt.Errorf("question stem is empty")
	}
	set := 0
	if q.Answers.MultipleChoice != nil {
		set++
	}
	if q.Answers.ShortAnswer != nil {
		set++
	}
	if q.Answers.Match != nil {
		set++
	}
	if q.Answers.Order != nil {
		set++
	}
	switch q.QuestionType {
	case QuestionTypeMultipleChoice:
		if q.Answers.MultipleChoice == nil || set != 1 {
			return fmt.Errorf("multiple-choice question requires exactly the multiple-choice payload")
		}
		if len(q.Answers.MultipleChoice.Answers) == 0 {
			return fmt.Errorf("multiple-choice question has no correct answers")
		}
	case QuestionTypeShortAnswer:
		if q.Answers.ShortAnswer == nil || set != 1 {
			return fmt.Errorf("short-answer question requires exactly the short-answer payload")
		}
		if len(q.Answers.ShortAnswer.Answers) == 0 {
			return fmt.Errorf("short-answer question has no accepted answers")
		}
	case QuestionTypeMatch:
		if q.Answers.Match == nil || set != 1 {
			return fmt.Errorf("match question requires exactly the match payload")
		}
		if len(q.Answers.Match.Pairs) < 2 {
			return fmt.Errorf("match question needs at least two pairs")
		}
	case QuestionTypeOrder:
		if q.Answers.Order == nil || set != 1 {
			return fmt.Errorf("order question requires exactly the order payload")
		}
		if len(q.Answers.Order.Items) < 2 {
			return fmt.Errorf("order question needs at least two items")
		}
	case QuestionTypeExplanatoryText:
		if set != 0 {
			return fmt.Errorf("explanatory-text question carries no answer payload")
		}
	default:
		return fmt.Errorf("unknown question type %q", q.QuestionType)
	}
	return nil
}

// QuestionV1 is the legacy flat schema, still accepted on load and upgraded
// to v2 before any further write.
type QuestionV1 struct {
	Question    string   `json:"question"`
	Answers     []string `json:"answers"`
	Distractors []string `json:"distractors"`
	Hint        string   `json:"hint,omitempty"`
	Feedback    string   `json:"feedback,omitempty"`
}

// Quiz is the persisted quiz value: v2 questions plus enrichment metadata.
type Quiz struct {
	Version       string          `json:"version"`
	Questions     []QuestionV2    `json:"questions"`
	ImageMetadata []ImageMetadata `json:"imageMetadata,omitempty"`
}

// ImageMetadata carries an AI-generated description for an image URL that
// appears somewhere in the quiz, used when prompting over image questions.
type ImageMetadata struct {
	ImageURL      string `json:"imageUrl"`
	AIDescription string `json:"aiDescription,omitempty"`
}

func (q *Quiz) Validate() error {
	if q.Version != "v2" {
		return fmt.Errorf("unsupported quiz version %q", q.Version)
	}
	if len(q.Questions) == 0 || len(q.Questions) > 6 {
		return fmt.Errorf("quiz must contain between 1 and 6 questions, got %d", len(q.Questions))
	}
	for i := range q.Questions {
		if err := q.Questions[i].Validate(); err != nil {
			return fmt.Errorf("question %d: %w", i+1, err)
		}
	}
	return nil
}

// PoolSource names where a candidate question pool came from.
type PoolSource string

const (
	PoolSourceCurrentQuiz    PoolSource = "currentQuiz"
	PoolSourceBasedOnLesson  PoolSource = "basedOnLesson"
	PoolSourceSimilarLessons PoolSource = "similarLessons"
	PoolSourceSemanticSearch PoolSource = "semanticSearch"
)

// RagQuizQuestion is a candidate question with provenance and enrichment.
type RagQuizQuestion struct {
	SourceUID     string          `json:"sourceUid"`
	LessonSlug    string          `json:"lessonSlug,omitempty"`
	Question      QuestionV2      `json:"question"`
	ImageMetadata []ImageMetadata `json:"imageMetadata,omitempty"`
}

// Pool is an immutable bag of candidate questions from a single source.
// Composition never mutates pools in place.
type Pool struct {
	Source    PoolSource        `json:"source"`
	Questions []RagQuizQuestion `json:"questions"`
}

func TotalCandidates(pools []Pool) int {
	n := 0
	for _, p := range pools {
		n += len(p.Questions)
	}
	return n
}

// QuestionByUID builds a lookup over every pool. First occurrence wins when
// a UID appears in more than one pool.
func QuestionByUID(pools []Pool) map[string]RagQuizQuestion {
	out := make(map[string]RagQuizQuestion)
	for _, p := range pools {
		for _, q := range p.Questions {
			if _, ok := out[q.SourceUID]; !ok {
				out[q.SourceUID] = q
			}
		}
	}
	return out
}

// ParseQuiz decodes a persisted quiz value, upgrading legacy v1 payloads
// (a bare question array) to v2.
func ParseQuiz(raw json.RawMessage) (*Quiz, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty quiz payload")
	}
	var v1 []QuestionV1
	if err := json.Unmarshal(raw, &v1); err == nil {
		return UpgradeV1(v1), nil
	}
	var q Quiz
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil, fmt.Errorf("quiz payload is neither v1 nor v2: %w", err)
	}
	return &q, nil
}
