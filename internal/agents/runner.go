package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/domain/plan"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/logger"
)

// ObjectCompleter produces a single JSON object for a prompt. The LLM
// client satisfies this; tests stub it.
type ObjectCompleter interface {
	CompleteObject(ctx context.Context, systemPrompt, userPrompt string) (json.RawMessage, error)
}

// Runner executes prompt agents: it assembles the prompt, calls the LLM
// and validates the output against the agent's section schema. Invalid
// output earns exactly one retry carrying the validation error back to
// the model.
type Runner struct {
	llm ObjectCompleter
	log *logger.Logger
}

func NewRunner(llm ObjectCompleter, log *logger.Logger) *Runner {
	return &Runner{llm: llm, log: log.With("service", "agent_runner")}
}

// Input is the context a prompt agent runs against.
type Input struct {
	Plan *plan.LessonPlan
	// UserRequest is the teacher's message that triggered this turn.
	UserRequest string
	// Examples are completed plans retrieved for few-shot grounding.
	Examples []*plan.LessonPlan
}

func (r *Runner) Run(ctx context.Context, def *Definition, in Input) (json.RawMessage, error) {
	if def.Kind != KindPrompt {
		return nil, fmt.Errorf("agent %q is not a prompt agent", def.Name)
	}

	system := r.systemPrompt(def, in)
	user := r.userPrompt(def, in)

	raw, err := r.llm.CompleteObject(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", def.Name, err)
	}
	value, verr := unwrapValue(raw, def)
	if verr == nil {
		return value, nil
	}

	r.log.Warn("agent output failed validation, retrying once",
		"agent", string(def.Name), "error", verr.Error())
	retryUser := user + "\n\n# Correction\n\nYour previous response was rejected: " +
		verr.Error() + "\nRespond again with a value that satisfies the requirements."
	raw, err = r.llm.CompleteObject(ctx, system, retryUser)
	if err != nil {
		return nil, fmt.Errorf("agent %s retry: %w", def.Name, err)
	}
	value, verr = unwrapValue(raw, def)
	if verr != nil {
		return nil, fmt.Errorf("agent %s produced invalid output after retry: %w", def.Name, verr)
	}
	return value, nil
}

// unwrapValue strips the {"value": ...} envelope the model responds with
// and validates the inner value against the section schema.
func unwrapValue(raw json.RawMessage, def *Definition) (json.RawMessage, error) {
	var envelope struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	if len(envelope.Value) == 0 {
		return nil, fmt.Errorf("response has no value field")
	}
	if err := def.ValidateOutput(envelope.Value); err != nil {
		return nil, err
	}
	return envelope.Value, nil
}

func (r *Runner) systemPrompt(def *Definition, in Input) string {
	var b strings.Builder
	b.WriteString(identity)
	b.WriteString("\n\n")
	b.WriteString(def.Instructions)
	if examples := r.ragExamples(def, in.Examples); examples != "" {
		b.WriteString("\n\n# Examples from similar Oak lessons\n\n")
		b.WriteString(examples)
	}
	b.WriteString("\n\n# Response format\n\nRespond with a single JSON object of the form {\"value\": ...} and nothing else.")
	return b.String()
}

func (r *Runner) userPrompt(def *Definition, in Input) string {
	var b strings.Builder
	b.WriteString("# Lesson plan so far\n\n")
	current, err := json.Marshal(in.Plan)
	if err != nil || in.Plan == nil {
		current = []byte("{}")
	}
	b.Write(current)
	if in.UserRequest != "" {
		b.WriteString("\n\n# The teacher's request\n\n")
		b.WriteString(in.UserRequest)
	}
	b.WriteString("\n\nGenerate the ")
	b.WriteString(string(def.Section))
	b.WriteString(" section now.")
	return b.String()
}

func (r *Runner) ragExamples(def *Definition, examples []*plan.LessonPlan) string {
	if def.ExtractRAGData == nil {
		return ""
	}
	var parts []string
	for _, ex := range examples {
		if ex == nil {
			continue
		}
		if data := def.ExtractRAGData(ex); data != "" {
			parts = append(parts, data)
		}
	}
	return strings.Join(parts, "\n")
}
