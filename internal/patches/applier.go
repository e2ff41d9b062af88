// Package patches applies protocol patch operations to a lesson plan.
// Application is transactional per operation: a failing op leaves the
// plan exactly as it was and reports a recoverable error.
package patches

import (
	"fmt"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/domain/plan"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/protocol"
)

// ApplyError is a recoverable application failure. The orchestrator turns
// it into a protocol error document and keeps streaming; it never aborts
// the generation.
type ApplyError struct {
	Op     protocol.PatchOpKind
	Path   string
	Reason string
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("cannot %s %s: %s", e.Op, e.Path, e.Reason)
}

// Result records one applied operation.
type Result struct {
	Section plan.SectionKey
	Op      protocol.PatchOpKind
}

// Applier mutates a lesson plan with validated patch operations.
type Applier struct {
	plan *plan.LessonPlan
}

func NewApplier(p *plan.LessonPlan) *Applier {
	return &Applier{plan: p}
}

func (a *Applier) Plan() *plan.LessonPlan { return a.plan }

// Apply validates and applies a single operation. Values are checked
// against the section's schema before anything is written, so a rejected
// op cannot leave a partially written section behind.
func (a *Applier) Apply(op protocol.PatchOp) (*Result, error) {
	if err := op.Validate(); err != nil {
		return nil, &ApplyError{Op: op.Op, Path: op.Path, Reason: err.Error()}
	}
	key, ok := plan.ParseSectionKey(op.Path)
	if !ok {
		return nil, &ApplyError{Op: op.Op, Path: op.Path, Reason: "unknown section"}
	}

	switch op.Op {
	case protocol.OpAdd:
		if a.plan.Has(key) {
			return nil, &ApplyError{Op: op.Op, Path: op.Path, Reason: "section already populated, use replace"}
		}
		if err := a.setSection(key, op); err != nil {
			return nil, err
		}
	case protocol.OpReplace:
		// replace is idempotent: it succeeds whether or not the section
		// already holds a value.
		if err := a.setSection(key, op); err != nil {
			return nil, err
		}
	case protocol.OpRemove:
		if err := a.plan.RemoveSection(key); err != nil {
			return nil, &ApplyError{Op: op.Op, Path: op.Path, Reason: err.Error()}
		}
	default:
		return nil, &ApplyError{Op: op.Op, Path: op.Path, Reason: "unsupported op"}
	}
	return &Result{Section: key, Op: op.Op}, nil
}

// ApplyAll applies operations in order, collecting results and recoverable
// errors. Later operations still run after an earlier one fails.
func (a *Applier) ApplyAll(ops []protocol.PatchOp) ([]Result, []error) {
	var results []Result
	var errs []error
	for _, op := range ops {
		res, err := a.Apply(op)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results = append(results, *res)
	}
	return results, errs
}

func (a *Applier) setSection(key plan.SectionKey, op protocol.PatchOp) error {
	if err := a.plan.SetSection(key, op.Value); err != nil {
		return &ApplyError{Op: op.Op, Path: op.Path, Reason: err.Error()}
	}
	return nil
}
