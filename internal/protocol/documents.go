// Package protocol defines the JSON-patch document protocol: the only
// channel through which the orchestration core communicates document
// mutations and terminal conditions to the transport layer.
package protocol

import (
	"encoding/json"
	"fmt"
)

type DocumentType string

const (
	DocPatch      DocumentType = "patch"
	DocPrompt     DocumentType = "prompt"
	DocText       DocumentType = "text"
	DocState      DocumentType = "state"
	DocComment    DocumentType = "comment"
	DocModeration DocumentType = "moderation"
	DocError      DocumentType = "error"
	DocAction     DocumentType = "action"
	DocID         DocumentType = "id"
	DocBad        DocumentType = "bad"
)

type ActionKind string

const ActionShowAccountLocked ActionKind = "SHOW_ACCOUNT_LOCKED"

type PatchOpKind string

const (
	OpAdd     PatchOpKind = "add"
	OpReplace PatchOpKind = "replace"
	OpRemove  PatchOpKind = "remove"
)

// PatchOp is a single JSON-patch operation against the lesson plan.
type PatchOp struct {
	Op    PatchOpKind     `json:"op"`
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value,omitempty"`
}

type PromptOption struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Document is the tagged protocol unit. Exactly one tag (Type) is active
// per instance; the fields that apply depend on the tag.
type Document struct {
	Type DocumentType

	// patch
	Reasoning string
	Patch     *PatchOp

	// text / id / error-debug
	Value string

	// error / prompt: user-facing message
	Message string

	// prompt
	Options []PromptOption

	// state / comment: opaque payload
	Raw json.RawMessage

	// action
	Action ActionKind

	// moderation
	ModerationID string
	Categories   []string

	// bad
	OriginalType string
	Issues       string
}

func NewPatchDocument(reasoning string, op PatchOp) *Document {
	return &Document{Type: DocPatch, Reasoning: reasoning, Patch: &op}
}

func NewTextDocument(text string) *Document {
	return &Document{Type: DocText, Value: text}
}

func NewCommentDocument(comment string) *Document {
	raw, _ := json.Marshal(comment)
	return &Document{Type: DocComment, Raw: raw}
}

func NewStateDocument(value any, reasoning string) *Document {
	raw, _ := json.Marshal(value)
	return &Document{Type: DocState, Raw: raw, Reasoning: reasoning}
}

// NewErrorDocument carries a debugging value plus the user-facing message.
// The transport always delivers it as a well-formed protocol unit, never a
// raw stack trace.
func NewErrorDocument(value, message string) *Document {
	return &Document{Type: DocError, Value: value, Message: message}
}

func NewActionDocument(action ActionKind) *Document {
	return &Document{Type: DocAction, Action: action}
}

func NewModerationDocument(id string, categories []string) *Document {
	if categories == nil {
		categories = []string{}
	}
	return &Document{Type: DocModeration, ModerationID: id, Categories: categories}
}

func NewMessageIDDocument(id string) *Document {
	return &Document{Type: DocID, Value: id}
}

func NewBadDocument(originalType, issues string) *Document {
	return &Document{Type: DocBad, OriginalType: originalType, Issues: issues}
}

func (d *Document) MarshalJSON() ([]byte, error) {
	m := map[string]any{"type": d.Type}
	switch d.Type {
	case DocPatch:
		if d.Patch == nil {
			return nil, fmt.Errorf("patch document without operation")
		}
		if d.Reasoning != "" {
			m["reasoning"] = d.Reasoning
		}
		m["value"] = d.Patch
	case DocText, DocID:
		m["value"] = d.Value
	case DocState:
		m["value"] = d.Raw
		if d.Reasoning != "" {
			m["reasoning"] = d.Reasoning
		}
	case DocComment:
		m["value"] = d.Raw
	case DocModeration:
		if d.ModerationID != "" {
			m["id"] = d.ModerationID
		}
		m["categories"] = d.Categories
	case DocError:
		if d.Value != "" {
			m["value"] = d.Value
		}
		if d.Message != "" {
			m["message"] = d.Message
		}
	case DocAction:
		m["action"] = d.Action
	case DocPrompt:
		m["message"] = d.Message
		if len(d.Options) > 0 {
			m["options"] = d.Options
		}
	case DocBad:
		if d.OriginalType != "" {
			m["originalType"] = d.OriginalType
		}
		if d.Issues != "" {
			m["issues"] = d.Issues
		}
	default:
		return nil, fmt.Errorf("unknown document type %q", d.Type)
	}
	return json.Marshal(m)
}

func (d *Document) UnmarshalJSON(data []byte) error {
	var aux struct {
		Type         DocumentType    `json:"type"`
		Reasoning    string          `json:"reasoning"`
		Value        json.RawMessage `json:"value"`
		Message      string          `json:"message"`
		Options      []PromptOption  `json:"options"`
		Action       ActionKind      `json:"action"`
		ID           string          `json:"id"`
		Categories   []string        `json:"categories"`
		OriginalType string          `json:"originalType"`
		Issues       json.RawMessage `json:"issues"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	d.Type = aux.Type
	d.Reasoning = aux.Reasoning
	d.Message = aux.Message
	d.Options = aux.Options
	d.Action = aux.Action
	d.Categories = aux.Categories
	d.OriginalType = aux.OriginalType
	if len(aux.Issues) > 0 {
		d.Issues = string(aux.Issues)
	}
	switch aux.Type {
	case DocPatch:
		var op PatchOp
		if len(aux.Value) > 0 {
			if err := json.Unmarshal(aux.Value, &op); err != nil {
				return fmt.Errorf("patch value: %w", err)
			}
			d.Patch = &op
		}
	case DocText, DocID, DocError:
		if len(aux.Value) > 0 {
			// Value may be a JSON string or arbitrary JSON from a
			// misbehaving model; keep the string form either way.
			var s string
			if err := json.Unmarshal(aux.Value, &s); err == nil {
				d.Value = s
			} else {
				d.Value = string(aux.Value)
			}
		}
	case DocState, DocComment:
		d.Raw = aux.Value
	case DocModeration:
		d.ModerationID = aux.ID
	}
	return nil
}

// Validate checks the structural invariants of the active tag.
func (d *Document) Validate() error {
	switch d.Type {
	case DocPatch:
		if d.Patch == nil {
			return fmt.Errorf("patch document without operation")
		}
		return d.Patch.Validate()
	case DocError, DocText, DocState, DocComment, DocModeration, DocID, DocPrompt, DocBad:
		return nil
	case DocAction:
		if d.Action == "" {
			return fmt.Errorf("action document without action")
		}
		return nil
	}
	return fmt.Errorf("unknown document type %q", d.Type)
}

func (op *PatchOp) Validate() error {
	if op.Path == "" {
		return fmt.Errorf("patch operation has no path")
	}
	switch op.Op {
	case OpAdd, OpReplace:
		if len(op.Value) == 0 {
			return fmt.Errorf("%s operation has no value", op.Op)
		}
	case OpRemove:
	default:
		return fmt.Errorf("unknown patch op %q", op.Op)
	}
	return nil
}
