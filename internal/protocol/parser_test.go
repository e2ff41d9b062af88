package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func collect(p *StreamParser, chunks []string) []Part {
	var parts []Part
	for _, c := range chunks {
		parts = append(parts, p.Append(c)...)
	}
	parts = append(parts, p.Flush()...)
	return parts
}

func TestStreamParserSeparatedDocuments(t *testing.T) {
	stream := `{"type":"patch","reasoning":"set the title","value":{"op":"add","path":"/title","value":"Glaciation"}}` +
		"␞" +
		`{"type":"comment","value":"CHAT_START"}`

	p := NewStreamParser()
	parts := collect(p, []string{stream})
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if parts[0].Doc == nil || parts[0].Doc.Type != DocPatch {
		t.Fatalf("first part is not a patch: %+v", parts[0])
	}
	if got := parts[0].Doc.Patch.Path; got != "/title" {
		t.Errorf("patch path = %q, want /title", got)
	}
	if parts[1].Doc == nil || parts[1].Doc.Type != DocComment {
		t.Fatalf("second part is not a comment: %+v", parts[1])
	}
}

func TestStreamParserBlankLineBoundary(t *testing.T) {
	// Separator omitted: a new document opening after a blank line still
	// counts as a boundary.
	stream := "Here is the updated plan.\n\n" +
		`{"type":"patch","value":{"op":"replace","path":"/topic","value":"Rivers"}}`

	parts := collect(NewStreamParser(), []string{stream})
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if parts[0].Doc.Type != DocText || parts[0].Doc.Value != "Here is the updated plan." {
		t.Errorf("unexpected text part: %+v", parts[0].Doc)
	}
	if parts[1].Doc.Type != DocPatch || parts[1].Doc.Patch.Op != OpReplace {
		t.Errorf("unexpected patch part: %+v", parts[1].Doc)
	}
}

func TestStreamParserChunkedAcrossBoundaries(t *testing.T) {
	doc := `{"type":"patch","reasoning":"add a key learning point","value":{"op":"add","path":"/keyLearningPoints","value":["Ice erodes rock"]}}`
	full := doc + "␞" + doc

	// Feed one byte at a time so every boundary, including the multi-byte
	// separator, is split.
	var chunks []string
	for i := 0; i < len(full); i++ {
		chunks = append(chunks, full[i:i+1])
	}
	parts := collect(NewStreamParser(), chunks)
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	for i, part := range parts {
		if part.Doc == nil || part.Doc.Type != DocPatch {
			t.Fatalf("part %d is not a patch: %+v", i, part)
		}
		if part.Partial {
			t.Errorf("part %d marked partial", i)
		}
	}
}

func TestStreamParserBracesInsideStrings(t *testing.T) {
	doc := `{"type":"text","value":"set {curly} text with \"quotes\" and }"}`
	parts := collect(NewStreamParser(), []string{doc})
	if len(parts) != 1 {
		t.Fatalf("expected 1 part, got %d", len(parts))
	}
	want := `set {curly} text with "quotes" and }`
	if got := parts[0].Doc.Value; got != want {
		t.Errorf("value = %q, want %q", got, want)
	}
}

func TestStreamParserFlushRepairsTruncatedDocument(t *testing.T) {
	truncated := `{"type":"patch","reasoning":"partial","value":{"op":"add","path":"/title","value":"Glaci`

	p := NewStreamParser()
	if parts := p.Append(truncated); len(parts) != 0 {
		t.Fatalf("incomplete document emitted early: %+v", parts)
	}
	parts := p.Flush()
	if len(parts) != 1 {
		t.Fatalf("expected 1 flushed part, got %d", len(parts))
	}
	if !parts[0].Partial {
		t.Error("flushed part not marked partial")
	}
	if parts[0].Doc == nil || parts[0].Doc.Type != DocPatch {
		t.Fatalf("flushed part is not a patch: %+v", parts[0])
	}
	if !json.Valid([]byte(parts[0].Text)) {
		t.Errorf("repaired text is not valid JSON: %s", parts[0].Text)
	}
}

func TestStreamParserMalformedDocumentBecomesBad(t *testing.T) {
	stream := `{"type":"patch","value":{"op":}}` + "␞" + `{"type":"comment","value":"CHAT_END"}`
	parts := collect(NewStreamParser(), []string{stream})
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if parts[0].Doc.Type != DocBad {
		t.Errorf("malformed part type = %q, want bad", parts[0].Doc.Type)
	}
	if parts[1].Doc.Type != DocComment {
		t.Errorf("recovery failed, second part = %q", parts[1].Doc.Type)
	}
}

func TestStreamParserNoRescan(t *testing.T) {
	// A large already-consumed prefix must not be re-scanned: the cursor
	// only moves forward.
	p := NewStreamParser()
	big := strings.Repeat("x", 1<<16)
	p.Append(big + "␞")
	if p.pos == 0 {
		t.Fatal("cursor did not advance past consumed part")
	}
	parts := p.Append(`{"type":"comment","value":"done"}␞`)
	if len(parts) != 1 || parts[0].Doc.Type != DocComment {
		t.Fatalf("unexpected parts after large prefix: %+v", parts)
	}
}

func TestUntruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"mid string", `{"a":"hel`, `{"a":"hel"}`},
		{"dangling key", `{"a":1,"b":`, `{"a":1}`},
		{"open array", `{"a":[1,2`, `{"a":[1,2]}`},
		{"nested", `{"a":{"b":["x"`, `{"a":{"b":["x"]}}`},
		{"complete", `{"a":1}`, `{"a":1}`},
		{"hopeless", `not json`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Untruncate(tt.in)
			if got != tt.want {
				t.Errorf("Untruncate(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if got != "" && !json.Valid([]byte(got)) {
				t.Errorf("result is not valid JSON: %q", got)
			}
		})
	}
}
