package protocol

import (
	"encoding/json"
	"strings"
)

// recordSeparator is the delimiter the model is prompted to emit between
// protocol documents. Models sometimes omit it and start the next document
// with a blank line instead, so "\n\n{" is treated as a boundary too.
const recordSeparator = "␞"

// Part is one extracted message part: either a decoded protocol document
// or free text the model interleaved between documents.
type Part struct {
	Text    string
	Doc     *Document
	Partial bool
}

// StreamParser incrementally extracts complete message parts from a
// growing LLM output buffer. It keeps a cursor over the buffer so each
// chunk is scanned once; the whole buffer is never re-parsed.
type StreamParser struct {
	buf []byte
	// pos is the start of the first unconsumed part; scan is how far the
	// completeness scanner has advanced inside it.
	pos  int
	scan int

	// brace-depth state of the in-progress JSON part
	started  bool
	depth    int
	inString bool
	escaped  bool
}

func NewStreamParser() *StreamParser {
	return &StreamParser{}
}

// Buffer returns everything accumulated so far.
func (p *StreamParser) Buffer() string { return string(p.buf) }

// Append adds a chunk and returns any parts completed by it, in stream
// order. Unfinished trailing content stays buffered for the next chunk.
func (p *StreamParser) Append(chunk string) []Part {
	p.buf = append(p.buf, chunk...)
	var parts []Part
	for {
		part, ok := p.next()
		if !ok {
			break
		}
		if part != nil {
			parts = append(parts, *part)
		}
	}
	return parts
}

// Flush terminates the stream: the trailing fragment, if any, is
// untruncated and returned as a final (possibly partial) part.
func (p *StreamParser) Flush() []Part {
	var parts []Part
	for {
		part, ok := p.next()
		if !ok {
			break
		}
		if part != nil {
			parts = append(parts, *part)
		}
	}
	rest := strings.TrimSpace(string(p.buf[p.pos:]))
	p.pos = len(p.buf)
	p.scan = len(p.buf)
	p.resetPartState()
	if rest == "" {
		return parts
	}
	if !strings.HasPrefix(rest, "{") {
		parts = append(parts, Part{Text: rest, Doc: NewTextDocument(rest)})
		return parts
	}
	repaired := Untruncate(rest)
	if repaired == "" {
		parts = append(parts, Part{Text: rest, Partial: true})
		return parts
	}
	part := decodePart(repaired)
	part.Partial = repaired != rest
	parts = append(parts, part)
	return parts
}

// next advances the scanner and returns the next complete part, or
// (nil, false) when more input is needed. A nil part with ok=true means a
// separator was consumed without yielding content.
func (p *StreamParser) next() (*Part, bool) {
	for p.scan < len(p.buf) {
		c := p.buf[p.scan]

		// Record separator ends the current part unconditionally. It is
		// three UTF-8 bytes and may straddle a chunk boundary.
		if c == recordSeparator[0] {
			if len(p.buf)-p.scan < len(recordSeparator) {
				return nil, false
			}
			if string(p.buf[p.scan:p.scan+len(recordSeparator)]) == recordSeparator {
				part := p.emit(p.pos, p.scan)
				p.pos = p.scan + len(recordSeparator)
				p.scan = p.pos
				p.resetPartState()
				return part, true
			}
		}

		if p.started {
			switch {
			case p.escaped:
				p.escaped = false
			case p.inString && c == '\\':
				p.escaped = true
			case c == '"':
				p.inString = !p.inString
			case !p.inString && c == '{':
				p.depth++
			case !p.inString && c == '}':
				p.depth--
				if p.depth == 0 {
					part := p.emit(p.pos, p.scan+1)
					p.pos = p.scan + 1
					p.scan = p.pos
					p.resetPartState()
					return part, true
				}
			}
			p.scan++
			continue
		}

		// Outside a JSON part: a '{' after a blank line starts a new
		// document even when the separator was omitted.
		if c == '{' {
			before := strings.TrimRight(string(p.buf[p.pos:p.scan]), " \t")
			if strings.TrimSpace(before) == "" || strings.HasSuffix(before, "\n\n") {
				var part *Part
				if strings.TrimSpace(before) != "" {
					part = p.emit(p.pos, p.scan)
				}
				p.pos = p.scan
				p.started = true
				p.depth = 1
				p.scan++
				if part != nil {
					return part, true
				}
				continue
			}
		}
		p.scan++
	}
	return nil, false
}

func (p *StreamParser) resetPartState() {
	p.started = false
	p.depth = 0
	p.inString = false
	p.escaped = false
}

func (p *StreamParser) emit(from, to int) *Part {
	raw := strings.TrimSpace(string(p.buf[from:to]))
	if raw == "" {
		return nil
	}
	part := decodePart(raw)
	return &part
}

func decodePart(raw string) Part {
	if !strings.HasPrefix(raw, "{") {
		return Part{Text: raw, Doc: NewTextDocument(raw)}
	}
	var doc Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil || doc.Type == "" {
		return Part{Text: raw, Doc: NewBadDocument("", "unparseable message part")}
	}
	return Part{Text: raw, Doc: &doc}
}

// Untruncate repairs a JSON fragment cut off mid-stream by trimming any
// dangling token and closing open strings, arrays and objects. Returns ""
// when no prefix can be repaired into valid JSON.
func Untruncate(fragment string) string {
	for end := len(fragment); end > 0; end-- {
		prefix := strings.TrimRight(fragment[:end], " \t\n\r,:")
		if prefix == "" {
			return ""
		}
		candidate := prefix + closersFor(prefix)
		if json.Valid([]byte(candidate)) {
			return candidate
		}
	}
	return ""
}

func closersFor(s string) string {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && (c == '{' || c == '['):
			stack = append(stack, c)
		case !inString && (c == '}' || c == ']'):
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	out := ""
	if inString {
		out += `"`
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			out += "}"
		} else {
			out += "]"
		}
	}
	return out
}
