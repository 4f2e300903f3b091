package rethinkdb

import (
	"fmt"
	"strings"
)

// Term is the opaque query-AST value the (out-of-scope) query builder
// produced. The core never interprets it except to fold a Backtrace
// onto it for error display; it is expected, when present, to have
// the shape []interface{}{termType, args, opts} where args is a
// []interface{} and opts is a map[string]interface{}, but any other
// shape is tolerated — rendering simply stops descending.
type Term = interface{}

// BacktraceFrame is one step of a server-reported Backtrace: either a
// positional index into a term's argument list, or a named key into
// its options object.
type BacktraceFrame struct {
	isOpt bool
	pos   int
	opt   string
}

// PosFrame builds a positional backtrace frame.
func PosFrame(i int) BacktraceFrame { return BacktraceFrame{pos: i} }

// OptFrame builds a named-option backtrace frame.
func OptFrame(k string) BacktraceFrame { return BacktraceFrame{isOpt: true, opt: k} }

// ParseBacktrace decodes the raw `b` array of a response frame into a
// sequence of BacktraceFrame values. Numeric elements become Pos
// frames, string elements become Opt frames; anything else is
// skipped.
func ParseBacktrace(raw []interface{}) []BacktraceFrame {
	frames := make([]BacktraceFrame, 0, len(raw))
	for _, elem := range raw {
		switch v := elem.(type) {
		case float64:
			frames = append(frames, PosFrame(int(v)))
		case string:
			frames = append(frames, OptFrame(v))
		}
	}
	return frames
}

// RenderDbError produces the user-visible rendering of a DbError: its
// code and message, followed by an indented display of the
// originating term with a HERE marker at the position the server's
// backtrace points to, when the term and backtrace resolve cleanly.
func RenderDbError(e *DbError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)

	if e.Term == nil {
		return b.String()
	}

	b.WriteString("\n")
	writeAnnotatedTerm(&b, e.Term, e.Backtrace, 0)
	return b.String()
}

// writeAnnotatedTerm walks term descending through frames, printing a
// HERE marker at the frame-selected subterm. If any frame fails to
// resolve, it falls back to printing the whole (remaining) term
// un-annotated at the current indent.
func writeAnnotatedTerm(b *strings.Builder, term Term, frames []BacktraceFrame, indent int) {
	pad := strings.Repeat("  ", indent)

	if len(frames) == 0 {
		fmt.Fprintf(b, "%sHERE> %s\n", pad, termString(term))
		return
	}

	target, ok := descend(term, frames[0])
	if !ok {
		fmt.Fprintf(b, "%s%s\n", pad, termString(term))
		return
	}

	fmt.Fprintf(b, "%s%s\n", pad, termHeadString(term))
	writeAnnotatedTerm(b, target, frames[1:], indent+1)
}

// descend resolves one backtrace frame against term, returning the
// selected subterm.
func descend(term Term, frame BacktraceFrame) (Term, bool) {
	arr, ok := term.([]interface{})
	if !ok || len(arr) < 2 {
		return nil, false
	}

	if frame.isOpt {
		if len(arr) < 3 {
			return nil, false
		}
		opts, ok := arr[2].(map[string]interface{})
		if !ok {
			return nil, false
		}
		v, ok := opts[frame.opt]
		if !ok {
			return nil, false
		}
		return v, true
	}

	args, ok := arr[1].([]interface{})
	if !ok || frame.pos < 0 || frame.pos >= len(args) {
		return nil, false
	}
	return args[frame.pos], true
}

// termHeadString renders just the "shape" of a term node (its type
// tag, if any) without descending into every argument — used for the
// ancestor lines above a HERE marker.
func termHeadString(term Term) string {
	arr, ok := term.([]interface{})
	if !ok || len(arr) == 0 {
		return termString(term)
	}
	return fmt.Sprintf("term[%v]", arr[0])
}

func termString(term Term) string {
	encoded, err := json.Marshal(term)
	if err != nil {
		return fmt.Sprintf("%v", term)
	}
	return string(encoded)
}
