package rethinkdb

import (
	"strings"
	"testing"
)

func TestRenderDbErrorAnnotatesMultiLevelBacktrace(t *testing.T) {
	// term[170] (ADD) applied to two args: term[15] (GET) and a raw 5,
	// where the GET itself takes one positional arg — a string key.
	// Backtrace [0, 0] resolves through ADD's first arg (the GET), then
	// GET's first arg (the string key), where the HERE marker lands.
	getTerm := []interface{}{15, []interface{}{"missing-key"}, map[string]interface{}{}}
	addTerm := []interface{}{170, []interface{}{getTerm, 5}, map[string]interface{}{}}

	backtrace := []BacktraceFrame{PosFrame(0), PosFrame(0)}

	dbErr := &DbError{
		Code:      ErrRuntime,
		Term:      addTerm,
		Message:   "No such key",
		Backtrace: backtrace,
	}

	rendered := RenderDbError(dbErr)

	if !strings.Contains(rendered, "RuntimeError: No such key") {
		t.Fatalf("rendered error missing header: %q", rendered)
	}
	if !strings.Contains(rendered, "HERE>") {
		t.Fatalf("rendered error missing HERE marker: %q", rendered)
	}
	if !strings.Contains(rendered, "missing-key") {
		t.Fatalf("rendered error did not descend to the GET term: %q", rendered)
	}
}

func TestRenderDbErrorWithoutTerm(t *testing.T) {
	dbErr := &DbError{Code: ErrBadQuery, Message: "syntax error"}
	rendered := RenderDbError(dbErr)
	if rendered != "CompileError: syntax error" {
		t.Fatalf("rendered = %q", rendered)
	}
}

func TestRenderDbErrorUnresolvableFrameFallsBack(t *testing.T) {
	term := []interface{}{1, []interface{}{}, map[string]interface{}{}}
	dbErr := &DbError{
		Code:      ErrRuntime,
		Term:      term,
		Message:   "boom",
		Backtrace: []BacktraceFrame{PosFrame(5)},
	}
	rendered := RenderDbError(dbErr)
	if strings.Contains(rendered, "HERE>") {
		t.Fatalf("expected no HERE marker for an unresolvable frame: %q", rendered)
	}
}
