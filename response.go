package rethinkdb

// Datum is a single raw, already-JSON-decoded result value. Mapping
// it into a user-facing type is the result decoder's job, which is
// out of scope for this package.
type Datum = interface{}

// ResponseKind tags which variant of Response is populated.
type ResponseKind int

const (
	KindSingle ResponseKind = iota
	KindBatch
	KindError
)

// Response is the classified form of one decoded response frame.
// Exactly one of Datum/Batch/Err is meaningful, selected by Kind.
type Response struct {
	Kind    ResponseKind
	Datum   Datum
	Batch   []Datum
	Partial bool
	Err     *DbError
}

// Terminal reports whether this Response ends the token's stream: a
// Single, an Error, or a non-partial Batch all are; a partial Batch
// is not.
func (r Response) Terminal() bool {
	if r.Kind == KindBatch {
		return !r.Partial
	}
	return true
}

// responseTypeTag mirrors the server's `t` field.
type responseTypeTag int

const (
	rtSuccessAtom     responseTypeTag = 1
	rtSuccessSequence responseTypeTag = 2
	rtSuccessPartial  responseTypeTag = 3
	rtWaitComplete    responseTypeTag = 4
	rtClientError     responseTypeTag = 16
	rtCompileError    responseTypeTag = 17
	rtRuntimeError    responseTypeTag = 18
)

// classify maps a decoded response object (already JSON-unmarshaled
// into a generic map) plus the originating term to a typed Response,
// per spec.md §4.2's mapping table.
func classify(raw map[string]interface{}, term Term) Response {
	tagRaw, ok := raw["t"]
	if !ok {
		return unexpectedResponse(term, "missing response type tag")
	}
	tagFloat, ok := tagRaw.(float64)
	if !ok {
		return unexpectedResponse(term, "non-numeric response type tag")
	}
	tag := responseTypeTag(int(tagFloat))

	results := extractResults(raw)

	switch tag {
	case rtSuccessAtom:
		if len(results) != 1 {
			return unexpectedResponse(term, "SUCCESS_ATOM result array did not have exactly one element")
		}
		return Response{Kind: KindSingle, Datum: results[0]}

	case rtSuccessSequence:
		return Response{Kind: KindBatch, Batch: results, Partial: false}

	case rtSuccessPartial:
		return Response{Kind: KindBatch, Batch: results, Partial: true}

	case rtWaitComplete:
		return Response{Kind: KindSingle, Datum: true}

	case rtClientError:
		return errorResponse(ErrBrokenClient, raw, term, results)

	case rtCompileError:
		return errorResponse(ErrBadQuery, raw, term, results)

	case rtRuntimeError:
		return errorResponse(ErrRuntime, raw, term, results)

	default:
		return unexpectedResponse(term, "unknown response type tag")
	}
}

func extractResults(raw map[string]interface{}) []Datum {
	r, ok := raw["r"]
	if !ok {
		return nil
	}
	arr, ok := r.([]interface{})
	if !ok {
		return nil
	}
	out := make([]Datum, len(arr))
	copy(out, arr)
	return out
}

func errorResponse(code ErrorCode, raw map[string]interface{}, term Term, results []Datum) Response {
	message := ""
	if len(results) > 0 {
		if s, ok := results[0].(string); ok {
			message = s
		}
	}

	var backtrace []BacktraceFrame
	if b, ok := raw["b"]; ok {
		if arr, ok := b.([]interface{}); ok {
			backtrace = ParseBacktrace(arr)
		}
	}

	return Response{
		Kind: KindError,
		Err: &DbError{
			Code:      code,
			Term:      term,
			Message:   message,
			Backtrace: backtrace,
		},
	}
}

func unexpectedResponse(term Term, message string) Response {
	return Response{
		Kind: KindError,
		Err: &DbError{
			Code:    ErrUnexpectedResponse,
			Term:    term,
			Message: message,
		},
	}
}
