package claim

import "fmt"

// Code is a machine-parseable validation failure reason.
type Code string

const (
	CodeSchemaViolation           Code = "schema_violation"
	CodeProvenanceMismatch        Code = "provenance_mismatch"
	CodeProvenanceOutOfRange      Code = "provenance_out_of_range"
	CodeDRHashMismatch            Code = "drhash_mismatch"
	CodeCanonicalizerIncompatible Code = "canonicalizer_incompatible"
	CodeSpanInvalidRange          Code = "span_invalid_range"
	CodeSpanOutOfBounds           Code = "span_out_of_bounds"
	CodeSpanTextMismatch          Code = "span_text_mismatch"
	CodeSpanDRHashMismatch        Code = "span_drhash_mismatch"
)

// ValidationError is the single deterministic failure reason for a claim.
// SpanIndex is the zero-based index of the offending span for span codes,
// and -1 otherwise.
type ValidationError struct {
	Code      Code
	Detail    string
	SpanIndex int
}

func (e *ValidationError) Error() string {
	if e.SpanIndex >= 0 {
		return fmt.Sprintf("%s_%d:%s", e.Code, e.SpanIndex, e.Detail)
	}
	return fmt.Sprintf("%s:%s", e.Code, e.Detail)
}

func newError(code Code, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Detail: fmt.Sprintf(format, args...), SpanIndex: -1}
}

func newSpanError(code Code, index int, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Detail: fmt.Sprintf(format, args...), SpanIndex: index}
}
