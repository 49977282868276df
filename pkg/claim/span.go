package claim

import "github.com/datanet-labs/datanet/pkg/canonicalize"

// ValidateSpan checks that span is a faithful citation of canonicalText.
// Checks run in order and short-circuit on the first failure:
//  1. offsets form a valid range (start >= 0, end >= start)
//  2. end is within the codepoint length of the text
//  3. the codepoint slice [start:end) equals span.Text exactly
//  4. span.DRHash matches the text's content hash
//
// Offsets are codepoint indices; the slice is taken over runes, never bytes.
func ValidateSpan(span Span, canonicalText string) *ValidationError {
	return validateSpanAt(span, canonicalText, -1)
}

func validateSpanAt(span Span, canonicalText string, index int) *ValidationError {
	if span.Start < 0 {
		return newSpanError(CodeSpanInvalidRange, index, "start<0 (start=%d)", span.Start)
	}
	if span.End < span.Start {
		return newSpanError(CodeSpanInvalidRange, index, "end<start (start=%d,end=%d)", span.Start, span.End)
	}

	runes := []rune(canonicalText)
	if span.End > len(runes) {
		return newSpanError(CodeSpanOutOfBounds, index,
			"start=%d,end=%d,len=%d", span.Start, span.End, len(runes))
	}

	actual := string(runes[span.Start:span.End])
	if actual != span.Text {
		return newSpanError(CodeSpanTextMismatch, index,
			"expected=%q,got=%q", span.Text, actual)
	}

	expected := canonicalize.HashText(canonicalText)
	if span.DRHash != expected {
		return newSpanError(CodeSpanDRHashMismatch, index,
			"expected=%s,got=%s", expected, span.DRHash)
	}

	return nil
}
