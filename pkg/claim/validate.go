package claim

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"

	"github.com/datanet-labs/datanet/pkg/canonicalize"
)

// ProvenanceTolerance absorbs floating-point rounding noise between a
// declared confidence and an independently re-derived composite while still
// catching a genuinely different value. Both sides are rounded to 3 decimal
// places before comparison.
const ProvenanceTolerance = 0.002

// rangeEpsilon guards the tolerance comparison itself against float64
// representation error.
const rangeEpsilon = 1e-9

// Validator performs the strict, single-pass claim validation. It is pure
// and safe for concurrent use.
type Validator struct {
	ranges     *validator.Validate
	constraint *semver.Constraints
}

// NewValidator returns a Validator without a canonicalizer-version
// constraint.
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{ranges: v}
}

// NewValidatorWithConstraint returns a Validator that additionally requires
// any declared canonicalize_version to satisfy the semver constraint
// (e.g. "^1.0.0").
func NewValidatorWithConstraint(constraint string) (*Validator, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return nil, fmt.Errorf("claim: invalid canonicalizer constraint %q: %w", constraint, err)
	}
	v := NewValidator()
	v.constraint = c
	return v, nil
}

// ValidateJSON runs the structural gate over raw claim JSON and then the
// semantic checks against canonicalText. On success the decoded Record is
// returned. Failures are always *ValidationError values.
func (v *Validator) ValidateJSON(raw []byte, canonicalText string) (*Record, error) {
	if verr := checkSchema(raw); verr != nil {
		return nil, verr
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, newError(CodeSchemaViolation, "decode: %v", err)
	}

	if err := v.ValidateRecord(&rec, canonicalText); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ValidateRecord runs the semantic checks in their fixed order, failing fast
// on the first violation:
//  1. canonicalizer version compatibility (when constrained and declared)
//  2. confidence vs provenance.final within ProvenanceTolerance
//  3. numeric range checks on every provenance component and confidence
//  4. document_ref vs the canonical text hash
//  5. every span via ValidateSpan, carrying the span index
func (v *Validator) ValidateRecord(rec *Record, canonicalText string) error {
	if v.constraint != nil && rec.CanonicalizeVersion != "" {
		ver, err := semver.NewVersion(rec.CanonicalizeVersion)
		if err != nil {
			return newError(CodeCanonicalizerIncompatible,
				"unparseable version %q", rec.CanonicalizeVersion)
		}
		if !v.constraint.Check(ver) {
			return newError(CodeCanonicalizerIncompatible,
				"version %s does not satisfy %s", ver, v.constraint)
		}
	}

	confidence := round3(rec.Confidence)
	final := round3(rec.Provenance.Final)
	if math.Abs(confidence-final) > ProvenanceTolerance+rangeEpsilon {
		return newError(CodeProvenanceMismatch,
			"confidence=%.3f,final=%.3f", confidence, final)
	}

	if err := v.ranges.Struct(rec); err != nil {
		if ferrs, ok := err.(validator.ValidationErrors); ok && len(ferrs) > 0 {
			fe := ferrs[0]
			return newError(CodeProvenanceOutOfRange, "%s=%v", fieldPath(fe), fe.Value())
		}
		return newError(CodeProvenanceOutOfRange, "%v", err)
	}

	expected := canonicalize.HashText(canonicalText)
	if rec.DocumentRef != expected {
		return newError(CodeDRHashMismatch, "expected=%s,got=%s", expected, rec.DocumentRef)
	}

	for i, span := range rec.Spans {
		if verr := validateSpanAt(span, canonicalText, i); verr != nil {
			return verr
		}
	}

	return nil
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}

// fieldPath renders a field error as a dotted json-tag path without the
// root struct name, e.g. "provenance.final".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
