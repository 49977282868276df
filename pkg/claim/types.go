// Package claim defines model-generated claim records and the strict
// validator that checks them against a canonical document.
package claim

// Verdict is the claim's asserted relationship to the document.
type Verdict string

const (
	VerdictMatch     Verdict = "MATCH"
	VerdictWeakMatch Verdict = "WEAK_MATCH"
	VerdictNoMatch   Verdict = "NO_MATCH"
)

// Span is a cited substring of a canonical document. Start and End are
// codepoint offsets (end exclusive), not byte offsets.
type Span struct {
	Text             string `json:"text"`
	Start            int    `json:"start"`
	End              int    `json:"end"`
	DRHash           string `json:"drhash"`
	MainContentMatch bool   `json:"main_content_match"`
	Context          string `json:"context,omitempty"`
	SourceURL        string `json:"source_url,omitempty"`
}

// ProvenanceBreakdown decomposes a confidence score into its bounded
// components. Final is the authoritative composite; the record-level
// confidence must agree with it within tolerance.
type ProvenanceBreakdown struct {
	MatchBase        float64 `json:"match_base" validate:"gte=0,lte=0.995"`
	MainContentBonus float64 `json:"main_content_bonus" validate:"gte=0,lte=0.995"`
	MultisourceBonus float64 `json:"multisource_bonus" validate:"gte=0,lte=0.995"`
	AuthorityBoost   float64 `json:"authority_boost" validate:"gte=0,lte=0.995"`
	IntegrityAdjust  float64 `json:"integrity_adjust" validate:"gte=-1,lte=1"`
	Final            float64 `json:"final" validate:"gte=0,lte=0.995"`
}

// Record is one model-generated claim about a document. The validator
// consumes it read-only; it is never mutated by the core.
type Record struct {
	Verdict             Verdict             `json:"verdict"`
	Spans               []Span              `json:"spans"`
	Provenance          ProvenanceBreakdown `json:"provenance"`
	Confidence          float64             `json:"confidence" validate:"gte=0,lte=0.995"`
	DocumentRef         string              `json:"document_ref"`
	ChecksPerformed     []string            `json:"checks_performed"`
	Trace               []int64             `json:"trace"`
	Sigma               uint8               `json:"sigma" validate:"lte=12"`
	CanonicalizeVersion string              `json:"canonicalize_version,omitempty"`
}
