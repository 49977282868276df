// Package document produces the canonical text representation of a source
// document and its drhash identity. Extraction is deliberately simple: the
// verification core only requires that identical input bytes always yield
// identical text.
package document

import (
	"html"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/datanet-labs/datanet/pkg/canonicalize"
)

// SampleRunes is the length of the canonical sample kept alongside a
// document for human inspection.
const SampleRunes = 200

// Version identifies the extraction algorithm. Claims produced against a
// different major version are rejected by the claim validator.
const Version = "1.0.0"

// Document is an immutable canonical representation of a source document.
type Document struct {
	Text   string `json:"canonical_text"`
	Sample string `json:"canonical_sample"`
	DRHash string `json:"drhash"`
}

var (
	scriptRe = regexp.MustCompile(`(?is)<script[^>]*>.*?</script[^>]*>`)
	styleRe  = regexp.MustCompile(`(?is)<style[^>]*>.*?</style[^>]*>`)
	tagRe    = regexp.MustCompile(`<[^>]+>`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// Typographic quotes and dashes collapse to ASCII so that offsets are stable
// across sources that differ only in punctuation style.
var punctReplacer = strings.NewReplacer(
	"‘", "'", "’", "'",
	"“", `"`, "”", `"`,
	"–", "-", "—", "-",
)

// Extract builds a canonical Document from raw HTML.
func Extract(rawHTML string) *Document {
	text := rawHTML

	// Multiple passes handle nested or malformed script/style blocks.
	for i := 0; i < 3; i++ {
		text = scriptRe.ReplaceAllString(text, "")
		text = styleRe.ReplaceAllString(text, "")
	}

	text = tagRe.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)
	text = norm.NFC.String(text)
	text = punctReplacer.Replace(text)
	text = spaceRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	return New(text)
}

// New wraps already-extracted canonical text in a Document.
func New(text string) *Document {
	return &Document{
		Text:   text,
		Sample: sample(text),
		DRHash: canonicalize.HashText(text),
	}
}

// CodepointLength returns the document length in codepoints; span offsets
// index into this, not into bytes.
func (d *Document) CodepointLength() int {
	return len([]rune(d.Text))
}

func sample(text string) string {
	runes := []rune(text)
	if len(runes) <= SampleRunes {
		return text
	}
	return string(runes[:SampleRunes])
}
