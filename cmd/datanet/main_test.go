package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datanet-labs/datanet/pkg/canonicalize"
)

func hashOf(text string) string {
	return canonicalize.HashText(text)
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"datanet", "version"}, &stdout, &stderr)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "datanet")
}

func TestRun_UnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"datanet", "frobnicate"}, &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "Unknown command")
}

func TestRun_Hash(t *testing.T) {
	path := writeTemp(t, "value.json", `{"b": 2, "a": 1}`)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"datanet", "hash", path}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `{"a":1,"b":2}`, lines[0])
	assert.Len(t, lines[1], 64)
}

func TestRun_Compare(t *testing.T) {
	agree := writeTemp(t, "agree.json", `[{"n":1},{"n":1}]`)
	var stdout, stderr bytes.Buffer
	code := Run([]string{"datanet", "compare", agree}, &stdout, &stderr)
	assert.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), `"consensus_reached": true`)

	// Integer and float encodings must not agree; disagreement exits 1.
	split := writeTemp(t, "split.json", `[{"n":1},{"n":1.0}]`)
	stdout.Reset()
	code = Run([]string{"datanet", "compare", split}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout.String(), `"consensus_reached": false`)
}

func TestRun_Validate(t *testing.T) {
	text := "This is a test document."
	textPath := writeTemp(t, "doc.txt", text)

	recordPath := writeTemp(t, "record.json", `{
	  "verdict": "MATCH",
	  "spans": [],
	  "provenance": {
	    "match_base": 0.9, "main_content_bonus": 0, "multisource_bonus": 0,
	    "authority_boost": 0, "integrity_adjust": 0, "final": 0.9
	  },
	  "confidence": 0.9,
	  "document_ref": "`+hashOf(text)+`",
	  "checks_performed": ["schema"],
	  "trace": [],
	  "sigma": 3
	}`)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"datanet", "validate", "-record", recordPath, "-text", textPath}, &stdout, &stderr)
	assert.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "VALID")

	// A wrong document hash is reported as invalid with exit 1.
	badPath := writeTemp(t, "bad.json", strings.Replace(
		mustRead(t, recordPath), hashOf(text), strings.Repeat("0", 64), 1))
	stdout.Reset()
	code = Run([]string{"datanet", "validate", "-record", badPath, "-text", textPath}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout.String(), "INVALID")
	assert.Contains(t, stdout.String(), "drhash_mismatch")
}

func mustRead(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}
