package canonicalize

import (
	"encoding/json"
	"testing"
)

func FuzzCanonicalize(f *testing.F) {
	f.Add([]byte(`{"a":1,"b":2}`))
	f.Add([]byte(`{"z":{"y":"foo","x":"bar"},"a":1}`))
	f.Add([]byte(`{"html":"<script>alert('xss')</script> &"}`))
	f.Add([]byte(`{"num":123.456,"bool":true,"null":null}`))
	f.Add([]byte(`{"int":1,"float":1.0}`))
	f.Add([]byte(`{"arr":[3,1,2],"nested":{"deep":{"key":"val"}}}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`{"":"empty_key","a":""}`))
	f.Add([]byte(`{"unicode":"こんにちは","emoji":"🚀"}`))
	f.Add([]byte(`{"escape":"line1\nline2\ttab"}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		v, err := Parse(data)
		if err != nil {
			t.Skip("invalid JSON input")
			return
		}

		b1, err := Canonicalize(v)
		if err != nil {
			return
		}

		// Determinism: same input must produce identical output.
		b2, err := Canonicalize(v)
		if err != nil {
			t.Fatal("Canonicalize returned error on second call but not first")
		}
		if string(b1) != string(b2) {
			t.Errorf("non-deterministic:\n  first:  %s\n  second: %s", b1, b2)
		}

		// Output must be valid JSON.
		var check any
		if err := json.Unmarshal(b1, &check); err != nil {
			t.Errorf("output is not valid JSON: %s", string(b1))
		}

		// Idempotence: canonicalize(parse(canonicalize(v))) == canonicalize(v).
		reparsed, err := Parse(b1)
		if err != nil {
			t.Fatalf("canonical output failed to parse: %v", err)
		}
		b3, err := Canonicalize(reparsed)
		if err != nil {
			t.Fatalf("re-canonicalization failed: %v", err)
		}
		if string(b1) != string(b3) {
			t.Errorf("not idempotent:\n  first:  %s\n  replay: %s", b1, b3)
		}

		// Hash determinism.
		h1, err := Hash(v)
		if err != nil {
			return
		}
		h2, err := Hash(v)
		if err != nil {
			t.Fatal("Hash returned error on second call but not first")
		}
		if h1 != h2 {
			t.Errorf("hash non-deterministic: %s != %s", h1, h2)
		}
	})
}
