package consensus

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exec(outputs any) Execution {
	return Execution{Outputs: outputs}
}

func TestCompare_Unanimous(t *testing.T) {
	result := Compare([]Execution{
		exec(map[string]any{"result": 42}),
		exec(map[string]any{"result": 42}),
		exec(map[string]any{"result": 42}),
	})

	assert.True(t, result.Agreed)
	assert.Equal(t, 3, result.Executions)
	assert.Empty(t, result.Discrepancies)
	assert.Equal(t, map[string]any{"result": 42}, result.CanonicalOutput)
}

func TestCompare_Disagreement(t *testing.T) {
	result := Compare([]Execution{
		exec(map[string]any{"result": 42}),
		exec(map[string]any{"result": 43}),
	})

	assert.False(t, result.Agreed)
	assert.Nil(t, result.CanonicalOutput)
	require.Len(t, result.Discrepancies, 2)

	// Every hashed execution is listed, in original order.
	assert.Equal(t, 0, result.Discrepancies[0].Index)
	assert.Equal(t, 1, result.Discrepancies[1].Index)
	assert.NotEqual(t, result.Discrepancies[0].Hash, result.Discrepancies[1].Hash)
	assert.NotEmpty(t, result.Discrepancies[0].Hash)
}

func TestCompare_Empty(t *testing.T) {
	result := Compare(nil)

	assert.False(t, result.Agreed)
	assert.Nil(t, result.CanonicalOutput)
	assert.Empty(t, result.Discrepancies)
}

func TestCompare_Single(t *testing.T) {
	result := Compare([]Execution{exec(map[string]any{"only": true})})

	assert.True(t, result.Agreed)
	assert.Equal(t, map[string]any{"only": true}, result.CanonicalOutput)
}

func TestCompare_KeyOrderIrrelevant(t *testing.T) {
	var a, b any
	require.NoError(t, json.Unmarshal([]byte(`{"x":1,"y":[1,2]}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"y":[1,2],"x":1}`), &b))

	result := Compare([]Execution{exec(a), exec(b)})

	assert.True(t, result.Agreed)
}

func TestCompare_IntFloatSplit(t *testing.T) {
	// 1 and 1.0 are distinct canonical values and must disagree.
	a, err := decodeNumberPreserving(`{"n":1}`)
	require.NoError(t, err)
	b, err := decodeNumberPreserving(`{"n":1.0}`)
	require.NoError(t, err)

	result := Compare([]Execution{exec(a), exec(b)})

	assert.False(t, result.Agreed)
	assert.Len(t, result.Discrepancies, 2)
}

func TestCompare_HashFailureExcludedFromUnanimity(t *testing.T) {
	result := Compare([]Execution{
		exec(map[string]any{"result": 42}),
		exec(map[string]any{"bad": make(chan int)}),
		exec(map[string]any{"result": 42}),
	})

	// The hashed subset is unanimous, so consensus holds; the failed
	// execution is still reported.
	assert.True(t, result.Agreed)
	require.Len(t, result.Discrepancies, 1)
	assert.Equal(t, 1, result.Discrepancies[0].Index)
	assert.NotEmpty(t, result.Discrepancies[0].Error)
	assert.Empty(t, result.Discrepancies[0].Hash)
}

func TestCompare_AllHashFailures(t *testing.T) {
	result := Compare([]Execution{
		exec(map[string]any{"bad": make(chan int)}),
		exec(map[string]any{"bad": make(chan int)}),
	})

	assert.False(t, result.Agreed)
	assert.Len(t, result.Discrepancies, 2)
}

func TestCompare_DisagreementPlusFailure(t *testing.T) {
	result := Compare([]Execution{
		exec(map[string]any{"result": 42}),
		exec(map[string]any{"bad": make(chan int)}),
		exec(map[string]any{"result": 43}),
	})

	assert.False(t, result.Agreed)
	require.Len(t, result.Discrepancies, 3)
	assert.Empty(t, result.Discrepancies[0].Error)
	assert.NotEmpty(t, result.Discrepancies[1].Error)
	assert.Empty(t, result.Discrepancies[2].Error)
}

func decodeNumberPreserving(s string) (any, error) {
	var v any
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	err := dec.Decode(&v)
	return v, err
}
