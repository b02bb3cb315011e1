package crdt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationWireShape(t *testing.T) {
	s := NewSequence("a")
	s.SeedFromText("x")
	op := s.InsertLocal(1, 'y')

	data, err := json.Marshal(op)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "insert", raw["type"])
	assert.Equal(t, "y", raw["char"])
	assert.Equal(t, "a", raw["replica"])
	assert.Contains(t, raw, "after")

	var back Operation
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, op, back)
}

func TestOperationDecodeDelete(t *testing.T) {
	data := []byte(`{"type":"delete","position":0,"replica":"seed","counter":1}`)
	var op Operation
	require.NoError(t, json.Unmarshal(data, &op))
	assert.Equal(t, OpDelete, op.Kind)
	assert.Equal(t, Identifier{Replica: "seed", Counter: 1}, op.ID)
	assert.Nil(t, op.After)
}

func TestOperationDecodeRejectsGarbage(t *testing.T) {
	cases := map[string]string{
		"unknown type":  `{"type":"retain","position":0,"replica":"a","counter":1}`,
		"no identifier": `{"type":"delete","position":0}`,
		"empty insert":  `{"type":"insert","position":0,"replica":"a","counter":1}`,
	}
	for name, body := range cases {
		var op Operation
		assert.Error(t, json.Unmarshal([]byte(body), &op), name)
	}
}

func TestOperationDecodeRejectsMultiRuneChar(t *testing.T) {
	cases := map[string]string{
		"two ascii":      `{"type":"insert","position":0,"char":"ab","replica":"a","counter":1}`,
		"combining mark": `{"type":"insert","position":0,"char":"e\u0301","replica":"a","counter":1}`,
	}
	for name, body := range cases {
		var op Operation
		assert.Error(t, json.Unmarshal([]byte(body), &op), name)
	}

	// A single multi-byte rune is one character and stays valid.
	var op Operation
	require.NoError(t, json.Unmarshal(
		[]byte(`{"type":"insert","position":0,"char":"\u00e9","replica":"a","counter":1}`), &op))
	assert.Equal(t, '\u00e9', op.Value)
}
