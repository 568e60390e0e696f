package hooks

import (
	"bytes"
	"testing"

	"github.com/seleniaproject/proptest/internal/testkit/assert"
)

func TestTable_NilSlotsDefaultToContinue(t *testing.T) {
	var table Table

	out, err := table.InvokePreRun(Envelope{}, PreRunData{})
	assert.NoError(t, err)
	assert.Equal(t, Continue, out)

	out, err = table.InvokePostTrial(Envelope{}, PostTrialData{})
	assert.NoError(t, err)
	assert.Equal(t, Continue, out)
}

func TestTable_InvokesRegisteredCallback(t *testing.T) {
	called := false
	table := Table{
		PreTrial: func(env Envelope, data PreTrialData) Outcome {
			called = true

			return Halt
		},
	}

	out, err := table.InvokePreTrial(Envelope{}, PreTrialData{TrialIndex: 3})
	assert.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, Halt, out)
}

func TestTable_UnknownOutcomeIsFatal(t *testing.T) {
	table := Table{
		PostShrink: func(Envelope, PostShrinkData) Outcome {
			return Outcome(99)
		},
	}

	out, err := table.InvokePostShrink(Envelope{}, PostShrinkData{})
	assert.Error(t, err)
	assert.Equal(t, Error, out)
}

func TestOutcome_Valid(t *testing.T) {
	assert.True(t, Continue.Valid())
	assert.True(t, Error.Valid())
	assert.False(t, Outcome(-1).Valid())
	assert.False(t, Outcome(100).Valid())
}

func TestNewWriterTable_WritesRunBoundaries(t *testing.T) {
	var buf bytes.Buffer
	table := NewWriterTable(&buf)

	env := Envelope{PropertyName: "prop.Example", RunSeed: 42}

	out, err := table.InvokePreRun(env, PreRunData{})
	assert.NoError(t, err)
	assert.Equal(t, Continue, out)

	_, err = table.InvokePostRun(env, PostRunData{Failed: true})
	assert.NoError(t, err)

	assert.Contains(t, buf.String(), "prop.Example")
	assert.Contains(t, buf.String(), "failed=true")
}
