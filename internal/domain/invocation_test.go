package domain

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputJSON(t *testing.T) {
	var in Input
	require.NoError(t, json.Unmarshal([]byte(`"Hello"`), &in))
	assert.Equal(t, []string{"Hello"}, in.Items())

	require.NoError(t, json.Unmarshal([]byte(`["a","b"]`), &in))
	assert.Equal(t, "a\nb", in.Text())

	err := json.Unmarshal([]byte(`42`), &in)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	data, err := json.Marshal(TextInput("hi"))
	require.NoError(t, err)
	assert.JSONEq(t, `"hi"`, string(data))

	data, err = json.Marshal(ItemsInput("a", "b"))
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b"]`, string(data))
}

func TestInputIsEmpty(t *testing.T) {
	assert.True(t, Input{}.IsEmpty())
	assert.True(t, ItemsInput(" ", "\n").IsEmpty())
	assert.False(t, ItemsInput("", "x").IsEmpty())
}

func TestRunContextConcurrentAccess(t *testing.T) {
	rc := NewRunContext(map[string]any{"user_id": "u1"})

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rc.Set("k", i)
			_, _ = rc.Get("user_id")
			_ = rc.Snapshot()
		}()
	}
	wg.Wait()

	v, ok := rc.Get("user_id")
	assert.True(t, ok)
	assert.Equal(t, "u1", v)

	var nilRC *RunContext
	_, ok = nilRC.Get("x")
	assert.False(t, ok)
	assert.Nil(t, nilRC.Snapshot())
	nilRC.Set("x", 1)
}

func TestRunContextZeroValue(t *testing.T) {
	var rc RunContext
	require.NotPanics(t, func() { rc.Set("guardrail.check", map[string]any{"is_flagged": false}) })

	v, ok := rc.Get("guardrail.check")
	assert.True(t, ok)
	assert.Equal(t, map[string]any{"is_flagged": false}, v)
	assert.Len(t, rc.Snapshot(), 1)
}

func TestOutputPayloadText(t *testing.T) {
	assert.Equal(t, "plain", Output{Text: "plain"}.PayloadText())

	structured := Output{Text: "```json\n{}\n```", Structured: map[string]any{"response": "hi"}}
	assert.JSONEq(t, `{"response":"hi"}`, structured.PayloadText())
}

func TestResultVariants(t *testing.T) {
	results := []InvocationResult{
		Completed{InvocationID: "1"},
		Blocked{InvocationID: "2"},
		NewFailed("3", NewDomainError("Router.Route", ErrInvalidRoute, "")),
	}
	want := []Outcome{OutcomeCompleted, OutcomeBlocked, OutcomeFailed}
	for i, r := range results {
		assert.Equal(t, want[i], r.Outcome())
	}

	f := results[2].(Failed)
	assert.Equal(t, "3", f.ID())
	assert.Equal(t, FailureInvalidRoute, f.Kind)
	assert.True(t, errors.Is(f, ErrInvalidRoute))
}
