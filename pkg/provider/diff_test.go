package provider

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangedAttributes(t *testing.T) {
	desired := map[string]any{"a": 1, "b": []string{"x"}, "c": "same"}
	prior := map[string]any{"a": float64(2), "b": []any{"x"}, "c": "same", "d": true}

	assert.Equal(t, []string{"a", "d"}, ChangedAttributes(desired, prior))
	assert.Empty(t, ChangedAttributes(prior, prior))
}

func TestDecide(t *testing.T) {
	assert.Equal(t, ActionNoop, Decide(nil, []string{"name"}).Action)
	assert.Equal(t, ActionUpdate, Decide([]string{"ttl"}, []string{"name"}).Action)
	resp := Decide([]string{"name", "ttl"}, []string{"name"})
	assert.Equal(t, ActionReplace, resp.Action)
	assert.Equal(t, []string{"name", "ttl"}, resp.ChangedAttributes)
}

func TestPlanFromRequest(t *testing.T) {
	resp, err := PlanFromRequest(&PlanRequest{DesiredConfigJSON: []byte(`{}`)}, nil)
	require.NoError(t, err)
	assert.Equal(t, ActionCreate, resp.Action)

	desired, _ := json.Marshal(map[string]any{"bucket": Unknown})
	prior, _ := json.Marshal(map[string]any{"bucket": "ptr://aws:S3.Bucket/site/bucket"})
	resp, err = PlanFromRequest(&PlanRequest{DesiredConfigJSON: desired, PriorInputsJSON: prior}, []string{"bucket"})
	require.NoError(t, err)
	assert.Equal(t, ActionReplace, resp.Action)
}

func TestAction_RoundTrip(t *testing.T) {
	for _, a := range []Action{ActionNoop, ActionCreate, ActionUpdate, ActionReplace, ActionDelete} {
		assert.Equal(t, a, ParseAction(a.String()))
	}
}
