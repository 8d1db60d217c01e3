package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONCodeFence(t *testing.T) {
	raw := "Here is the plan:\n```json\n{\"p10\": 4}\n```\nLet me know."
	assert.Equal(t, `{"p10": 4}`, ExtractJSON(raw))
}

func TestExtractJSONBareFence(t *testing.T) {
	raw := "```\n[1,2,3]\n```"
	assert.Equal(t, `[1,2,3]`, ExtractJSON(raw))
}

func TestExtractJSONSurroundingProse(t *testing.T) {
	raw := `Sure! {"a": {"b": 1}} Hope that helps.`
	assert.Equal(t, `{"a": {"b": 1}}`, ExtractJSON(raw))
}

func TestParseEstimate(t *testing.T) {
	raw := "```json\n{\"p10\":4,\"p50\":8,\"p90\":16,\"confidence\":0.7,\"reasoning\":\"ok\"}\n```"
	est, err := Parse[Estimate](raw)
	require.NoError(t, err)
	assert.Equal(t, 8.0, est.P50)
	assert.Equal(t, "ok", est.Reasoning)
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse[Estimate]("not json at all")
	assert.Error(t, err)
}

func TestParseArray(t *testing.T) {
	type item struct {
		ID int64 `json:"id"`
	}
	items, err := Parse[[]item](`prefix [{"id":1},{"id":2}] suffix`)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, int64(2), items[1].ID)
}
