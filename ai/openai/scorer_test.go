package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"valid json untouched", `{"score":7}`, `{"score":7}`},
		{"bare number", `8`, `{"score":8}`},
		{"missing opening quote", `{score":7}`, `{"score":7}`},
		{"missing opening quote after whitespace", "{\n  score\": 7}", "{\n  \"score\": 7}"},
		{"trailing comma", `{"score":7,}`, `{"score":7}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, repairJSON(tt.input))
		})
	}
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    float32
		wantErr error
	}{
		{name: "plain", raw: `{"score": 6}`, want: 6},
		{name: "code fence", raw: "```json\n{\"score\": 9}\n```", want: 9},
		{name: "clamped high", raw: `{"score": 42}`, want: 10},
		{name: "clamped low", raw: `{"score": -3}`, want: 0},
		{name: "bare number", raw: `4`, want: 4},
		{name: "missing score", raw: `{"relevance": 4}`, wantErr: ErrMissingScore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseScore(tt.raw)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("garbage", func(t *testing.T) {
		_, err := parseScore("I think it is relevant")
		assert.Error(t, err)
	})
}

func TestScrubString(t *testing.T) {
	assert.Equal(t, "a b c", scrubString("  a\n\n b\t\tc \x00"))
}
