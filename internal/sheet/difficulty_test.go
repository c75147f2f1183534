package sheet

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDifficulty(t *testing.T) {
	cases := []struct {
		in   string
		want Difficulty
	}{
		{"basic", Easy},
		{"easy", Easy},
		{"Easy", Easy},
		{"EASY", Easy},
		{"Basic", Easy},
		{"medium", Medium},
		{"MeDiUm", Medium},
		{"hard", Hard},
		{"", Medium},
		{"   ", Medium},
		{"expert", "Expert"},
		{"eXPERT level", "EXPERT level"},
		{"ünknown", "Ünknown"},
		{"  hard  ", Hard},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeDifficulty(tc.in), "input %q", tc.in)
	}
}

func TestNormalizeDifficultyIdempotent(t *testing.T) {
	inputs := []string{"", "basic", "easy", "EASY", "Medium", "hard", "weird", "wEIRD", "x", " spaced ", "9lives"}
	for _, in := range inputs {
		once := NormalizeDifficulty(in)
		assert.Equal(t, once, NormalizeDifficulty(string(once)), "input %q", in)
	}
}

func TestDifficultyUnmarshalNormalizes(t *testing.T) {
	var q Question
	require.NoError(t, json.Unmarshal([]byte(`{"id":"q","title":"t","difficulty":"basic"}`), &q))
	assert.Equal(t, Easy, q.Difficulty)

	decoded, err := Decode([]byte(`{"meta":{},"topics":[{"id":"t","name":"T","subTopics":[{"id":"s","name":"S","questions":[{"id":"q","title":"Q"}]}]}]}`))
	require.NoError(t, err)
	assert.Equal(t, Medium, decoded.Topics[0].SubTopics[0].Questions[0].Difficulty, "missing difficulty defaults")
}
