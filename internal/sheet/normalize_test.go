package sheet

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rawFixture = `{
  "data": {
    "sheet": {"name": "Striver SDE", "description": "Top interview problems", "createdAt": "2024-01-02T00:00:00Z", "slug": "sde"},
    "questions": [
      {"_id": "x1", "topic": " Arrays ", "subTopic": "Basics", "title": "Two Sum", "questionId": {"difficulty": "basic", "problemUrl": "https://leetcode.com/problems/two-sum"}, "isSolved": true},
      {"_id": "x2", "topic": "Arrays", "subTopic": "Basics", "questionId": {"name": "Three Sum", "difficulty": "MEDIUM"}},
      {"_id": "x3", "topic": "Graphs", "questionId": {"name": "BFS", "difficulty": "hard"}, "resource": "https://youtu.be/bfs"},
      {"_id": "x4", "topic": "Arrays", "subTopic": "Two Pointers", "title": "Container", "questionId": "65a1f0"},
      {"_id": "x5", "title": "Orphan", "questionId": {"difficulty": "tricky"}, "isSolved": "yes"}
    ]
  }
}`

func parseFixture(t *testing.T, raw string) Payload {
	t.Helper()
	payload, err := ParsePayload([]byte(raw))
	require.NoError(t, err)
	return payload
}

func TestNormalizeBuildsTreeInFirstSeenOrder(t *testing.T) {
	sh := Normalize(parseFixture(t, rawFixture), testIDs("id"))

	assert.Equal(t, Meta{Name: "Striver SDE", Description: "Top interview problems", UpdatedAt: "2024-01-02T00:00:00Z", Slug: "sde"}, sh.Meta)
	require.Len(t, sh.Topics, 3)
	assert.Equal(t, "Arrays", sh.Topics[0].Name)
	assert.Equal(t, "Graphs", sh.Topics[1].Name)
	assert.Equal(t, DefaultTopicName, sh.Topics[2].Name)

	arrays := sh.Topics[0]
	require.Len(t, arrays.SubTopics, 2)
	assert.Equal(t, "Basics", arrays.SubTopics[0].Name)
	assert.Equal(t, "Two Pointers", arrays.SubTopics[1].Name)

	basics := arrays.SubTopics[0].Questions
	require.Len(t, basics, 2)
	assert.Equal(t, "Two Sum", basics[0].Title)
	assert.Equal(t, Easy, basics[0].Difficulty)
	assert.Equal(t, "https://leetcode.com/problems/two-sum", basics[0].Resource)
	assert.Equal(t, "https://leetcode.com/problems/two-sum", basics[0].ProblemURL)
	assert.True(t, basics[0].IsSolved)
	assert.Equal(t, "Three Sum", basics[1].Title)
	assert.Equal(t, Medium, basics[1].Difficulty)
	assert.False(t, basics[1].IsSolved)

	graphs := sh.Topics[1]
	require.Len(t, graphs.SubTopics, 1)
	assert.Equal(t, DefaultSubTopicName, graphs.SubTopics[0].Name)
	assert.Equal(t, "https://youtu.be/bfs", graphs.SubTopics[0].Questions[0].Resource)
	assert.Equal(t, "", graphs.SubTopics[0].Questions[0].ProblemURL)

	container := arrays.SubTopics[1].Questions[0]
	assert.Equal(t, "Container", container.Title)
	assert.Equal(t, Medium, container.Difficulty, "bare questionId string carries no difficulty")

	orphan := sh.Topics[2].SubTopics[0].Questions[0]
	assert.Equal(t, Difficulty("Tricky"), orphan.Difficulty)
	assert.True(t, orphan.IsSolved)
}

func TestNormalizeNeverReusesExternalIDs(t *testing.T) {
	sh := Normalize(parseFixture(t, rawFixture), testIDs("id"))
	for _, topic := range sh.Topics {
		for _, sub := range topic.SubTopics {
			for _, q := range sub.Questions {
				assert.NotRegexp(t, `^x\d$`, q.ID)
			}
		}
	}
	require.NoError(t, sh.check(), "normalized tree must satisfy invariants")
}

func TestNormalizeTwiceDiffersOnlyInIDs(t *testing.T) {
	payload := parseFixture(t, rawFixture)
	first := Normalize(payload, testIDs("a"))
	second := Normalize(payload, testIDs("b"))

	assert.Equal(t, stripIDs(first), stripIDs(second))
	assert.NotEqual(t, first.Topics[0].ID, second.Topics[0].ID)
}

func TestParsePayloadPrefersTopLevel(t *testing.T) {
	payload := parseFixture(t, `{
		"sheet": {"name": "Top"},
		"questions": [{"topic": "T", "title": "one"}],
		"data": {"sheet": {"name": "Nested"}, "questions": [{"topic": "N", "title": "a"}, {"topic": "N", "title": "b"}]}
	}`)
	require.NotNil(t, payload.Sheet.Name)
	assert.Equal(t, "Top", *payload.Sheet.Name)
	assert.Len(t, payload.Questions, 1)
}

func TestParsePayloadMixesLevels(t *testing.T) {
	payload := parseFixture(t, `{"questions": [], "data": {"sheet": {"name": "Nested"}}}`)
	require.NotNil(t, payload.Sheet.Name)
	assert.Equal(t, "Nested", *payload.Sheet.Name)
	assert.Empty(t, payload.Questions)
}

func TestNormalizeDefaultsMeta(t *testing.T) {
	sh := Normalize(parseFixture(t, `{"questions": []}`), testIDs("id"))
	assert.Equal(t, Meta{Name: DefaultSheetName}, sh.Meta)
	assert.NotNil(t, sh.Topics)
	assert.Empty(t, sh.Topics)
}

func TestParsePayloadNullKeysDefault(t *testing.T) {
	for _, raw := range []string{
		`{"questions": null}`,
		`{"sheet": null}`,
		`{"data": null}`,
		`{"data": {}}`,
		`{"data": {"questions": null}}`,
	} {
		payload, err := ParsePayload([]byte(raw))
		require.NoError(t, err, raw)
		sh := Normalize(payload, testIDs("id"))
		assert.Equal(t, DefaultSheetName, sh.Meta.Name, raw)
		assert.Empty(t, sh.Topics, raw)
	}
}

func TestParsePayloadRejectsGarbage(t *testing.T) {
	for _, raw := range []string{`not json`, `[1,2]`, `{}`, `null`} {
		_, err := ParsePayload([]byte(raw))
		assert.True(t, errors.Is(err, ErrValidation), "payload %q", raw)
	}
}

func TestLooseBool(t *testing.T) {
	cases := map[string]bool{
		`true`: true, `false`: false, `1`: true, `0`: false,
		`"true"`: true, `"YES"`: true, `"false"`: false, `""`: false, `null`: false, `{}`: false,
	}
	for raw, want := range cases {
		var got LooseBool
		require.NoError(t, got.UnmarshalJSON([]byte(raw)), raw)
		assert.Equal(t, want, bool(got), raw)
	}
}

// testIDs returns a deterministic id generator with its own prefix.
func testIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func stripIDs(sh Sheet) Sheet {
	out := sh.Clone()
	for ti := range out.Topics {
		out.Topics[ti].ID = ""
		for si := range out.Topics[ti].SubTopics {
			out.Topics[ti].SubTopics[si].ID = ""
			for qi := range out.Topics[ti].SubTopics[si].Questions {
				out.Topics[ti].SubTopics[si].Questions[qi].ID = ""
			}
		}
	}
	return out
}
