package sheet

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

type fakeMirror struct {
	applied []Mutation
	err     error
}

func (m *fakeMirror) Apply(_ context.Context, mut Mutation) error {
	if m.err != nil {
		return m.err
	}
	m.applied = append(m.applied, mut)
	return nil
}

func openStore(t *testing.T, opts ...Option) (*Store, *MemoryPersister) {
	t.Helper()
	persister := NewMemoryPersister(nil)
	opts = append([]Option{WithIDFunc(testIDs("id")), WithClock(func() time.Time { return fixedNow })}, opts...)
	store, err := Open(context.Background(), persister, opts...)
	require.NoError(t, err)
	return store, persister
}

// arraysFixture builds T1 "Arrays" > S1 "Basics" > Q1 "Two Sum".
func arraysFixture(t *testing.T, store *Store) (Topic, SubTopic, Question) {
	t.Helper()
	ctx := context.Background()
	topic, err := store.CreateTopic(ctx, TopicInput{Name: "Arrays"})
	require.NoError(t, err)
	sub, err := store.CreateSubTopic(ctx, topic.ID, SubTopicInput{Name: "Basics"})
	require.NoError(t, err)
	q, err := store.CreateQuestion(ctx, topic.ID, sub.ID, QuestionInput{Title: "Two Sum", Difficulty: "Easy"})
	require.NoError(t, err)
	return topic, sub, q
}

func persisted(t *testing.T, p *MemoryPersister) Sheet {
	t.Helper()
	sh, err := Decode(p.Bytes())
	require.NoError(t, err)
	return sh
}

func TestOpenEmptyWritesCanonicalTree(t *testing.T) {
	store, persister := openStore(t)

	sh := store.Sheet()
	assert.Equal(t, DefaultSheetName, sh.Meta.Name)
	assert.Empty(t, sh.Topics)
	assert.True(t, IsCanonical(persister.Bytes()))
}

func TestOpenNormalizesSeedOnce(t *testing.T) {
	store, persister := openStore(t, WithSeed([]byte(rawFixture)))
	first := store.Sheet()
	require.Len(t, first.Topics, 3)
	assert.True(t, IsCanonical(persister.Bytes()))

	reopened, err := Open(context.Background(), persister, WithIDFunc(testIDs("other")), WithSeed([]byte(rawFixture)))
	require.NoError(t, err)
	assert.Equal(t, first, reopened.Sheet(), "canonical state is loaded, not re-normalized")
}

func TestOpenNormalizesRawPersistedState(t *testing.T) {
	persister := NewMemoryPersister([]byte(rawFixture))
	store, err := Open(context.Background(), persister, WithIDFunc(testIDs("id")))
	require.NoError(t, err)
	assert.Equal(t, 5, store.Sheet().QuestionCount())
	assert.True(t, IsCanonical(persister.Bytes()))
}

func TestOpenCorruptState(t *testing.T) {
	cases := map[string]string{
		"not json":     `{"meta": {`,
		"array":        `[1, 2, 3]`,
		"duplicate id": `{"meta":{},"topics":[{"id":"a","name":"A","subTopics":[]},{"id":"a","name":"B","subTopics":[]}]}`,
		"empty name":   `{"meta":{},"topics":[{"id":"a","name":"  ","subTopics":[]}]}`,
		"no keys":      `{"unrelated": true}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Open(context.Background(), NewMemoryPersister([]byte(raw)))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrCorruptState), "got %v", err)
		})
	}
}

type brokenPersister struct{}

func (brokenPersister) Load(context.Context) ([]byte, error) { return nil, errors.New("disk on fire") }
func (brokenPersister) Save(context.Context, []byte) error   { return nil }

func TestOpenLoadFailureIsPersistenceError(t *testing.T) {
	_, err := Open(context.Background(), brokenPersister{})
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.False(t, errors.Is(err, ErrCorruptState))
}

func TestOpenReturnsNoStoreWhenFirstSaveFails(t *testing.T) {
	persister := NewMemoryPersister(nil)
	persister.FailSaves(errors.New("read-only volume"))

	store, err := Open(context.Background(), persister, WithSeed([]byte(`{"questions":[{"topic":"Arrays","title":"Two Sum"}]}`)))
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.Nil(t, store)

	store, err = Open(context.Background(), persister)
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.Nil(t, store)
}

func TestToggleSolvedExample(t *testing.T) {
	store, persister := openStore(t)
	topic, sub, q := arraysFixture(t, store)

	toggled, err := store.ToggleSolved(context.Background(), topic.ID, sub.ID, q.ID)
	require.NoError(t, err)
	assert.True(t, toggled.IsSolved)
	assert.Equal(t, "Two Sum", toggled.Title)
	assert.Equal(t, Easy, toggled.Difficulty)

	saved := persisted(t, persister)
	assert.True(t, saved.Topics[0].SubTopics[0].Questions[0].IsSolved)
	assert.Equal(t, fixedNow.Format(TimeLayout), saved.Meta.UpdatedAt)

	toggled, err = store.ToggleSolved(context.Background(), topic.ID, sub.ID, q.ID)
	require.NoError(t, err)
	assert.False(t, toggled.IsSolved)
}

func TestCreateQuestionBlankTitleRejected(t *testing.T) {
	store, persister := openStore(t)
	topic, sub, _ := arraysFixture(t, store)
	before := persister.Bytes()

	_, err := store.CreateQuestion(context.Background(), topic.ID, sub.ID, QuestionInput{Title: "  ", Difficulty: "hard"})
	assert.True(t, errors.Is(err, ErrValidation))

	sh := store.Sheet()
	assert.Len(t, sh.Topics[0].SubTopics[0].Questions, 1)
	assert.Equal(t, before, persister.Bytes(), "nothing persisted on validation failure")
}

func TestCreateRejectsBlankNames(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()

	_, err := store.CreateTopic(ctx, TopicInput{Name: " \t"})
	assert.True(t, errors.Is(err, ErrValidation))

	topic, err := store.CreateTopic(ctx, TopicInput{Name: "  Graphs  "})
	require.NoError(t, err)
	assert.Equal(t, "Graphs", topic.Name)

	_, err = store.CreateSubTopic(ctx, topic.ID, SubTopicInput{Name: ""})
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestRenameBlankKeepsPreviousName(t *testing.T) {
	store, _ := openStore(t)
	topic, sub, q := arraysFixture(t, store)
	ctx := context.Background()

	renamed, err := store.RenameTopic(ctx, topic.ID, "   ")
	require.NoError(t, err)
	assert.Equal(t, "Arrays", renamed.Name)

	renamed, err = store.RenameTopic(ctx, topic.ID, " Hashing ")
	require.NoError(t, err)
	assert.Equal(t, "Hashing", renamed.Name)

	renamedSub, err := store.RenameSubTopic(ctx, topic.ID, sub.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "Basics", renamedSub.Name)

	blank := ""
	updated, err := store.UpdateQuestion(ctx, topic.ID, sub.ID, q.ID, QuestionPatch{Title: &blank})
	require.NoError(t, err)
	assert.Equal(t, "Two Sum", updated.Title)
}

func TestNotFoundAtEachLevel(t *testing.T) {
	store, _ := openStore(t)
	topic, sub, q := arraysFixture(t, store)
	ctx := context.Background()

	var nf *NotFoundError
	_, err := store.RenameTopic(ctx, "missing", "x")
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, LevelTopic, nf.Level)

	_, err = store.CreateSubTopic(ctx, "missing", SubTopicInput{Name: "x"})
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, LevelTopic, nf.Level)

	err = store.DeleteSubTopic(ctx, topic.ID, "missing")
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, LevelSubTopic, nf.Level)

	_, err = store.ToggleSolved(ctx, topic.ID, "missing", q.ID)
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, LevelSubTopic, nf.Level)

	_, err = store.ToggleSolved(ctx, topic.ID, sub.ID, "missing")
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, LevelQuestion, nf.Level)

	err = store.DeleteQuestion(ctx, topic.ID, sub.ID, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	err = store.DeleteTopic(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUpdateQuestionPatchesOnlyProvidedFields(t *testing.T) {
	store, _ := openStore(t)
	topic, sub, q := arraysFixture(t, store)

	diff := "basic"
	url := " https://leetcode.com/problems/two-sum "
	solved := LooseBool(true)
	updated, err := store.UpdateQuestion(context.Background(), topic.ID, sub.ID, q.ID, QuestionPatch{
		Difficulty: &diff,
		ProblemURL: &url,
		IsSolved:   &solved,
	})
	require.NoError(t, err)
	assert.Equal(t, "Two Sum", updated.Title)
	assert.Equal(t, Easy, updated.Difficulty)
	assert.Equal(t, "https://leetcode.com/problems/two-sum", updated.ProblemURL)
	assert.Equal(t, "", updated.Resource)
	assert.True(t, updated.IsSolved)

	var patch QuestionPatch
	require.NoError(t, json.Unmarshal([]byte(`{"difficulty":"insane","isSolved":0}`), &patch))
	updated, err = store.UpdateQuestion(context.Background(), topic.ID, sub.ID, q.ID, patch)
	require.NoError(t, err)
	assert.Equal(t, Difficulty("Insane"), updated.Difficulty)
	assert.False(t, updated.IsSolved)
}

func TestDeleteTopicCascadesOnlyItsChildren(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()
	arrays, basics, twoSum := arraysFixture(t, store)

	graphs, err := store.CreateTopic(ctx, TopicInput{Name: "Graphs"})
	require.NoError(t, err)
	bfs, err := store.CreateSubTopic(ctx, graphs.ID, SubTopicInput{Name: "BFS"})
	require.NoError(t, err)
	q, err := store.CreateQuestion(ctx, graphs.ID, bfs.ID, QuestionInput{Title: "Rotten Oranges"})
	require.NoError(t, err)

	require.NoError(t, store.DeleteTopic(ctx, arrays.ID))

	sh := store.Sheet()
	assert.False(t, sh.hasID(arrays.ID))
	assert.False(t, sh.hasID(basics.ID))
	assert.False(t, sh.hasID(twoSum.ID))
	assert.True(t, sh.hasID(graphs.ID))
	assert.True(t, sh.hasID(bfs.ID))
	assert.True(t, sh.hasID(q.ID))
	assert.Equal(t, 1, sh.QuestionCount())
}

func TestReorderTopicsExample(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()
	a, err := store.CreateTopic(ctx, TopicInput{Name: "A"})
	require.NoError(t, err)
	b, err := store.CreateTopic(ctx, TopicInput{Name: "B"})
	require.NoError(t, err)

	topics, err := store.ReorderTopics(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A"}, topicNames(topics))

	topics, err = store.ReorderTopics(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, topicNames(topics))
	assert.Equal(t, []string{"A", "B"}, topicNames(store.Sheet().Topics))
}

func TestReorderSameIDIsNoop(t *testing.T) {
	store, persister := openStore(t, WithClock(func() time.Time { return fixedNow }))
	topic, sub, q := arraysFixture(t, store)
	before := persister.Bytes()

	questions, err := store.ReorderQuestions(context.Background(), topic.ID, sub.ID, q.ID, q.ID)
	require.NoError(t, err)
	assert.Len(t, questions, 1)

	topics, err := store.ReorderTopics(context.Background(), "ghost", "ghost")
	require.NoError(t, err)
	assert.Len(t, topics, 1)
	assert.Equal(t, before, persister.Bytes())
}

func TestReorderUnknownIDIsValidationError(t *testing.T) {
	store, persister := openStore(t)
	topic, sub, q := arraysFixture(t, store)
	ctx := context.Background()
	before := persister.Bytes()

	_, err := store.ReorderQuestions(ctx, topic.ID, sub.ID, q.ID, "nope")
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = store.ReorderSubTopics(ctx, topic.ID, "nope", sub.ID)
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = store.ReorderSubTopics(ctx, "missing", "x", "y")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, before, persister.Bytes())
}

func TestReorderQuestionsWithinSubTopic(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()
	topic, sub, first := arraysFixture(t, store)
	second, err := store.CreateQuestion(ctx, topic.ID, sub.ID, QuestionInput{Title: "Three Sum"})
	require.NoError(t, err)
	third, err := store.CreateQuestion(ctx, topic.ID, sub.ID, QuestionInput{Title: "Four Sum"})
	require.NoError(t, err)

	questions, err := store.ReorderQuestions(ctx, topic.ID, sub.ID, third.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{third.ID, first.ID, second.ID}, []string{questions[0].ID, questions[1].ID, questions[2].ID})
}

func TestReorderSubTopicsForwardAndBackward(t *testing.T) {
	store, persister := openStore(t)
	ctx := context.Background()
	topic, err := store.CreateTopic(ctx, TopicInput{Name: "Arrays"})
	require.NoError(t, err)
	var ids []string
	for _, name := range []string{"Basics", "Two Pointers", "Sliding Window"} {
		sub, err := store.CreateSubTopic(ctx, topic.ID, SubTopicInput{Name: name})
		require.NoError(t, err)
		ids = append(ids, sub.ID)
	}

	subs, err := store.ReorderSubTopics(ctx, topic.ID, ids[0], ids[2])
	require.NoError(t, err)
	assert.Equal(t, []string{"Two Pointers", "Sliding Window", "Basics"}, subTopicNames(subs))
	assert.Equal(t, subTopicNames(subs), subTopicNames(persisted(t, persister).Topics[0].SubTopics))

	subs, err = store.ReorderSubTopics(ctx, topic.ID, ids[0], ids[1])
	require.NoError(t, err)
	assert.Equal(t, []string{"Basics", "Two Pointers", "Sliding Window"}, subTopicNames(subs))

	for _, active := range ids {
		for _, over := range ids {
			subs, err := store.ReorderSubTopics(ctx, topic.ID, active, over)
			require.NoError(t, err)
			got := make([]string, 0, len(subs))
			for _, sub := range subs {
				got = append(got, sub.ID)
			}
			assert.ElementsMatch(t, ids, got, "move %s over %s", active, over)
		}
	}
}

func TestPersistenceFailureRollsBack(t *testing.T) {
	store, persister := openStore(t)
	topic, sub, q := arraysFixture(t, store)
	before := store.Sheet()

	persister.FailSaves(errors.New("disk full"))
	_, err := store.ToggleSolved(context.Background(), topic.ID, sub.ID, q.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.Equal(t, before, store.Sheet(), "in-memory tree unchanged")

	err = store.DeleteTopic(context.Background(), topic.ID)
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.Len(t, store.Sheet().Topics, 1)

	persister.FailSaves(nil)
	toggled, err := store.ToggleSolved(context.Background(), topic.ID, sub.ID, q.ID)
	require.NoError(t, err, "identical retry succeeds")
	assert.True(t, toggled.IsSolved)
}

func TestMirrorReceivesAssignedIDs(t *testing.T) {
	mirror := &fakeMirror{}
	store, _ := openStore(t, WithMirror(mirror))
	topic, sub, q := arraysFixture(t, store)

	require.Len(t, mirror.applied, 3)
	assert.Equal(t, OpCreateTopic, mirror.applied[0].Op)
	assert.Equal(t, topic.ID, mirror.applied[0].ID)
	assert.Equal(t, sub.ID, mirror.applied[1].ID)
	assert.Equal(t, topic.ID, mirror.applied[1].TopicID)
	require.NotNil(t, mirror.applied[2].Question)
	assert.Equal(t, q.ID, mirror.applied[2].Question.ID)
}

func TestMirrorFailureRollsBack(t *testing.T) {
	mirror := &fakeMirror{}
	store, persister := openStore(t, WithMirror(mirror))
	arraysFixture(t, store)
	before := persister.Bytes()

	mirror.err = errors.New("remote down")
	_, err := store.CreateTopic(context.Background(), TopicInput{Name: "Graphs"})
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.Len(t, store.Sheet().Topics, 1)
	assert.Equal(t, before, persister.Bytes())
}

func TestCreateWithClientIDMustBeUnique(t *testing.T) {
	store, _ := openStore(t)
	topic, _, _ := arraysFixture(t, store)

	created, err := store.CreateTopic(context.Background(), TopicInput{ID: "client-1", Name: "Graphs"})
	require.NoError(t, err)
	assert.Equal(t, "client-1", created.ID)

	_, err = store.CreateTopic(context.Background(), TopicInput{ID: topic.ID, Name: "Dup"})
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestCreateRejectsUnaddressableIDs(t *testing.T) {
	store, persister := openStore(t)
	ctx := context.Background()
	before := persister.Bytes()

	for _, id := range []string{"a/b", "with space", "q?x", "50%", "..", "."} {
		_, err := store.CreateTopic(ctx, TopicInput{ID: id, Name: "Arrays"})
		var validation *ValidationError
		require.True(t, errors.As(err, &validation), "id %q", id)
		assert.Equal(t, "id", validation.Field)
	}
	assert.Equal(t, before, persister.Bytes())

	created, err := store.CreateTopic(ctx, TopicInput{ID: "arrays_v2.1-~", Name: "Arrays"})
	require.NoError(t, err)
	assert.Equal(t, "arrays_v2.1-~", created.ID)
}

func TestMirrorRunsBeforeLocalSave(t *testing.T) {
	mirror := &fakeMirror{}
	store, persister := openStore(t, WithMirror(mirror))

	persister.FailSaves(errors.New("disk full"))
	_, err := store.CreateTopic(context.Background(), TopicInput{ID: "t-remote", Name: "Arrays"})
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.Empty(t, store.Sheet().Topics)
	require.Len(t, mirror.applied, 1, "the remote has already accepted the change")

	persister.FailSaves(nil)
	_, err = store.CreateTopic(context.Background(), TopicInput{ID: "t-remote", Name: "Arrays"})
	require.NoError(t, err)
	assert.Equal(t, "t-remote", mirror.applied[1].ID, "a retry carries the caller-chosen id again")
}

func TestCommitHookSeesCommittedState(t *testing.T) {
	var ops []Op
	store, _ := openStore(t, WithCommitHook(func(m Mutation, s Sheet) {
		ops = append(ops, m.Op)
		s.Topics = nil
	}))
	arraysFixture(t, store)

	assert.Equal(t, []Op{OpCreateTopic, OpCreateSubTopic, OpCreateQuestion}, ops)
	assert.Len(t, store.Sheet().Topics, 1, "hooks get a private copy")
}

func TestResetReplacesTree(t *testing.T) {
	store, persister := openStore(t)
	arraysFixture(t, store)

	sh, err := store.Reset(context.Background(), []byte(rawFixture))
	require.NoError(t, err)
	assert.Len(t, sh.Topics, 3)
	assert.Equal(t, "Striver SDE", sh.Meta.Name)
	assert.Equal(t, fixedNow.Format(TimeLayout), sh.Meta.UpdatedAt)
	assert.Equal(t, sh, persisted(t, persister))

	_, err = store.Reset(context.Background(), []byte(`nope`))
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Len(t, store.Sheet().Topics, 3)
}

func TestUpdateMeta(t *testing.T) {
	store, _ := openStore(t)
	name := "  My Sheet "
	desc := "practice"
	meta, err := store.UpdateMeta(context.Background(), MetaPatch{Name: &name, Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "My Sheet", meta.Name)
	assert.Equal(t, "practice", meta.Description)
	assert.Equal(t, fixedNow.Format(TimeLayout), meta.UpdatedAt)

	blank := " "
	meta, err = store.UpdateMeta(context.Background(), MetaPatch{Name: &blank})
	require.NoError(t, err)
	assert.Equal(t, "My Sheet", meta.Name)
}

func TestSheetReturnsCopy(t *testing.T) {
	store, _ := openStore(t)
	arraysFixture(t, store)

	sh := store.Sheet()
	sh.Topics[0].Name = "mutated"
	sh.Topics[0].SubTopics[0].Questions[0].Title = "mutated"

	fresh := store.Sheet()
	assert.Equal(t, "Arrays", fresh.Topics[0].Name)
	assert.Equal(t, "Two Sum", fresh.Topics[0].SubTopics[0].Questions[0].Title)
}

func TestFilePersisterRoundTrip(t *testing.T) {
	path := t.TempDir() + "/nested/sheet.json"
	persister := NewFilePersister(path)

	_, err := persister.Load(context.Background())
	require.ErrorIs(t, err, ErrNoState)

	store, err := Open(context.Background(), persister, WithSeed([]byte(rawFixture)))
	require.NoError(t, err)

	reopened, err := Open(context.Background(), NewFilePersister(path))
	require.NoError(t, err)
	assert.Equal(t, store.Sheet(), reopened.Sheet())
}

func topicNames(topics []Topic) []string {
	names := make([]string, len(topics))
	for i, topic := range topics {
		names[i] = topic.Name
	}
	return names
}

func subTopicNames(subs []SubTopic) []string {
	names := make([]string, 0, len(subs))
	for _, sub := range subs {
		names = append(names, sub.Name)
	}
	return names
}
