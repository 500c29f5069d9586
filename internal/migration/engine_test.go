package migration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is a Store double giving tests direct control over each step's
// result without a real database.
type fakeStore struct {
	completed   []int64
	connectErr  error
	upResults   map[int64]StepResult
	upErrs      map[int64]error
	downResults map[int64]StepResult
	downErrs    map[int64]error

	upCalls   []int64
	downCalls []int64

	initCalls []string
	initErr   error
}

var _ Store = (*fakeStore)(nil)

func (s *fakeStore) Connect(ctx context.Context) error    { return s.connectErr }
func (s *fakeStore) Disconnect(ctx context.Context) error { return nil }
func (s *fakeStore) CompletedIDs(ctx context.Context) ([]int64, error) {
	return s.completed, nil
}

func (s *fakeStore) MigrateUp(ctx context.Context, d Descriptor, k Kind) (StepResult, error) {
	s.upCalls = append(s.upCalls, d.ID)
	if err, ok := s.upErrs[d.ID]; ok {
		return StepIgnored, err
	}
	if res, ok := s.upResults[d.ID]; ok {
		return res, nil
	}
	return StepSuccess, nil
}

func (s *fakeStore) MigrateDown(ctx context.Context, d Descriptor, k Kind) (StepResult, error) {
	s.downCalls = append(s.downCalls, d.ID)
	if err, ok := s.downErrs[d.ID]; ok {
		return StepIgnored, err
	}
	if res, ok := s.downResults[d.ID]; ok {
		return res, nil
	}
	return StepSuccess, nil
}

func (s *fakeStore) Init(ctx context.Context, script string, transactional bool) error {
	s.initCalls = append(s.initCalls, script)
	return s.initErr
}

func simpleSet() Set {
	return Set{
		1: {ID: 1, Name: "a", KindTag: CodeKindTag},
		2: {ID: 2, Name: "b", KindTag: CodeKindTag},
		3: {ID: 3, Name: "c", KindTag: CodeKindTag},
	}
}

func TestEngine_Run_AllSucceed(t *testing.T) {
	store := &fakeStore{}
	e, err := NewEngine(store, nil)
	require.NoError(t, err)

	outcomes, err := e.Run(context.Background(), simpleSet(), Request{Command: CommandMigrate})
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		assert.Equal(t, StatusOK, o.Status)
		assert.NoError(t, o.Err)
	}
	assert.Equal(t, []int64{1, 2, 3}, store.upCalls)
}

func TestEngine_Run_StopsAtFirstFailure(t *testing.T) {
	store := &fakeStore{
		upErrs: map[int64]error{2: assertErr("boom")},
	}
	e, err := NewEngine(store, nil)
	require.NoError(t, err)

	outcomes, err := e.Run(context.Background(), simpleSet(), Request{Command: CommandMigrate})
	require.Error(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, StatusOK, outcomes[0].Status)
	assert.Equal(t, StatusFailed, outcomes[1].Status)
	assert.Equal(t, []int64{1, 2}, store.upCalls)
}

func TestEngine_Run_IgnoredStepStopsBatch(t *testing.T) {
	store := &fakeStore{
		upResults: map[int64]StepResult{2: StepIgnored},
	}
	e, err := NewEngine(store, nil)
	require.NoError(t, err)

	outcomes, err := e.Run(context.Background(), simpleSet(), Request{Command: CommandMigrate})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, StatusOK, outcomes[0].Status)
	assert.Equal(t, StatusIgnored, outcomes[1].Status)
	assert.Equal(t, []int64{1, 2}, store.upCalls, "migration 3 must not run once the batch stops on an ignored step")
}

func TestEngine_Run_RespectsCancellationBetweenSteps(t *testing.T) {
	store := &fakeStore{}
	e, err := NewEngine(store, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes, err := e.Run(ctx, simpleSet(), Request{Command: CommandMigrate})
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Empty(t, outcomes)
	assert.Empty(t, store.upCalls)
}

func TestEngine_Run_ConnectErrorPropagates(t *testing.T) {
	store := &fakeStore{connectErr: assertErr("no db")}
	e, err := NewEngine(store, nil)
	require.NoError(t, err)

	_, err = e.Run(context.Background(), simpleSet(), Request{Command: CommandMigrate})
	assert.Error(t, err)
}

func TestEngine_Run_UnknownKindFails(t *testing.T) {
	store := &fakeStore{}
	e, err := NewEngine(store, nil)
	require.NoError(t, err)

	set := Set{1: {ID: 1, Name: "bad", KindTag: "does-not-exist"}}
	outcomes, err := e.Run(context.Background(), set, Request{Command: CommandMigrate})
	require.Error(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusFailed, outcomes[0].Status)
	assert.ErrorIs(t, outcomes[0].Err, ErrUnknownKind)
}

func TestEngine_Run_ResetRevertsThenMigratesEverything(t *testing.T) {
	store := &fakeStore{completed: []int64{1, 2, 3}}
	e, err := NewEngine(store, nil)
	require.NoError(t, err)

	outcomes, err := e.Run(context.Background(), simpleSet(), Request{Command: CommandReset})
	require.NoError(t, err)
	require.Len(t, outcomes, 6)
	assert.Equal(t, []int64{3, 2, 1}, store.downCalls)
	assert.Equal(t, []int64{1, 2, 3}, store.upCalls)
}

func TestEngine_Init_ConnectsRunsAndDisconnects(t *testing.T) {
	store := &fakeStore{}
	e, err := NewEngine(store, nil)
	require.NoError(t, err)

	require.NoError(t, e.Init(context.Background(), "CREATE TABLE t (id INT);", true))
	require.Len(t, store.initCalls, 1)
	assert.Equal(t, "CREATE TABLE t (id INT);", store.initCalls[0])
}

func TestEngine_Init_PropagatesStoreError(t *testing.T) {
	store := &fakeStore{initErr: assertErr("boom")}
	e, err := NewEngine(store, nil)
	require.NoError(t, err)

	err = e.Init(context.Background(), "select 1;", false)
	assert.Error(t, err)
}

func TestEngine_Init_ConnectErrorPropagates(t *testing.T) {
	store := &fakeStore{connectErr: assertErr("no db")}
	e, err := NewEngine(store, nil)
	require.NoError(t, err)

	err = e.Init(context.Background(), "select 1;", true)
	assert.Error(t, err)
	assert.Empty(t, store.initCalls)
}

func TestNewEngine_RejectsNilStore(t *testing.T) {
	_, err := NewEngine(nil, nil)
	assert.ErrorIs(t, err, ErrNilStore)
}

func TestWithEngineModifySQL_AssignsOption(t *testing.T) {
	store := &fakeStore{}
	fn := func(stmt string) ([]string, error) { return []string{stmt}, nil }
	e, err := NewEngine(store, nil, WithEngineModifySQL(fn))
	require.NoError(t, err)
	assert.NotNil(t, e.modify)
}
