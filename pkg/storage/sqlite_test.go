package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowscope/flowscope/pkg/domain/frame"
	"github.com/flowscope/flowscope/pkg/domain/types"
)

func newTestRepository(t *testing.T) *SQLiteFrameRepository {
	t.Helper()

	repo, err := NewSQLiteFrameRepositoryWithPath(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func endedFrame(startedAt int64) *frame.Frame {
	f := frame.New(startedAt)
	f.RecordInput("n1", "inject", frame.IOEvent{
		Direction: frame.DirectionInput,
		Timestamp: startedAt,
		Payload:   frame.DataSample{Preview: map[string]interface{}{"payload": "tick"}},
	})
	f.RecordOutput("n1", "inject", []frame.IOEvent{{
		Direction: frame.DirectionOutput,
		Timestamp: startedAt + 5,
		Payload:   frame.DataSample{Preview: map[string]interface{}{"payload": "tick"}},
	}})
	f.End(startedAt+100, frame.EndReasonExplicit)
	return f
}

func TestArchiveFrame_RoundTrip(t *testing.T) {
	repo := newTestRepository(t)

	f := endedFrame(1000)
	require.NoError(t, repo.ArchiveFrame(f))

	loaded, err := repo.Load(f.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, f.ID, loaded.ID)
	assert.Equal(t, f.StartedAt, loaded.StartedAt)
	assert.Equal(t, f.EndReason, loaded.EndReason)
	assert.Equal(t, f.TriggerNodeID, loaded.TriggerNodeID)
	assert.Equal(t, f.Stats, loaded.Stats)
	require.Contains(t, loaded.Nodes, types.NodeID("n1"))
	assert.Equal(t, f.Nodes["n1"].Semantics, loaded.Nodes["n1"].Semantics)
}

func TestArchiveFrame_RejectsNilAndActive(t *testing.T) {
	repo := newTestRepository(t)

	assert.Error(t, repo.ArchiveFrame(nil))
	assert.Error(t, repo.ArchiveFrame(frame.New(1000)))
}

func TestArchiveFrame_ReplaceOnSameID(t *testing.T) {
	repo := newTestRepository(t)

	f := endedFrame(1000)
	require.NoError(t, repo.ArchiveFrame(f))
	require.NoError(t, repo.ArchiveFrame(f))

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestLoad_UnknownFrame(t *testing.T) {
	repo := newTestRepository(t)

	loaded, err := repo.Load("no-such-frame")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestListRecent_NewestFirst(t *testing.T) {
	repo := newTestRepository(t)

	for _, startedAt := range []int64{1000, 2000, 3000} {
		require.NoError(t, repo.ArchiveFrame(endedFrame(startedAt)))
	}

	frames, err := repo.ListRecent(10)
	require.NoError(t, err)
	require.Len(t, frames, 3)
	assert.Equal(t, int64(3000), frames[0].StartedAt)
	assert.Equal(t, int64(1000), frames[2].StartedAt)
}

func TestListRecent_Limit(t *testing.T) {
	repo := newTestRepository(t)

	for i := int64(0); i < 5; i++ {
		require.NoError(t, repo.ArchiveFrame(endedFrame(1000+i*100)))
	}

	frames, err := repo.ListRecent(2)
	require.NoError(t, err)
	assert.Len(t, frames, 2)
}

func TestPrune_KeepsNewestRows(t *testing.T) {
	repo := newTestRepository(t)

	var ids []types.FrameID
	for i := int64(0); i < 5; i++ {
		f := endedFrame(1000 + i*100)
		require.NoError(t, repo.ArchiveFrame(f))
		ids = append(ids, f.ID)
	}

	require.NoError(t, repo.Prune(2))

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// The oldest rows are the ones that went.
	gone, err := repo.Load(ids[0])
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := repo.Load(ids[4])
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestPrune_NonPositiveIsNoOp(t *testing.T) {
	repo := newTestRepository(t)
	require.NoError(t, repo.ArchiveFrame(endedFrame(1000)))

	require.NoError(t, repo.Prune(0))
	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDelete(t *testing.T) {
	repo := newTestRepository(t)

	f := endedFrame(1000)
	require.NoError(t, repo.ArchiveFrame(f))
	require.NoError(t, repo.Delete(f.ID))

	loaded, err := repo.Load(f.ID)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	// Deleting an unknown id is not an error.
	require.NoError(t, repo.Delete("no-such-frame"))
}
