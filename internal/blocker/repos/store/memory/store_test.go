package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/dontvisit/internal/blocker/common/clock"
	"github.com/haukened/dontvisit/internal/blocker/domain"
)

func TestMemoryStore_Lifecycle(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	st := New(&clock.MockClock{CurrentTime: at})
	require.NoError(t, st.Init())

	snap, err := st.Snapshot()
	require.NoError(t, err)
	assert.True(t, snap.Enabled)
	assert.Equal(t, domain.MethodClose, snap.Method)

	_, err = st.UpdateBlockList(func(l domain.BlockList) (domain.BlockList, error) { return l.With("a.com") })
	require.NoError(t, err)
	require.NoError(t, st.SetEnabled(false))
	require.NoError(t, st.SetMethod(domain.MethodRedirect))
	require.NoError(t, st.PutSettings(domain.Settings{CaseSensitive: true}))
	require.NoError(t, st.RecordBlock("a.com"))

	// Init again must not reset anything.
	require.NoError(t, st.Init())

	snap, err = st.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, domain.BlockList{"a.com"}, snap.BlockList)
	assert.False(t, snap.Enabled)
	assert.Equal(t, domain.MethodRedirect, snap.Method)
	assert.True(t, snap.Settings.CaseSensitive)

	stats, err := st.Statistics()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.TotalBlocked)
	assert.Equal(t, at, stats.InstallDate)
}

func TestMemoryStore_SnapshotIsACopy(t *testing.T) {
	st := New(nil)
	require.NoError(t, st.Init())
	_, err := st.UpdateBlockList(func(l domain.BlockList) (domain.BlockList, error) { return l.With("a.com") })
	require.NoError(t, err)

	snap, _ := st.Snapshot()
	snap.BlockList[0] = "mutated"
	stats, _ := st.Statistics()
	stats.SitesBlocked["x"] = 9

	list, _ := st.BlockList()
	assert.Equal(t, domain.BlockList{"a.com"}, list)
	again, _ := st.Statistics()
	assert.NotContains(t, again.SitesBlocked, "x")
}

func TestMemoryStore_UpdateErrorLeavesListUntouched(t *testing.T) {
	st := New(nil)
	require.NoError(t, st.Init())
	_, err := st.UpdateBlockList(func(l domain.BlockList) (domain.BlockList, error) { return l.Without("a.com") })
	assert.ErrorIs(t, err, domain.ErrMissingEntry)
	list, _ := st.BlockList()
	assert.Empty(t, list)
}
