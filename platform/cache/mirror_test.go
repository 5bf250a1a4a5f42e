package cache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMirrorLogIsTrimmed(t *testing.T) {
	r := newFakeRedis()
	m := NewGameMirror(r)

	for i := 0; i < maxLogLines+10; i++ {
		require.NoError(t, m.AppendLog("g1", fmt.Sprintf("line %d", i)))
	}
	all, err := m.RecentLog("g1", 0)
	require.NoError(t, err)
	require.Len(t, all, maxLogLines)
	assert.Equal(t, "line 10", all[0])

	last, err := m.RecentLog("g1", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{fmt.Sprintf("line %d", maxLogLines+8), fmt.Sprintf("line %d", maxLogLines+9)}, last)

	// every borrowed connection goes back
	assert.Equal(t, maxLogLines+12, r.closes)
}

func TestMirrorLiveAndTurn(t *testing.T) {
	r := newFakeRedis()
	m := NewGameMirror(r)

	live, err := m.Live("g1")
	require.NoError(t, err)
	assert.Nil(t, live)

	require.NoError(t, m.SaveLive("g1", map[string]string{"round_number": "3", "status": "RUNNING"}))
	live, err = m.Live("g1")
	require.NoError(t, err)
	assert.Equal(t, "3", live["round_number"])

	turn, err := m.Turn("g1")
	require.NoError(t, err)
	assert.Empty(t, turn)
	require.NoError(t, m.SetTurn("g1", "seat-2"))
	turn, err = m.Turn("g1")
	require.NoError(t, err)
	assert.Equal(t, "seat-2", turn)

	require.NoError(t, m.AppendLog("g1", "done"))
	require.NoError(t, m.Finish("g1"))
	turn, _ = m.Turn("g1")
	assert.Empty(t, turn)
	assert.Equal(t, finishedTTL, r.ttl[logKey("g1")])

	require.NoError(t, m.Clear("g1"))
	lines, err := m.RecentLog("g1", 0)
	require.NoError(t, err)
	assert.Empty(t, lines)
}
