package refdata

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func testAgents() []Agent {
	return []Agent{
		{ID: 1, Key: 1900, Name: "Sup", Status: StatusActive},
		{ID: 2, Key: 1200, Name: "Regular", Status: StatusActive, SupervisorKey: intPtr(1900)},
		{ID: 3, Key: 500, Name: "Special", Status: StatusCancelled, SupervisorKey: intPtr(1900)},
		{ID: 4, Key: 1300, Name: "Orphan", Status: StatusActive, SupervisorKey: intPtr(1999)},
	}
}

func TestTierOf(t *testing.T) {
	require.Equal(t, TierSpecial, TierOf(998))
	require.Equal(t, TierRegular, TierOf(999))
	require.Equal(t, TierRegular, TierOf(1799))
	require.Equal(t, TierSupervisor, TierOf(1800))
}

func TestSnapshotLookups(t *testing.T) {
	snap := NewSnapshot(testAgents(), map[string]int{"P1": 1200, "P2": 500})

	key, ok := snap.ResolveAgent("P1")
	require.True(t, ok)
	require.Equal(t, 1200, key)
	_, ok = snap.ResolveAgent("nope")
	require.False(t, ok)
	require.Equal(t, 2, snap.PolicyCount())

	a, err := snap.Agent(500)
	require.NoError(t, err)
	require.False(t, a.Active())
	require.Equal(t, TierSpecial, a.Tier())

	_, err = snap.Agent(42)
	require.True(t, errors.Is(err, ErrAgentNotFound))
	byID, err := snap.AgentByID(2)
	require.NoError(t, err)
	require.Equal(t, 1200, byID.Key)

	sup, ok := snap.SupervisorOf(1200)
	require.True(t, ok)
	require.True(t, sup.IsSupervisor())
	_, ok = snap.SupervisorOf(1300)
	require.False(t, ok)

	require.Equal(t, []int{500, 1200}, snap.Subordinates(1900))

	agents := snap.Agents()
	require.Len(t, agents, 4)
	require.Equal(t, 500, agents[0].Key)
	require.Equal(t, 1900, agents[3].Key)
}

func TestNilSnapshotIsEmpty(t *testing.T) {
	var snap *Snapshot
	require.Zero(t, snap.PolicyCount())
	_, err := snap.Agent(1)
	require.ErrorIs(t, err, ErrAgentNotFound)
	require.Empty(t, snap.Policies())
}
