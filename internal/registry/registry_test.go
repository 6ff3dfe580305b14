package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterKeepsGivenIDsWithPlaceholderName(t *testing.T) {
	r := New()
	c1 := r.Register(1, "127.0.0.1:1111")
	c2 := r.Register(2, "127.0.0.1:2222")

	require.Equal(t, 1, c1.ID)
	require.Equal(t, 2, c2.ID)
	require.Equal(t, Placeholder(1), c1.Name)
	require.False(t, c1.Named)
	require.Equal(t, StateConnected, c1.State)
	require.NotEmpty(t, c1.CorrelationID)
	require.NotEqual(t, c1.CorrelationID, c2.CorrelationID)
}

func TestSetNameMarksAuthenticated(t *testing.T) {
	r := New()
	c := r.Register(1, "127.0.0.1:1111")

	ok := r.SetName(c.ID, "alice")
	require.True(t, ok)

	got, ok := r.Get(c.ID)
	require.True(t, ok)
	require.Equal(t, "alice", got.Name)
	require.True(t, got.Named)
	require.Equal(t, StateAuthenticated, got.State)
}

func TestSetNameUnknownClientFails(t *testing.T) {
	r := New()
	require.False(t, r.SetName(999, "ghost"))
}

func TestFindByNameExactCaseSensitive(t *testing.T) {
	r := New()
	c := r.Register(1, "127.0.0.1:1111")
	r.SetName(c.ID, "Alice")

	_, ok := r.FindByName("alice")
	require.False(t, ok, "lookup must be case-sensitive")

	found, ok := r.FindByName("Alice")
	require.True(t, ok)
	require.Equal(t, c.ID, found.ID)
}

func TestNameCollisionLastWriteWins(t *testing.T) {
	r := New()
	c1 := r.Register(1, "127.0.0.1:1111")
	c2 := r.Register(2, "127.0.0.1:2222")

	require.True(t, r.SetName(c1.ID, "dup"))
	require.True(t, r.SetName(c2.ID, "dup"))

	found, ok := r.FindByName("dup")
	require.True(t, ok)
	require.Contains(t, []int{c1.ID, c2.ID}, found.ID)
}

func TestRemoveDeletesRecord(t *testing.T) {
	r := New()
	c := r.Register(1, "127.0.0.1:1111")
	r.Remove(c.ID)

	_, ok := r.Get(c.ID)
	require.False(t, ok)
	require.Equal(t, 0, r.Count())
}

func TestTouchUpdatesActivityAndCount(t *testing.T) {
	r := New()
	c := r.Register(1, "127.0.0.1:1111")

	before := c.LastActivity
	r.Touch(c.ID)

	got, _ := r.Get(c.ID)
	require.Equal(t, 1, got.MessageCount)
	require.False(t, got.LastActivity.Before(before))
}

func TestAllReturnsSnapshotOfEveryClient(t *testing.T) {
	r := New()
	r.Register(1, "127.0.0.1:1111")
	r.Register(2, "127.0.0.1:2222")

	all := r.All()
	require.Len(t, all, 2)
}
