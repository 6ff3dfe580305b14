package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAllowConnectionRespectsPerSecondLimit(t *testing.T) {
	c := New(Config{MaxConnectionsPerSecond: 2, MaxTotalConnections: 1000})

	require.True(t, c.AllowConnection("1.1.1.1"))
	require.True(t, c.AllowConnection("1.1.1.2"))
	require.False(t, c.AllowConnection("1.1.1.3"))
}

func TestAllowConnectionRejectsBannedIP(t *testing.T) {
	c := New(DefaultConfig())
	c.Ban("9.9.9.9")

	require.False(t, c.AllowConnection("9.9.9.9"))

	c.Unban("9.9.9.9")
	require.True(t, c.AllowConnection("9.9.9.9"))
}

func TestAllowConnectionRespectsTotalCap(t *testing.T) {
	c := New(Config{MaxConnectionsPerSecond: 1000, MaxTotalConnections: 1})
	c.OnConnect()

	require.False(t, c.AllowConnection("1.2.3.4"))
}

func TestAllowMessageRespectsPerMinuteLimit(t *testing.T) {
	c := New(Config{MaxMessagesPerMinute: 2})

	require.True(t, c.AllowMessage(1))
	c.RecordMessage(1)
	require.True(t, c.AllowMessage(1))
	c.RecordMessage(1)
	require.False(t, c.AllowMessage(1))
}

func TestMutePermanentUntilUnmuted(t *testing.T) {
	c := New(DefaultConfig())
	c.Mute(7, 0)

	require.True(t, c.IsMuted(7))
	require.True(t, c.IsMuted(7))

	c.Unmute(7)
	require.False(t, c.IsMuted(7))
}

func TestMuteExpiresAfterDuration(t *testing.T) {
	c := New(DefaultConfig())
	c.Mute(7, 1)
	require.True(t, c.IsMuted(7))

	time.Sleep(1100 * time.Millisecond)
	require.False(t, c.IsMuted(7))
}

func TestAllowMessageFalseWhileMuted(t *testing.T) {
	c := New(DefaultConfig())
	c.Mute(3, 0)
	require.False(t, c.AllowMessage(3))
}

func TestCheckTimeoutsReturnsIdleClients(t *testing.T) {
	c := New(Config{ConnectionTimeoutSeconds: 0})
	c.UpdateActivity(1)
	c.UpdateActivity(2)

	time.Sleep(10 * time.Millisecond)

	timedOut := c.CheckTimeouts([]int{1, 2, 3})
	require.ElementsMatch(t, []int{1, 2}, timedOut)
}

func TestConnectionCountTracksConnectDisconnect(t *testing.T) {
	c := New(DefaultConfig())
	require.Equal(t, 0, c.GetConnectionCount())

	c.OnConnect()
	c.OnConnect()
	require.Equal(t, 2, c.GetConnectionCount())

	c.OnDisconnect()
	require.Equal(t, 1, c.GetConnectionCount())
}

func TestConnectionCountNeverGoesNegative(t *testing.T) {
	c := New(DefaultConfig())
	c.OnDisconnect()
	require.Equal(t, 0, c.GetConnectionCount())
}
