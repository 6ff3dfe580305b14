package rooms

import (
	"testing"

	"github.com/stretchr/testify/require"

	"chatserver/internal/chaterr"
)

func TestGeneralExistsAtStartAndCannotBeDeleted(t *testing.T) {
	m := New()
	require.True(t, m.RoomExists(GeneralRoom))

	err := m.DeleteRoom(GeneralRoom, AdminID)
	require.ErrorIs(t, err, chaterr.ErrNotOwner)
	require.True(t, m.RoomExists(GeneralRoom))
}

func TestCreateRoomRejectsDuplicateName(t *testing.T) {
	m := New()
	require.NoError(t, m.CreateRoom("devs", 1, false, ""))

	err := m.CreateRoom("devs", 2, false, "")
	require.ErrorIs(t, err, chaterr.ErrRoomExists)
}

func TestJoinRoomMovesMembershipAtomically(t *testing.T) {
	m := New()
	require.NoError(t, m.CreateRoom("devs", 1, false, ""))
	require.NoError(t, m.JoinRoom("devs", 1, ""))

	require.Equal(t, "devs", m.GetClientRoom(1))
	require.Contains(t, m.GetMembers("devs"), 1)
	require.NotContains(t, m.GetMembers(GeneralRoom), 1)
}

func TestJoinPrivateRoomRequiresPassword(t *testing.T) {
	m := New()
	require.NoError(t, m.CreateRoom("vip", 1, true, "secret"))

	err := m.JoinRoom("vip", 2, "wrong")
	require.ErrorIs(t, err, chaterr.ErrBadPassword)

	require.NoError(t, m.JoinRoom("vip", 2, "secret"))
	require.Contains(t, m.GetMembers("vip"), 2)
}

func TestJoinPrivateRoomEmptyPasswordCounts(t *testing.T) {
	m := New()
	require.NoError(t, m.CreateRoom("vip", 1, true, ""))
	require.NoError(t, m.JoinRoom("vip", 2, ""))
}

func TestJoinMissingRoomFails(t *testing.T) {
	m := New()
	err := m.JoinRoom("ghost-room", 1, "")
	require.ErrorIs(t, err, chaterr.ErrRoomMissing)
}

func TestDeleteRoomMigratesMembersToGeneral(t *testing.T) {
	m := New()
	require.NoError(t, m.CreateRoom("devs", 1, false, ""))
	require.NoError(t, m.JoinRoom("devs", 1, ""))
	require.NoError(t, m.JoinRoom("devs", 2, ""))

	require.NoError(t, m.DeleteRoom("devs", 1))

	require.False(t, m.RoomExists("devs"))
	require.Contains(t, m.GetMembers(GeneralRoom), 1)
	require.Contains(t, m.GetMembers(GeneralRoom), 2)
	require.Equal(t, GeneralRoom, m.GetClientRoom(1))
}

func TestDeleteRoomRequiresOwnerOrAdmin(t *testing.T) {
	m := New()
	require.NoError(t, m.CreateRoom("devs", 1, false, ""))

	err := m.DeleteRoom("devs", 2)
	require.ErrorIs(t, err, chaterr.ErrNotOwner)

	require.NoError(t, m.DeleteRoom("devs", AdminID))
}

func TestListRoomsReturnsOnlyPublicSorted(t *testing.T) {
	m := New()
	require.NoError(t, m.CreateRoom("zeta", 1, false, ""))
	require.NoError(t, m.CreateRoom("alpha", 1, false, ""))
	require.NoError(t, m.CreateRoom("secret", 1, true, "x"))

	names := []string{}
	for _, info := range m.ListRooms() {
		names = append(names, info.Name)
	}
	require.Equal(t, []string{"alpha", GeneralRoom, "zeta"}, names)
}

func TestSetTopicRequiresOwnerOrAdmin(t *testing.T) {
	m := New()
	require.NoError(t, m.CreateRoom("devs", 1, false, ""))

	err := m.SetTopic("devs", "new topic", 2)
	require.ErrorIs(t, err, chaterr.ErrNotOwner)

	require.NoError(t, m.SetTopic("devs", "new topic", 1))
	info, ok := m.GetRoomInfo("devs")
	require.True(t, ok)
	require.Equal(t, "new topic", info.Topic)
}

func TestGetRoommatesDefaultsToGeneralForUnregisteredClient(t *testing.T) {
	m := New()
	require.NoError(t, m.JoinRoom(GeneralRoom, 5, ""))

	mates := m.GetRoommates(999)
	require.Contains(t, mates, 5)
}

func TestJoinLeaveJoinRestoresOriginalRoom(t *testing.T) {
	m := New()
	require.NoError(t, m.CreateRoom("devs", 1, false, ""))
	require.NoError(t, m.JoinRoom("devs", 1, ""))

	m.LeaveRoom(1)
	require.Equal(t, "", m.GetClientRoom(1))

	require.NoError(t, m.JoinRoom("devs", 1, ""))
	require.Equal(t, "devs", m.GetClientRoom(1))
}
