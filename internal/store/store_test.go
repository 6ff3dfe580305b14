package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, maxPerRoom int) (*Store, string) {
	dir := t.TempDir()
	cfg := Config{
		MaxMessagesPerRoom: maxPerRoom,
		MaxFileSizeMB:      10,
		LogDirectory:       dir,
		EnablePersistence:  true,
	}
	s := New(cfg, nil)
	t.Cleanup(s.Close)
	return s, dir
}

func TestStoreAndGetRecentChronological(t *testing.T) {
	s, _ := newTestStore(t, 100)

	s.Store(Message{SenderID: 1, SenderName: "alice", Room: "general", Content: "one", Timestamp: time.Now()})
	s.Store(Message{SenderID: 1, SenderName: "alice", Room: "general", Content: "two", Timestamp: time.Now()})
	s.Store(Message{SenderID: 1, SenderName: "alice", Room: "general", Content: "three", Timestamp: time.Now()})

	recent := s.GetRecent("general", 2)
	require.Len(t, recent, 2)
	require.Equal(t, "two", recent[0].Content)
	require.Equal(t, "three", recent[1].Content)
}

func TestGetRecentFewerThanRequested(t *testing.T) {
	s, _ := newTestStore(t, 100)
	s.Store(Message{Room: "general", Content: "only", Timestamp: time.Now()})

	recent := s.GetRecent("general", 10)
	require.Len(t, recent, 1)
}

func TestCacheOverflowDropsFromFront(t *testing.T) {
	s, _ := newTestStore(t, 2)

	s.Store(Message{Room: "general", Content: "first", Timestamp: time.Now()})
	s.Store(Message{Room: "general", Content: "second", Timestamp: time.Now()})
	s.Store(Message{Room: "general", Content: "third", Timestamp: time.Now()})

	recent := s.GetRecent("general", 10)
	require.Len(t, recent, 2)
	require.Equal(t, "second", recent[0].Content)
	require.Equal(t, "third", recent[1].Content)
}

func TestGetBySenderAcrossRooms(t *testing.T) {
	s, _ := newTestStore(t, 100)
	s.Store(Message{SenderID: 1, Room: "general", Content: "hi", Timestamp: time.Now()})
	s.Store(Message{SenderID: 2, Room: "general", Content: "yo", Timestamp: time.Now()})
	s.Store(Message{SenderID: 1, Room: "devs", Content: "hey", Timestamp: time.Now()})

	msgs := s.GetBySender(1, 10)
	require.Len(t, msgs, 2)
}

func TestSearchCaseInsensitive(t *testing.T) {
	s, _ := newTestStore(t, 100)
	s.Store(Message{Room: "general", Content: "Hello World", Timestamp: time.Now()})
	s.Store(Message{Room: "general", Content: "goodbye", Timestamp: time.Now()})

	results := s.Search("hello", "", 10)
	require.Len(t, results, 1)
	require.Equal(t, "Hello World", results[0].Content)
}

func TestSearchScopedToRoom(t *testing.T) {
	s, _ := newTestStore(t, 100)
	s.Store(Message{Room: "general", Content: "apple pie", Timestamp: time.Now()})
	s.Store(Message{Room: "devs", Content: "apple sauce", Timestamp: time.Now()})

	results := s.Search("apple", "devs", 10)
	require.Len(t, results, 1)
	require.Equal(t, "devs", results[0].Room)
}

func TestGetTotalCountSumsAllRooms(t *testing.T) {
	s, _ := newTestStore(t, 100)
	s.Store(Message{Room: "general", Content: "a", Timestamp: time.Now()})
	s.Store(Message{Room: "devs", Content: "b", Timestamp: time.Now()})

	require.Equal(t, 2, s.GetTotalCount())
}

func TestClearSingleRoomAndAll(t *testing.T) {
	s, _ := newTestStore(t, 100)
	s.Store(Message{Room: "general", Content: "a", Timestamp: time.Now()})
	s.Store(Message{Room: "devs", Content: "b", Timestamp: time.Now()})

	s.Clear("general")
	require.Equal(t, 0, len(s.GetRecent("general", 10)))
	require.Equal(t, 1, len(s.GetRecent("devs", 10)))

	s.Clear("")
	require.Equal(t, 0, s.GetTotalCount())
}

func TestStoreWritesLogLineWithExpectedFormat(t *testing.T) {
	s, dir := newTestStore(t, 100)
	ts := time.Date(2026, 1, 2, 15, 4, 5, 0, time.Local)
	s.Store(Message{SenderID: 1, SenderName: "alice", Room: "general", Content: "hi there", Timestamp: ts})
	s.Flush()

	path := filepath.Join(dir, "chat_20260102.log")
	require.FileExists(t, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "[2026-01-02 15:04:05] [#general] alice: hi there\n", string(data))
}

func TestMessageStringFormat(t *testing.T) {
	ts := time.Date(2026, 1, 2, 15, 4, 5, 0, time.Local)
	m := Message{SenderID: 1, SenderName: "alice", Room: "general", Content: "hi"}
	m.Timestamp = ts

	require.Equal(t, "[2026-01-02 15:04:05] [#general] alice: hi", m.String())
}
