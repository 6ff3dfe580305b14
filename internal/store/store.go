// Package store implements the Message Store component of spec.md
// §4.5: a bounded in-memory per-room ring plus an append-only,
// size-and-date-rotated daily log file.
//
// Grounded on original_source/message_store.{h,cpp}'s MessageStore:
// independent locks for the cache and the file cursor (so a slow write
// never stalls readers of the in-memory tier), lazy rotation on byte
// count or date rollover, and the exact log line layout from
// ChatMessage::ToString.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Message is the spec.md §3 chat message record.
type Message struct {
	SenderID   int
	SenderName string
	Room       string
	Content    string
	Timestamp  time.Time
}

// String renders the log-line / #history format:
// "[YYYY-MM-DD HH:MM:SS] [#room] sender: content".
func (m Message) String() string {
	return fmt.Sprintf("[%s] [#%s] %s: %s",
		m.Timestamp.Format("2006-01-02 15:04:05"), m.Room, m.SenderName, m.Content)
}

// Config mirrors original_source/message_store.h's Config struct and
// spec.md §6's persistence-related constants.
type Config struct {
	MaxMessagesPerRoom int
	MaxFileSizeMB      int
	LogDirectory       string
	EnablePersistence  bool
}

// DefaultConfig returns the spec.md §4.5/§6 defaults.
func DefaultConfig() Config {
	return Config{
		MaxMessagesPerRoom: 100,
		MaxFileSizeMB:      10,
		LogDirectory:       "./chat_logs",
		EnablePersistence:  true,
	}
}

// Store is the two-tier Message Store: an in-memory ring per room, and
// (optionally) a rotated on-disk log. The cache lock and the file lock
// are independent per spec.md §4.5.
type Store struct {
	cfg    Config
	logger *zap.Logger

	cacheMu sync.Mutex
	cache   map[string][]Message

	fileMu          sync.Mutex
	file            *os.File
	fileDate        string
	fileBytesWritten int64

	persistenceDisabled atomic.Bool
}

// New builds a Store, opening today's log file immediately if
// persistence is enabled. logger may be nil.
func New(cfg Config, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		cfg:    cfg,
		logger: logger,
		cache:  make(map[string][]Message),
	}
	if cfg.EnablePersistence {
		if err := os.MkdirAll(cfg.LogDirectory, 0o755); err != nil {
			logger.Error("failed to create log directory", zap.Error(err), zap.String("dir", cfg.LogDirectory))
			s.persistenceDisabled.Store(true)
			return s
		}
		if err := s.openLogFile(); err != nil {
			logger.Error("failed to open log file", zap.Error(err))
			s.persistenceDisabled.Store(true)
		}
	} else {
		s.persistenceDisabled.Store(true)
	}
	return s
}

// Store appends msg to its room's in-memory ring (evicting from the
// front on overflow) and, if persistence is enabled, appends a log
// line. Disk-write failures disable persistence for the remainder of
// the process; Store never returns an error, per spec.md §7.
func (s *Store) Store(msg Message) {
	s.cacheMu.Lock()
	q := append(s.cache[msg.Room], msg)
	if over := len(q) - s.cfg.MaxMessagesPerRoom; over > 0 {
		q = q[over:]
	}
	s.cache[msg.Room] = q
	s.cacheMu.Unlock()

	if !s.persistenceDisabled.Load() {
		s.writeToFile(msg)
	}
}

// GetRecent returns the last n messages of room in chronological
// order, or fewer if the room's cache is shorter.
func (s *Store) GetRecent(room string, n int) []Message {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	q := s.cache[room]
	if n > len(q) {
		n = len(q)
	}
	if n <= 0 {
		return nil
	}
	out := make([]Message, n)
	copy(out, q[len(q)-n:])
	return out
}

// GetBySender returns up to n messages sent by senderID across all
// rooms, in iteration order of rooms then position.
func (s *Store) GetBySender(senderID int, n int) []Message {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	var out []Message
	for _, q := range s.cache {
		for _, m := range q {
			if m.SenderID != senderID {
				continue
			}
			out = append(out, m)
			if len(out) >= n {
				return out
			}
		}
	}
	return out
}

// Search returns messages whose content contains query under ASCII
// case-insensitive comparison, optionally restricted to one room, up
// to max results.
func (s *Store) Search(query string, room string, max int) []Message {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	lowerQuery := strings.ToLower(query)
	var out []Message

	search := func(q []Message) bool {
		for _, m := range q {
			if len(out) >= max {
				return false
			}
			if strings.Contains(strings.ToLower(m.Content), lowerQuery) {
				out = append(out, m)
			}
		}
		return true
	}

	if room != "" {
		search(s.cache[room])
		return out
	}
	for _, q := range s.cache {
		if !search(q) {
			break
		}
	}
	return out
}

// GetTotalCount sums the per-room cache lengths.
func (s *Store) GetTotalCount() int {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	total := 0
	for _, q := range s.cache {
		total += len(q)
	}
	return total
}

// Clear empties one room's cache, or every room's if room == "".
func (s *Store) Clear(room string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	if room == "" {
		s.cache = make(map[string][]Message)
		return
	}
	delete(s.cache, room)
}

// Flush forces buffered writes to the OS. Store itself never blocks the
// caller on fsync, per spec.md §4.5.
func (s *Store) Flush() {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	if s.file != nil {
		_ = s.file.Sync()
	}
}

// Close flushes and closes the open log handle.
func (s *Store) Close() {
	s.Flush()
	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
}

func (s *Store) writeToFile(msg Message) {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	today := msg.Timestamp.Format("20060102")
	if today != s.fileDate {
		if err := s.rotateLocked(msg.Timestamp); err != nil {
			s.logger.Error("failed to rotate log file", zap.Error(err))
			s.persistenceDisabled.Store(true)
			return
		}
	}
	if s.file == nil {
		return
	}

	line := msg.String() + "\n"
	n, err := s.file.WriteString(line)
	if err != nil {
		s.logger.Error("failed to write chat log line", zap.Error(err))
		s.persistenceDisabled.Store(true)
		return
	}
	s.fileBytesWritten += int64(n)

	if s.fileBytesWritten >= int64(s.cfg.MaxFileSizeMB)*1024*1024 {
		if err := s.rotateLocked(msg.Timestamp); err != nil {
			s.logger.Error("failed to rotate log file", zap.Error(err))
			s.persistenceDisabled.Store(true)
		}
	}
}

// openLogFile opens (creating if needed) today's log file and seeds
// fileBytesWritten from its current size, so rotation still triggers
// correctly across a restart mid-day.
func (s *Store) openLogFile() error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	return s.openLocked(time.Now())
}

func (s *Store) openLocked(now time.Time) error {
	date := now.Format("20060102")
	path := filepath.Join(s.cfg.LogDirectory, fmt.Sprintf("chat_%s.log", date))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}

	s.file = f
	s.fileDate = date
	s.fileBytesWritten = info.Size()
	return nil
}

func (s *Store) rotateLocked(now time.Time) error {
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	s.fileBytesWritten = 0
	return s.openLocked(now)
}
