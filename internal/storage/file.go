package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.tasks.snapshot.json (periodic snapshot)
//   - <prefix>.tasks.journal.jsonl (append-only journal)
//
// The journal is compacted into the snapshot every compactEvery writes.
type fileStore struct {
	log logx.Logger
	loc *time.Location

	mu sync.Mutex

	snapshotPath string
	journal      *os.File

	tasks  map[int64]fileTask
	nextID int64
	writes int
}

const compactEvery = 500

// fileTask is the on-disk form; times are stored as wall-clock text so the
// file stays timezone-naive like the SQL drivers.
type fileTask struct {
	ID          int64  `json:"id"`
	ChatID      int64  `json:"chat_id"`
	Message     string `json:"message"`
	DateTime    string `json:"date_time"`
	DeliveredAt string `json:"delivered_at,omitempty"`
}

type journalRecord struct {
	Op   string   `json:"op"` // "save" | "deliver"
	Task fileTask `json:"task"`
}

type fileSnapshot struct {
	NextID int64      `json:"next_id"`
	Tasks  []fileTask `json:"tasks"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:          log,
		loc:          cfg.Location,
		snapshotPath: prefix + ".tasks.snapshot.json",
		tasks:        map[int64]fileTask{},
		nextID:       1,
	}
	journalPath := prefix + ".tasks.journal.jsonl"

	if err := s.loadSnapshot(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	if err := s.replayJournal(journalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("replaying journal: %w", err)
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	s.journal = jf
	return s, nil
}

func (s *fileStore) loadSnapshot() error {
	f, err := os.Open(s.snapshotPath)
	if err != nil {
		return err
	}
	defer f.Close()
	var snap fileSnapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return err
	}
	for _, t := range snap.Tasks {
		s.tasks[t.ID] = t
	}
	if snap.NextID > s.nextID {
		s.nextID = snap.NextID
	}
	return nil
}

func (s *fileStore) replayJournal(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			// A torn final line after a crash is expected; skip it.
			s.log.Warn("skipping unreadable journal line", logx.Err(err))
			continue
		}
		s.apply(r)
	}
	return sc.Err()
}

func (s *fileStore) apply(r journalRecord) {
	switch r.Op {
	case "save":
		s.tasks[r.Task.ID] = r.Task
		if r.Task.ID >= s.nextID {
			s.nextID = r.Task.ID + 1
		}
	case "deliver":
		if t, ok := s.tasks[r.Task.ID]; ok {
			t.DeliveredAt = r.Task.DeliveredAt
			s.tasks[r.Task.ID] = t
		}
	}
}

func (s *fileStore) appendLocked(r journalRecord) error {
	if s.journal == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.journal).Encode(r); err != nil {
		return err
	}
	if err := s.journal.Sync(); err != nil {
		return err
	}
	s.apply(r)
	s.writes++
	if s.writes%compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("journal compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) Save(ctx context.Context, t reminder.Task) (reminder.Task, error) {
	if err := ctx.Err(); err != nil {
		return reminder.Task{}, wrapErr("save", err)
	}
	if err := checkUnsaved(t); err != nil {
		return reminder.Task{}, wrapErr("save", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	rec := journalRecord{Op: "save", Task: fileTask{
		ID:       id,
		ChatID:   t.ChatID,
		Message:  t.Message,
		DateTime: formatWall(t.DateTime, s.loc),
	}}
	if err := s.appendLocked(rec); err != nil {
		return reminder.Task{}, wrapErr("save", err)
	}
	t.ID = id
	return t, nil
}

func (s *fileStore) Due(ctx context.Context, now time.Time, limit int) ([]reminder.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapErr("due", err)
	}
	if limit <= 0 {
		limit = 100
	}
	cutoff := formatWall(now, s.loc)

	s.mu.Lock()
	due := make([]fileTask, 0)
	for _, t := range s.tasks {
		if t.DeliveredAt == "" && t.DateTime <= cutoff {
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].DateTime != due[j].DateTime {
			return due[i].DateTime < due[j].DateTime
		}
		return due[i].ID < due[j].ID
	})
	if len(due) > limit {
		due = due[:limit]
	}

	out := make([]reminder.Task, 0, len(due))
	for _, ft := range due {
		at, err := parseWall(ft.DateTime, s.loc)
		if err != nil {
			return nil, wrapErr("due", err)
		}
		out = append(out, reminder.Task{ID: ft.ID, ChatID: ft.ChatID, Message: ft.Message, DateTime: at})
	}
	return out, nil
}

func (s *fileStore) MarkDelivered(ctx context.Context, id int64, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return wrapErr("mark_delivered", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.DeliveredAt != "" {
		return wrapErr("mark_delivered", fmt.Errorf("%w: id %d", ErrNotFound, id))
	}
	rec := journalRecord{Op: "deliver", Task: fileTask{ID: id, DeliveredAt: at.UTC().Format(time.RFC3339Nano)}}
	return wrapErr("mark_delivered", s.appendLocked(rec))
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.journal.Close()
	s.journal = nil
	return err
}

func (s *fileStore) compactLocked() error {
	snap := fileSnapshot{NextID: s.nextID, Tasks: make([]fileTask, 0, len(s.tasks))}
	for _, t := range s.tasks {
		snap.Tasks = append(snap.Tasks, t)
	}
	sort.Slice(snap.Tasks, func(i, j int) bool { return snap.Tasks[i].ID < snap.Tasks[j].ID })

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}
