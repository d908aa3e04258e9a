package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Task kinds dispatched by the runner.
const (
	KindPollExpiry = "poll_expiry"
)

// Task is one durable timer. It survives process restarts; a task whose due
// time passed while the process was down fires on the first tick after boot.
type Task struct {
	ID       string    `json:"id"`
	Kind     string    `json:"kind"`
	TargetID string    `json:"target_id"`
	DueAt    time.Time `json:"due_at"`
	Retries  int       `json:"retries"`

	bucketKey []byte
}

// Store persists scheduled tasks in BoltDB, keyed by due time so a cursor
// scan yields them in firing order.
type Store struct {
	db     *bolt.DB
	bucket []byte
}

// Open initializes the BoltDB file and ensures the bucket exists.
func Open(path string, bucket string) (*Store, error) {
	if bucket == "" {
		bucket = "tasks"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:     db,
		bucket: []byte(bucket),
	}, nil
}

// Put stores a task. Re-putting the same kind+target replaces the old entry.
func (s *Store) Put(task Task) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	if task.ID == "" {
		task.ID = task.Kind + ":" + task.TargetID
	}
	key := buildKey(task)
	task.bucketKey = []byte(key)

	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		// Drop a previously scheduled copy so a task never fires twice.
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var existing Task
			if err := json.Unmarshal(v, &existing); err != nil {
				continue
			}
			if existing.ID == task.ID {
				if err := c.Delete(); err != nil {
					return err
				}
				break
			}
		}
		return b.Put(task.bucketKey, payload)
	})
}

// Due returns up to limit tasks whose due time is at or before asOf, without
// removing them.
func (s *Store) Due(asOf time.Time, limit int) ([]Task, error) {
	if s == nil || s.db == nil {
		return nil, bolt.ErrDatabaseNotOpen
	}
	if limit <= 0 {
		limit = 50
	}

	var tasks []Task
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(s.bucket).Cursor()
		for k, v := c.First(); k != nil && len(tasks) < limit; k, v = c.Next() {
			var task Task
			if err := json.Unmarshal(v, &task); err != nil {
				continue
			}
			if task.DueAt.After(asOf) {
				// Keys are due-time ordered; nothing later is due either.
				break
			}
			task.bucketKey = append([]byte(nil), k...)
			tasks = append(tasks, task)
		}
		return nil
	})
	return tasks, err
}

// Remove deletes the task.
func (s *Store) Remove(task Task) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	if len(task.bucketKey) == 0 {
		task.bucketKey = []byte(buildKey(task))
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete(task.bucketKey)
	})
}

// Requeue re-inserts a failed task with its due time pushed back.
func (s *Store) Requeue(task Task, backoff time.Duration) error {
	if err := s.Remove(task); err != nil {
		return err
	}
	task.bucketKey = nil
	task.DueAt = time.Now().Add(backoff)
	return s.Put(task)
}

// Size returns the number of pending tasks.
func (s *Store) Size() (int, error) {
	if s == nil || s.db == nil {
		return 0, bolt.ErrDatabaseNotOpen
	}
	var count int
	err := s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(s.bucket).Stats().KeyN
		return nil
	})
	return count, err
}

// Close closes the Bolt database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Stats exposes Bolt statistics for the health endpoint.
func (s *Store) Stats() bolt.Stats {
	if s == nil || s.db == nil {
		return bolt.Stats{}
	}
	return s.db.Stats()
}

func buildKey(task Task) string {
	return fmt.Sprintf("%020d_%s", task.DueAt.UnixNano(), task.ID)
}
