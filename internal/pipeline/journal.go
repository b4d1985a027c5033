package pipeline

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketDispatched = []byte("dispatched")
	bucketFailures   = []byte("failures")
)

type FailureEntry struct {
	Ping       ConfirmedPing `json:"ping"`
	Error      string        `json:"error"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// BoltJournal records dispatch results per route in a local bbolt file.
type BoltJournal struct {
	db  *bolt.DB
	now func() time.Time
}

func OpenJournal(path string) (*BoltJournal, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketDispatched, bucketFailures} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltJournal{db: db, now: time.Now}, nil
}

func (j *BoltJournal) Close() error {
	return j.db.Close()
}

func (j *BoltJournal) RecordDispatched(ping ConfirmedPing) error {
	value, err := json.Marshal(ping)
	if err != nil {
		return err
	}
	return j.db.Update(func(tx *bolt.Tx) error {
		rb, err := tx.Bucket(bucketDispatched).CreateBucketIfNotExists([]byte(ping.RouteID))
		if err != nil {
			return err
		}
		return rb.Put(timeKey(ping.CreatedAt), value)
	})
}

func (j *BoltJournal) RecordFailure(ping ConfirmedPing, cause error) error {
	entry := FailureEntry{Ping: ping, RecordedAt: j.now().UTC()}
	if cause != nil {
		entry.Error = cause.Error()
	}
	value, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return j.db.Update(func(tx *bolt.Tx) error {
		rb, err := tx.Bucket(bucketFailures).CreateBucketIfNotExists([]byte(ping.RouteID))
		if err != nil {
			return err
		}
		seq, err := rb.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return rb.Put(key, value)
	})
}

func (j *BoltJournal) Dispatched(routeID string) ([]ConfirmedPing, error) {
	var out []ConfirmedPing
	err := j.db.View(func(tx *bolt.Tx) error {
		rb := tx.Bucket(bucketDispatched).Bucket([]byte(routeID))
		if rb == nil {
			return nil
		}
		return rb.ForEach(func(_, v []byte) error {
			var p ConfirmedPing
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			out = append(out, p)
			return nil
		})
	})
	return out, err
}

func (j *BoltJournal) Failures(routeID string) ([]FailureEntry, error) {
	var out []FailureEntry
	err := j.db.View(func(tx *bolt.Tx) error {
		rb := tx.Bucket(bucketFailures).Bucket([]byte(routeID))
		if rb == nil {
			return nil
		}
		return rb.ForEach(func(_, v []byte) error {
			var e FailureEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			out = append(out, e)
			return nil
		})
	})
	return out, err
}

func timeKey(t time.Time) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(t.UnixNano()))
	return key
}

var _ Journal = (*BoltJournal)(nil)
