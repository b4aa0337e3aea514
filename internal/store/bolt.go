package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketLogs  = []byte("runlogs")
	bucketOrder = []byte("runlog_order")
	bucketMeta  = []byte("meta")

	keyStats    = []byte("stats")
	keySettings = []byte("settings")
)

// BoltStore persists everything in a single bbolt file. Run logs are keyed by
// ID; a second bucket maps an increasing sequence number to the ID so logs
// can be listed newest first.
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketLogs, bucketOrder, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func seqKey(n uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, n)
	return k
}

func (s *BoltStore) CreateRunLog(_ context.Context, l RunLog) (RunLog, error) {
	l = prepare(l)
	data, err := json.Marshal(l)
	if err != nil {
		return RunLog{}, fmt.Errorf("marshal run log: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		logs := tx.Bucket(bucketLogs)
		existed := logs.Get([]byte(l.ID)) != nil
		if err := logs.Put([]byte(l.ID), data); err != nil {
			return err
		}
		if existed {
			return nil
		}
		order := tx.Bucket(bucketOrder)
		seq, err := order.NextSequence()
		if err != nil {
			return err
		}
		return order.Put(seqKey(seq), []byte(l.ID))
	})
	if err != nil {
		return RunLog{}, fmt.Errorf("save run log: %w", err)
	}
	return l, nil
}

func (s *BoltStore) RunLogs(_ context.Context, limit int) ([]RunLog, error) {
	limit = clampLimit(limit)
	var out []RunLog
	err := s.db.View(func(tx *bolt.Tx) error {
		logs := tx.Bucket(bucketLogs)
		c := tx.Bucket(bucketOrder).Cursor()
		for k, id := c.Last(); k != nil && len(out) < limit; k, id = c.Prev() {
			data := logs.Get(id)
			if data == nil {
				continue
			}
			var l RunLog
			if err := json.Unmarshal(data, &l); err != nil {
				return fmt.Errorf("decode run log %s: %w", id, err)
			}
			out = append(out, l)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list run logs: %w", err)
	}
	if out == nil {
		out = []RunLog{}
	}
	return out, nil
}

func (s *BoltStore) RunLog(_ context.Context, id string) (RunLog, error) {
	var l RunLog
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketLogs).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &l)
	})
	if err != nil {
		return RunLog{}, err
	}
	return l, nil
}

func getJSON(b *bolt.Bucket, key []byte, v any) (bool, error) {
	data := b.Get(key)
	if data == nil {
		return false, nil
	}
	return true, json.Unmarshal(data, v)
}

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

func (s *BoltStore) Stats(_ context.Context) (Stats, error) {
	var st Stats
	err := s.db.View(func(tx *bolt.Tx) error {
		_, err := getJSON(tx.Bucket(bucketMeta), keyStats, &st)
		return err
	})
	if err != nil {
		return Stats{}, fmt.Errorf("read stats: %w", err)
	}
	return st, nil
}

func (s *BoltStore) RecordRun(_ context.Context, detected int, elapsed time.Duration) (Stats, error) {
	var st Stats
	err := s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if _, err := getJSON(meta, keyStats, &st); err != nil {
			return err
		}
		st = st.next(detected, elapsed.Milliseconds(), time.Now().UTC())
		return putJSON(meta, keyStats, st)
	})
	if err != nil {
		return Stats{}, fmt.Errorf("record run: %w", err)
	}
	return st, nil
}

func (s *BoltStore) Settings(_ context.Context) (PIISettings, error) {
	p := DefaultPIISettings()
	err := s.db.View(func(tx *bolt.Tx) error {
		_, err := getJSON(tx.Bucket(bucketMeta), keySettings, &p)
		return err
	})
	if err != nil {
		return PIISettings{}, fmt.Errorf("read settings: %w", err)
	}
	return p, nil
}

func (s *BoltStore) SaveSettings(_ context.Context, p PIISettings) (PIISettings, error) {
	p.UpdatedAt = time.Now().UTC()
	err := s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketMeta), keySettings, p)
	})
	if err != nil {
		return PIISettings{}, fmt.Errorf("save settings: %w", err)
	}
	return p, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }
