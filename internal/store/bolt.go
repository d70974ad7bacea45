package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	scalarBucket = []byte("kv")
	listBucket   = []byte("lists")
)

// Bolt is a persistent KV on a single bbolt file. Each operation runs in its
// own bolt transaction. Expired entries are dropped lazily when read.
type Bolt struct {
	db  *bolt.DB
	now func() time.Time
}

type Options struct {
	// Timeout bounds how long Open waits for the file lock.
	Timeout time.Duration
	// Now overrides the clock used for expiry.
	Now func() time.Time
}

// OpenBolt initializes or opens a Bolt store at the given path.
func OpenBolt(path string, opts Options) (*Bolt, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 1 * time.Second
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, err
	}
	if err := db.Update(createBuckets); err != nil {
		_ = db.Close()
		return nil, err
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Bolt{db: db, now: now}, nil
}

func createBuckets(tx *bolt.Tx) error {
	if _, err := tx.CreateBucketIfNotExists(scalarBucket); err != nil {
		return err
	}
	_, err := tx.CreateBucketIfNotExists(listBucket)
	return err
}

// Close closes the underlying database.
func (s *Bolt) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Layout: 8 bytes big endian expiresAt (unix milliseconds, 0 = never) || raw value
func encodeScalar(value []byte, expiresAt int64) []byte {
	buf := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(buf[:8], uint64(expiresAt))
	copy(buf[8:], value)
	return buf
}

// liveScalar returns the value stored at key and its expiry, or ok=false when
// the key is absent or expired.
func (s *Bolt) liveScalar(tx *bolt.Tx, key []byte) (value []byte, expiresAt int64, ok bool) {
	v := tx.Bucket(scalarBucket).Get(key)
	if len(v) < 8 {
		return nil, 0, false
	}
	expiresAt = int64(binary.BigEndian.Uint64(v[:8]))
	if expiresAt > 0 && s.now().UnixMilli() >= expiresAt {
		return nil, 0, false
	}
	return v[8:], expiresAt, true
}

func isList(tx *bolt.Tx, key []byte) bool {
	return tx.Bucket(listBucket).Bucket(key) != nil
}

func (s *Bolt) Set(ctx context.Context, key string, value []byte) error {
	return s.SetEx(ctx, key, value, 0)
}

// SetEx stores value with an absolute expiration computed as now+ttl.
// A list stored under the same key is replaced.
func (s *Bolt) SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	expiresAt := int64(0)
	if ttl > 0 {
		// Sub-millisecond remainders round up so a positive ttl never
		// yields an entry that is expired on arrival.
		expiresAt = s.now().Add(ttl + time.Millisecond - 1).UnixMilli()
	}
	k := []byte(key)
	return s.db.Update(func(tx *bolt.Tx) error {
		if isList(tx, k) {
			if err := tx.Bucket(listBucket).DeleteBucket(k); err != nil {
				return err
			}
		}
		return tx.Bucket(scalarBucket).Put(k, encodeScalar(value, expiresAt))
	})
}

// Get returns the value if present and not expired.
func (s *Bolt) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	k := []byte(key)
	err := s.db.View(func(tx *bolt.Tx) error {
		if isList(tx, k) {
			return ErrWrongType
		}
		v, _, ok := s.liveScalar(tx, k)
		if !ok {
			return ErrNotFound
		}
		out = append([]byte{}, v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Bolt) Incr(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int64
	k := []byte(key)
	err := s.db.Update(func(tx *bolt.Tx) error {
		if isList(tx, k) {
			return ErrWrongType
		}
		v, expiresAt, ok := s.liveScalar(tx, k)
		if ok {
			cur, err := strconv.ParseInt(string(v), 10, 64)
			if err != nil {
				return ErrNotInteger
			}
			n = cur
		}
		n++
		return tx.Bucket(scalarBucket).Put(k, encodeScalar([]byte(strconv.FormatInt(n, 10)), expiresAt))
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Bolt) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var found bool
	k := []byte(key)
	err := s.db.View(func(tx *bolt.Tx) error {
		if isList(tx, k) {
			found = true
			return nil
		}
		_, _, found = s.liveScalar(tx, k)
		return nil
	})
	return found, err
}

func (s *Bolt) RPush(ctx context.Context, key string, values ...[]byte) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int64
	k := []byte(key)
	err := s.db.Update(func(tx *bolt.Tx) error {
		if _, _, ok := s.liveScalar(tx, k); ok {
			return ErrWrongType
		}
		b, err := tx.Bucket(listBucket).CreateBucketIfNotExists(k)
		if err != nil {
			return err
		}
		for _, v := range values {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			var id [8]byte
			binary.BigEndian.PutUint64(id[:], seq)
			if err := b.Put(id[:], bytes.Clone(v)); err != nil {
				return err
			}
		}
		// Items are never removed individually, so the sequence is the length.
		n = int64(b.Sequence())
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Bolt) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var all [][]byte
	k := []byte(key)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(listBucket).Bucket(k)
		if b == nil {
			if _, _, ok := s.liveScalar(tx, k); ok {
				return ErrWrongType
			}
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			all = append(all, append([]byte{}, v...))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	from, to, ok := rangeBounds(start, stop, int64(len(all)))
	if !ok {
		return [][]byte{}, nil
	}
	return all[from : to+1], nil
}

// FlushAll drops every scalar, counter and list.
func (s *Bolt) FlushAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{scalarBucket, listBucket} {
			if err := tx.DeleteBucket(name); err != nil && err != bolt.ErrBucketNotFound {
				return err
			}
		}
		return createBuckets(tx)
	})
}
