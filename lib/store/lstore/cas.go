package lstore

import (
	"time"

	"github.com/ValentinKolb/dCache/lib/db"
)

func (s *storeImpl) Gets(key string) ([]byte, uint64, bool, error) {
	if err := s.require(db.FeatureGet, "Gets"); err != nil {
		return nil, 0, false, err
	}
	e, ok := s.db.GetEntry(key)
	if !ok {
		return nil, 0, false, nil
	}
	return e.Value, e.Version, true, nil
}

// CompareAndSwap compares and writes inside one engine critical section, so of all
// callers holding the same token at most one can succeed.
func (s *storeImpl) CompareAndSwap(key string, expected uint64, value []byte, ttl time.Duration) (bool, bool, error) {
	if err := s.require(db.FeatureCompute, "CompareAndSwap"); err != nil {
		return false, false, err
	}

	var swapped, loaded bool
	s.db.Compute(key, func(old db.Entry, ok bool, now time.Time) (db.Entry, db.Action) {
		loaded = ok
		if !ok || old.Version != expected {
			return old, db.ActionKeep
		}
		swapped = true
		return db.Entry{Value: value, ExpireAt: db.Deadline(now, ttl)}, db.ActionWrite
	})
	return swapped, loaded, nil
}
