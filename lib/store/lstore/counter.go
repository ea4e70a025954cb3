package lstore

import (
	"time"

	"github.com/ValentinKolb/dCache/lib/db"
	"github.com/ValentinKolb/dCache/lib/store"
)

// Counters are stored as decimal strings so a plain Get returns the number.
// The declared width lives in db.Entry.Flags; increments keep flags and deadline.

func (s *storeImpl) Increment(key string, delta, initial int64) (int64, error) {
	if err := s.require(db.FeatureCompute, "Increment"); err != nil {
		return 0, err
	}

	var (
		result int64
		err    error
	)
	s.db.Compute(key, func(old db.Entry, loaded bool, _ time.Time) (db.Entry, db.Action) {
		if !loaded {
			result = store.WidthUnset.ApplyDelta(initial, delta)
			return db.Entry{Value: store.FormatCounterValue(result)}, db.ActionWrite
		}

		current, parseErr := store.ParseCounterValue(old.Value)
		if parseErr != nil {
			err = parseErr
			return old, db.ActionKeep
		}

		result = store.CounterWidth(old.Flags).ApplyDelta(current, delta)
		old.Value = store.FormatCounterValue(result)
		return old, db.ActionWrite
	})
	return result, err
}

func (s *storeImpl) CreateCounter(key string, initial int64, width store.CounterWidth) (bool, error) {
	if err := s.require(db.FeatureCompute, "CreateCounter"); err != nil {
		return false, err
	}
	width = width.Effective()

	var created bool
	s.db.Compute(key, func(old db.Entry, loaded bool, _ time.Time) (db.Entry, db.Action) {
		if loaded {
			return old, db.ActionKeep
		}
		created = true
		return db.Entry{
			Value: store.FormatCounterValue(width.ApplyDelta(initial, 0)),
			Flags: uint32(width),
		}, db.ActionWrite
	})
	return created, nil
}

func (s *storeImpl) IncrementCounter(key string, delta int64) (store.Counter, bool, error) {
	if err := s.require(db.FeatureCompute, "IncrementCounter"); err != nil {
		return store.Counter{}, false, err
	}

	var (
		counter store.Counter
		loaded  bool
		err     error
	)
	s.db.Compute(key, func(old db.Entry, ok bool, _ time.Time) (db.Entry, db.Action) {
		if !ok {
			return old, db.ActionKeep
		}
		loaded = true

		current, parseErr := store.ParseCounterValue(old.Value)
		if parseErr != nil {
			err = parseErr
			return old, db.ActionKeep
		}

		width := store.CounterWidth(old.Flags)
		counter = store.Counter{Value: width.ApplyDelta(current, delta), Width: width.Effective()}
		old.Value = store.FormatCounterValue(counter.Value)
		return old, db.ActionWrite
	})
	return counter, loaded, err
}

func (s *storeImpl) GetCounter(key string) (store.Counter, bool, error) {
	if err := s.require(db.FeatureGet, "GetCounter"); err != nil {
		return store.Counter{}, false, err
	}

	e, ok := s.db.GetEntry(key)
	if !ok {
		return store.Counter{}, false, nil
	}
	value, err := store.ParseCounterValue(e.Value)
	if err != nil {
		return store.Counter{}, true, err
	}
	return store.Counter{Value: value, Width: store.CounterWidth(e.Flags).Effective()}, true, nil
}
