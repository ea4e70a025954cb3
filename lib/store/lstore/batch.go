package lstore

import (
	"time"

	"github.com/ValentinKolb/dCache/lib/db"
	"github.com/ValentinKolb/dCache/lib/store"
)

// collapse validates a batch and removes duplicate keys, keeping the last value.
// values may be nil for key-only batches.
func collapse(keys []string, values [][]byte) ([]string, [][]byte, error) {
	if values != nil && len(keys) != len(values) {
		return nil, nil, store.Errorf(store.RetCInvalidArgument,
			"batch has %d keys but %d values", len(keys), len(values))
	}

	pos := make(map[string]int, len(keys))
	outKeys := make([]string, 0, len(keys))
	var outValues [][]byte
	if values != nil {
		outValues = make([][]byte, 0, len(values))
	}

	for i, k := range keys {
		if j, dup := pos[k]; dup {
			if values != nil {
				outValues[j] = values[i]
			}
			continue
		}
		pos[k] = len(outKeys)
		outKeys = append(outKeys, k)
		if values != nil {
			outValues = append(outValues, values[i])
		}
	}
	return outKeys, outValues, nil
}

func (s *storeImpl) MultiAdd(keys []string, values [][]byte, ttl time.Duration) (bool, error) {
	if err := s.require(db.FeatureBatch, "MultiAdd"); err != nil {
		return false, err
	}
	if values == nil {
		values = [][]byte{}
	}
	keys, values, err := collapse(keys, values)
	if err != nil {
		return false, err
	}

	added := true
	s.db.ComputeBatch(keys, func(old []db.Entry, loaded []bool, now time.Time) ([]db.Entry, []db.Action) {
		actions := make([]db.Action, len(keys))
		for _, l := range loaded {
			if l {
				// one live key rejects the whole batch
				added = false
				return old, actions
			}
		}

		next := make([]db.Entry, len(keys))
		deadline := db.Deadline(now, ttl)
		for i := range keys {
			next[i] = db.Entry{Value: values[i], ExpireAt: deadline}
			actions[i] = db.ActionWrite
		}
		return next, actions
	})
	return added, nil
}

func (s *storeImpl) MultiSet(keys []string, values [][]byte, ttl time.Duration) error {
	if err := s.require(db.FeatureBatch, "MultiSet"); err != nil {
		return err
	}
	if values == nil {
		values = [][]byte{}
	}
	keys, values, err := collapse(keys, values)
	if err != nil {
		return err
	}

	s.db.ComputeBatch(keys, func(_ []db.Entry, _ []bool, now time.Time) ([]db.Entry, []db.Action) {
		next := make([]db.Entry, len(keys))
		actions := make([]db.Action, len(keys))
		deadline := db.Deadline(now, ttl)
		for i := range keys {
			next[i] = db.Entry{Value: values[i], ExpireAt: deadline}
			actions[i] = db.ActionWrite
		}
		return next, actions
	})
	return nil
}

func (s *storeImpl) MultiDelete(keys []string) error {
	if err := s.require(db.FeatureBatch, "MultiDelete"); err != nil {
		return err
	}
	keys, _, _ = collapse(keys, nil)

	s.db.ComputeBatch(keys, func(old []db.Entry, _ []bool, _ time.Time) ([]db.Entry, []db.Action) {
		actions := make([]db.Action, len(keys))
		for i := range actions {
			actions[i] = db.ActionDelete
		}
		return old, actions
	})
	return nil
}

func (s *storeImpl) MultiGet(keys []string) (map[string][]byte, error) {
	if err := s.require(db.FeatureBatch, "MultiGet"); err != nil {
		return nil, err
	}
	return s.db.GetMany(keys), nil
}
