package lstore

import (
	"time"

	"github.com/ValentinKolb/dCache/lib/db"
	"github.com/ValentinKolb/dCache/lib/store"
)

type storeImpl struct {
	db db.KVDB
}

// NewLocalStore creates a new local store instance on top of the engine returned by factory.
// Every operation is delegated to a single engine call, so the atomicity guarantees of the
// engine (per key Compute, ComputeBatch) carry over unchanged.
func NewLocalStore(factory store.DBFactory) store.IStore {
	return &storeImpl{
		db: factory(),
	}
}

// require returns an unsupported operation error if the engine lacks feature
func (s *storeImpl) require(feature db.Feature, op string) error {
	if !s.db.SupportsFeature(feature) {
		return store.NewError(store.RetCUnsupportedOperation, op+" operation is not supported")
	}
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Add(key string, value []byte, ttl time.Duration) (bool, error) {
	if err := s.require(db.FeatureAdd, "Add"); err != nil {
		return false, err
	}
	return s.db.Add(key, value, ttl), nil
}

func (s *storeImpl) Set(key string, value []byte, ttl time.Duration) error {
	if err := s.require(db.FeatureSet, "Set"); err != nil {
		return err
	}
	s.db.Set(key, value, ttl)
	return nil
}

func (s *storeImpl) Get(key string) ([]byte, bool, error) {
	if err := s.require(db.FeatureGet, "Get"); err != nil {
		return nil, false, err
	}
	val, ok := s.db.Get(key)
	return val, ok, nil
}

func (s *storeImpl) Delete(key string) (bool, error) {
	if err := s.require(db.FeatureDelete, "Delete"); err != nil {
		return false, err
	}
	return s.db.Delete(key), nil
}

func (s *storeImpl) GetAndDelete(key string) ([]byte, bool, error) {
	if err := s.require(db.FeatureCompute, "GetAndDelete"); err != nil {
		return nil, false, err
	}

	var (
		value  []byte
		loaded bool
	)
	s.db.Compute(key, func(old db.Entry, ok bool, _ time.Time) (db.Entry, db.Action) {
		if !ok {
			return old, db.ActionKeep
		}
		loaded = true
		value = append([]byte{}, old.Value...)
		return old, db.ActionDelete
	})
	return value, loaded, nil
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	return s.db.GetInfo(), nil
}

func (s *storeImpl) Close() error {
	return s.db.Close()
}
