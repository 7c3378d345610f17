package lstore

import (
	"sync/atomic"

	"github.com/ValentinKolb/segkv/lib/db"
	"github.com/ValentinKolb/segkv/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("store")

type storeImpl struct {
	db    db.KVDB
	index atomic.Uint64
}

// NewLocalStore creates a new local store on the database created by factory.
func NewLocalStore(factory store.DBFactory) store.IStore {
	return &storeImpl{db: factory()}
}

// incAndGetIndex increments the index and returns the new value.
//
// Thread-safety: This method is thread-safe since it uses atomic operations.
func (s *storeImpl) incAndGetIndex() uint64 {
	return s.index.Add(1)
}

// require returns an unsupported-operation error if the database lacks feature.
func (s *storeImpl) require(feature db.Feature) error {
	if s.db.SupportsFeature(feature) {
		return nil
	}
	log.Debugf("rejected %s: not supported by the database", feature)
	return store.NewError(store.RetCUnsupportedOperation, feature.String()+" operation is not supported")
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Set(key string, value []byte) error {
	if err := s.require(db.FeatureSet); err != nil {
		return err
	}
	s.db.Set(key, value, s.incAndGetIndex())
	return nil
}

func (s *storeImpl) SetE(key string, value []byte, expireIn, deleteIn uint64) error {
	if err := s.require(db.FeatureSetE); err != nil {
		return err
	}
	s.db.SetE(key, value, s.incAndGetIndex(), expireIn, deleteIn)
	return nil
}

func (s *storeImpl) SetEIfUnset(key string, value []byte, expireIn, deleteIn uint64) error {
	if err := s.require(db.FeatureSetEIfUnset); err != nil {
		return err
	}
	s.db.SetEIfUnset(key, value, s.incAndGetIndex(), expireIn, deleteIn)
	return nil
}

func (s *storeImpl) Expire(key string) error {
	if err := s.require(db.FeatureExpire); err != nil {
		return err
	}
	s.db.Expire(key, s.incAndGetIndex())
	return nil
}

func (s *storeImpl) Delete(key string) error {
	if err := s.require(db.FeatureDelete); err != nil {
		return err
	}
	s.db.Delete(key, s.incAndGetIndex())
	return nil
}

func (s *storeImpl) Get(key string) ([]byte, bool, error) {
	if err := s.require(db.FeatureGet); err != nil {
		return nil, false, err
	}
	val, ok := s.db.Get(key)
	return val, ok, nil
}

func (s *storeImpl) Has(key string) (bool, error) {
	if err := s.require(db.FeatureHas); err != nil {
		return false, err
	}
	return s.db.Has(key), nil
}

func (s *storeImpl) Scan(limit int) ([]store.Pair, error) {
	if err := s.require(db.FeatureRange); err != nil {
		return nil, err
	}
	var pairs []store.Pair
	s.db.Range(func(key string, value []byte) bool {
		pairs = append(pairs, store.Pair{Key: key, Value: value})
		return limit <= 0 || len(pairs) < limit
	})
	return pairs, nil
}

func (s *storeImpl) Size() (int, error) {
	if err := s.require(db.FeatureSize); err != nil {
		return 0, err
	}
	return s.db.Size(), nil
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	return s.db.GetInfo(), nil
}

func (s *storeImpl) Close() error {
	if err := s.db.Close(); err != nil {
		return store.NewError(store.RetCInternalError, err.Error())
	}
	return nil
}
