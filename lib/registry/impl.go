package registry

import (
	"errors"
	"sort"
	"sync/atomic"

	"github.com/ValentinKolb/dCache/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/singleflight"
)

var Logger = logger.GetLogger("registry")

// StoreFactory creates the store backing one named cache
type StoreFactory func(name string) store.IStore

// namedCache is the binding of one name. The policy never changes after creation,
// the store is created on the first write.
type namedCache struct {
	policy Policy
	store  atomic.Pointer[storeRef]
}

type storeRef struct {
	store.IStore
}

type registryImpl struct {
	caches        *xsync.MapOf[string, *namedCache]
	factory       StoreFactory
	defaultPolicy Policy
	creating      singleflight.Group
}

// NewRegistry creates an empty registry. Names that are written without being declared
// first are bound to defaultPolicy.
func NewRegistry(factory StoreFactory, defaultPolicy Policy) IRegistry {
	return &registryImpl{
		caches:        xsync.NewMapOf[string, *namedCache](),
		factory:       factory,
		defaultPolicy: defaultPolicy,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see registry/interface.go)
// --------------------------------------------------------------------------

func (r *registryImpl) Declare(name string, policy Policy) error {
	if policy.Kind == PolicyFixedTTL && policy.TTL <= 0 {
		return store.Errorf(store.RetCInvalidArgument, "fixed ttl of cache %q must be positive", name)
	}

	c, loaded := r.caches.LoadOrStore(name, &namedCache{policy: policy})
	if !loaded {
		Logger.Infof("cache %q declared with policy %s", name, policy)
		return nil
	}
	if c.policy != policy {
		return store.Errorf(store.RetCInvalidArgument,
			"cache %q is already bound to policy %s, cannot redeclare as %s", name, c.policy, policy)
	}
	return nil
}

func (r *registryImpl) Write(name, key string, value []byte) error {
	c, loaded := r.caches.LoadOrCompute(name, func() *namedCache {
		return &namedCache{policy: r.defaultPolicy}
	})
	if !loaded {
		Logger.Debugf("cache %q bound to default policy %s on first write", name, c.policy)
	}

	s, err := r.storeOf(name, c)
	if err != nil {
		return err
	}

	switch c.policy.Kind {
	case PolicyAddOnly:
		// a collision is the expected outcome, the original value stays
		_, err = s.Add(key, value, 0)
	default:
		err = s.Set(key, value, c.policy.ttl())
	}
	return err
}

func (r *registryImpl) Read(name, key string) ([]byte, bool, error) {
	s := r.existingStore(name)
	if s == nil {
		return nil, false, nil
	}
	return s.Get(key)
}

func (r *registryImpl) Remove(name, key string) ([]byte, bool, error) {
	s := r.existingStore(name)
	if s == nil {
		return nil, false, nil
	}
	return s.GetAndDelete(key)
}

func (r *registryImpl) Policy(name string) (Policy, bool) {
	c, ok := r.caches.Load(name)
	if !ok {
		return Policy{}, false
	}
	return c.policy, true
}

func (r *registryImpl) Names() []string {
	names := make([]string, 0, r.caches.Size())
	r.caches.Range(func(name string, _ *namedCache) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

func (r *registryImpl) Close() error {
	var errs []error
	r.caches.Range(func(name string, c *namedCache) bool {
		if ref := c.store.Load(); ref != nil {
			if err := ref.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		return true
	})
	return errors.Join(errs...)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// storeOf returns the store of c, creating it once even under concurrent first writes
func (r *registryImpl) storeOf(name string, c *namedCache) (store.IStore, error) {
	if ref := c.store.Load(); ref != nil {
		return ref.IStore, nil
	}

	v, err, _ := r.creating.Do(name, func() (any, error) {
		if ref := c.store.Load(); ref != nil {
			return ref, nil
		}
		s := r.factory(name)
		if s == nil {
			return nil, store.Errorf(store.RetCInternalError, "no store created for cache %q", name)
		}
		ref := &storeRef{s}
		c.store.Store(ref)
		return ref, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*storeRef).IStore, nil
}

// existingStore returns the store of name without creating anything
func (r *registryImpl) existingStore(name string) store.IStore {
	c, ok := r.caches.Load(name)
	if !ok {
		return nil
	}
	ref := c.store.Load()
	if ref == nil {
		return nil
	}
	return ref.IStore
}
