package registry

// IRegistry maps cache names to independently stored caches with their own write policy.
//
// A name is bound to a policy exactly once, either by Declare or implicitly with the
// registry's default policy on the first Write. Later declarations with the same policy
// are no-ops, declarations with a different policy are rejected.
type IRegistry interface {
	// Declare binds name to policy.
	Declare(name string, policy Policy) (err error)

	// Write stores value under key in the named cache according to its policy.
	// Under the add-only policy a write to a live key succeeds without changing it.
	Write(name, key string, value []byte) (err error)

	// Read returns the live value of key in the named cache.
	// Unknown caches behave like empty ones.
	Read(name, key string) (value []byte, loaded bool, err error)

	// Remove deletes key from the named cache and returns the value it held.
	Remove(name, key string) (value []byte, loaded bool, err error)

	// Policy returns the policy a name is bound to.
	Policy(name string) (policy Policy, bound bool)

	// Names returns all bound cache names in sorted order.
	Names() (names []string)

	// Close closes every store the registry created.
	Close() (err error)
}
