package registry

import (
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/dCache/lib/store"
)

// PolicyKind selects the write strategy of a named cache
type PolicyKind uint8

const (
	PolicyPlain    PolicyKind = iota // writes overwrite
	PolicyAddOnly                    // first writer wins, later writes succeed without effect
	PolicyFixedTTL                   // writes overwrite and always expire after Policy.TTL
)

// Policy is the write policy bound to a named cache.
// TTL is only meaningful for PolicyFixedTTL.
type Policy struct {
	Kind PolicyKind    `json:"kind"`
	TTL  time.Duration `json:"ttl,omitempty"`
}

// Plain returns the overwrite policy
func Plain() Policy { return Policy{Kind: PolicyPlain} }

// AddOnly returns the first-writer-wins policy
func AddOnly() Policy { return Policy{Kind: PolicyAddOnly} }

// FixedTTL returns the policy that expires every entry after d
func FixedTTL(d time.Duration) Policy { return Policy{Kind: PolicyFixedTTL, TTL: d} }

func (p Policy) String() string {
	switch p.Kind {
	case PolicyPlain:
		return "plain"
	case PolicyAddOnly:
		return "add-only"
	case PolicyFixedTTL:
		return fmt.Sprintf("ttl(%s)", p.TTL)
	default:
		return "unknown"
	}
}

// ttl returns the expiry applied to writes
func (p Policy) ttl() time.Duration {
	if p.Kind == PolicyFixedTTL {
		return p.TTL
	}
	return 0
}

// ParsePolicy parses the text form of a policy: "plain", "add-only" or "ttl(<duration>)".
// "ttl=<duration>" and a bare duration are accepted as well.
func ParsePolicy(s string) (Policy, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "plain":
		return Plain(), nil
	case "add-only", "addonly", "add_only":
		return AddOnly(), nil
	}

	raw := s
	switch {
	case strings.HasPrefix(s, "ttl(") && strings.HasSuffix(s, ")"):
		raw = s[len("ttl(") : len(s)-1]
	case strings.HasPrefix(s, "ttl="):
		raw = s[len("ttl="):]
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return Policy{}, store.Errorf(store.RetCInvalidArgument, "invalid cache policy %q", s)
	}
	if d <= 0 {
		return Policy{}, store.Errorf(store.RetCInvalidArgument, "fixed ttl must be positive, got %s", d)
	}
	return FixedTTL(d), nil
}
