package common

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerShard is one independently served module. Every shard owns its own
// engine, store and named cache registry.
type ServerShard struct {
	// ShardID is the ID used by the RPC transport to address the shard
	ShardID uint64
	// Module is the name the REST gateway exposes the shard under
	Module string
}

// ServerConfig holds all configuration parameters of a dCache server.
type ServerConfig struct {
	// Shards served by this process, the first one is the default module
	Shards []ServerShard

	// Caches declared at startup (name -> policy text, e.g. "ttl(6s)")
	Caches map[string]string
	// DefaultPolicy is bound to cache names that are written before they are declared
	DefaultPolicy string

	// Engine parameters
	DBShards   int
	GCInterval time.Duration

	// Request timeout
	TimeoutSecond int64

	// API settings
	Endpoint     string
	RestEndpoint string

	// Logging configuration
	LogLevel  string
	LogFormat string
}

// DefaultShard returns the shard served under the plain /memcache routes.
func (c *ServerConfig) DefaultShard() (ServerShard, bool) {
	if len(c.Shards) == 0 {
		return ServerShard{}, false
	}
	return c.Shards[0], true
}

// ParseShards parses a comma separated list in the format ID=MODULE,
// e.g. "100=default,200=orders". IDs and module names must be unique.
func ParseShards(s string) ([]ServerShard, error) {
	var shards []ServerShard
	ids := make(map[uint64]struct{})
	modules := make(map[string]struct{})

	for _, shardConfig := range strings.Split(s, ",") {
		shardConfig = strings.TrimSpace(shardConfig)
		if shardConfig == "" {
			continue
		}
		parts := strings.Split(shardConfig, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid shard format: %s (expected ID=MODULE)", shardConfig)
		}

		shardID, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid shard ID %s: %w", parts[0], err)
		}
		module := strings.TrimSpace(parts[1])
		if module == "" {
			return nil, fmt.Errorf("invalid shard %s: module name is empty", shardConfig)
		}

		if _, dup := ids[shardID]; dup {
			return nil, fmt.Errorf("duplicate shard ID %d", shardID)
		}
		if _, dup := modules[module]; dup {
			return nil, fmt.Errorf("duplicate module name %s", module)
		}
		ids[shardID] = struct{}{}
		modules[module] = struct{}{}

		shards = append(shards, ServerShard{ShardID: shardID, Module: module})
	}

	if len(shards) == 0 {
		return nil, fmt.Errorf("at least one shard is required")
	}
	return shards, nil
}

// ParseCaches parses a comma separated list in the format NAME=POLICY,
// e.g. "sessions=ttl(6s),ids=add-only". The policies are validated by the registry.
func ParseCaches(s string) (map[string]string, error) {
	caches := make(map[string]string)
	for _, cacheConfig := range strings.Split(s, ",") {
		cacheConfig = strings.TrimSpace(cacheConfig)
		if cacheConfig == "" {
			continue
		}
		name, policy, ok := strings.Cut(cacheConfig, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid cache format: %s (expected NAME=POLICY)", cacheConfig)
		}
		caches[name] = strings.TrimSpace(policy)
	}
	return caches, nil
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("RPC Server")
	addField("Endpoint", c.Endpoint)
	addField("REST Endpoint", c.RestEndpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	addSection("Engine")
	addField("Engine Shards", strconv.Itoa(c.DBShards))
	if c.GCInterval < 0 {
		addField("GC Interval", "disabled")
	} else {
		addField("GC Interval", c.GCInterval.String())
	}

	addSection("Logging")
	addField("Log Level", c.LogLevel)
	addField("Log Format", c.LogFormat)

	addSection("Shards")
	for _, shard := range c.Shards {
		addField(strconv.FormatUint(shard.ShardID, 10), shard.Module)
	}

	addSection("Named Caches")
	addField("Default Policy", c.DefaultPolicy)
	names := make([]string, 0, len(c.Caches))
	for name := range c.Caches {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		addField(name, c.Caches[name])
	}

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Endpoints     []string
	TimeoutSecond int
	RetryCount    int
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.RetryCount))

	addSection("Endpoints")
	for i, endpoint := range c.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
