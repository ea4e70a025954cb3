package serve

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func setFlags(t *testing.T, values map[string]any) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	defaults := map[string]any{
		"shards":         "100=default,200=module-a",
		"caches":         "expiring=ttl(6s),noupdate=add-only",
		"default-policy": "plain",
		"timeout":        5,
		"endpoint":       "0.0.0.0:8080",
		"rest-endpoint":  "0.0.0.0:8081",
		"log-level":      "info",
		"log-format":     "console",
	}
	for k, v := range defaults {
		viper.Set(k, v)
	}
	for k, v := range values {
		viper.Set(k, v)
	}
}

func TestConfigFromViper(t *testing.T) {
	setFlags(t, map[string]any{"gc-interval": "250ms", "db-shards": 8})

	config, err := configFromViper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(config.Shards) != 2 || config.Shards[0].Module != "default" || config.Shards[1].ShardID != 200 {
		t.Errorf("unexpected shards %+v", config.Shards)
	}
	if config.Caches["expiring"] != "ttl(6s)" || config.Caches["noupdate"] != "add-only" {
		t.Errorf("unexpected caches %v", config.Caches)
	}
	if config.GCInterval != 250*time.Millisecond || config.DBShards != 8 {
		t.Errorf("unexpected engine settings %v, %d", config.GCInterval, config.DBShards)
	}
	if config.TimeoutSecond != 5 || config.RestEndpoint != "0.0.0.0:8081" {
		t.Errorf("unexpected api settings %+v", config)
	}
}

func TestConfigFromViperInvalid(t *testing.T) {
	tests := map[string]map[string]any{
		"NoShards":             {"shards": ""},
		"DuplicateModule":      {"shards": "1=a,2=a"},
		"InvalidCachePolicy":   {"caches": "sessions=forever"},
		"InvalidDefaultPolicy": {"default-policy": "ttl(-1s)"},
	}
	for name, values := range tests {
		t.Run(name, func(t *testing.T) {
			setFlags(t, values)
			if _, err := configFromViper(); err == nil {
				t.Error("expected error")
			}
		})
	}
}
