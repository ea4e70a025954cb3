package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cmdUtil "github.com/ValentinKolb/dCache/cmd/util"
	"github.com/ValentinKolb/dCache/lib/registry"
	"github.com/ValentinKolb/dCache/rpc/common"
	"github.com/ValentinKolb/dCache/rpc/serializer"
	"github.com/ValentinKolb/dCache/rpc/server"
	"github.com/ValentinKolb/dCache/rpc/transport/http"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the dCache server",
		Long:    `Start the dCache server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is DCACHE_<flag> (e.g. DCACHE_REST_ENDPOINT=0.0.0.0:8081)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	key := "shards"
	ServeCmd.PersistentFlags().String(key, "100=default,200=module-a", cmdUtil.WrapString("Comma-separated list of shards to serve. Format: ID=MODULE. Every shard is an isolated module with its own entries and named caches, the first one is the default module of the REST gateway"))

	key = "caches"
	ServeCmd.PersistentFlags().String(key, "expiring=ttl(6s),noupdate=add-only", cmdUtil.WrapString("Named caches declared in every module at startup. Format: NAME=POLICY where POLICY is one of: plain, add-only, ttl(<duration>)"))

	key = "default-policy"
	ServeCmd.PersistentFlags().String(key, "plain", cmdUtil.WrapString("Policy bound to named caches that are written before they are declared"))

	key = "db-shards"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Number of lock shards of every engine (0 = number of CPUs)"))

	key = "gc-interval"
	ServeCmd.PersistentFlags().Duration(key, 0, cmdUtil.WrapString("Interval of the background sweep removing expired entries (0 = default, negative disables it, expired entries are then only removed on access)"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Read and write timeout of the RPC endpoint in seconds"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the RPC API will listen"))

	key = "rest-endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8081", cmdUtil.WrapString("The address on which the REST gateway will listen (empty disables it)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	key = "log-format"
	ServeCmd.PersistentFlags().String(key, "console", cmdUtil.WrapString("Format of the log output (console, json)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	config, err := configFromViper()
	if err != nil {
		return err
	}
	*serveCmdConfig = config
	return nil
}

// configFromViper builds and validates the server configuration
func configFromViper() (common.ServerConfig, error) {
	shards, err := common.ParseShards(viper.GetString("shards"))
	if err != nil {
		return common.ServerConfig{}, err
	}

	caches, err := common.ParseCaches(viper.GetString("caches"))
	if err != nil {
		return common.ServerConfig{}, err
	}
	for name, policy := range caches {
		if _, err := registry.ParsePolicy(policy); err != nil {
			return common.ServerConfig{}, fmt.Errorf("cache %s: %w", name, err)
		}
	}

	defaultPolicy := viper.GetString("default-policy")
	if _, err := registry.ParsePolicy(defaultPolicy); err != nil {
		return common.ServerConfig{}, fmt.Errorf("default policy: %w", err)
	}

	return common.ServerConfig{
		Shards:        shards,
		Caches:        caches,
		DefaultPolicy: defaultPolicy,
		DBShards:      viper.GetInt("db-shards"),
		GCInterval:    viper.GetDuration("gc-interval"),
		TimeoutSecond: viper.GetInt64("timeout"),
		Endpoint:      viper.GetString("endpoint"),
		RestEndpoint:  viper.GetString("rest-endpoint"),
		LogLevel:      viper.GetString("log-level"),
		LogFormat:     viper.GetString("log-format"),
	}, nil
}

// run starts the dCache server and blocks until SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	if err := common.InitLoggers(*serveCmdConfig); err != nil {
		return err
	}

	s, err := serializer.ByName(viper.GetString("serializer"))
	if err != nil {
		return err
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		http.NewHttpServerTransport(),
		s,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serv.Serve(ctx)
}
