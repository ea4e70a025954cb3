package cache

import (
	"fmt"

	"github.com/ValentinKolb/dCache/cmd/util"
	"github.com/ValentinKolb/dCache/lib/registry"
	"github.com/ValentinKolb/dCache/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcRegistry registry.IRegistry

	// CacheCommands represents the named cache command group
	CacheCommands = &cobra.Command{
		Use:               "cache",
		Short:             "Perform named cache operations",
		PersistentPreRunE: setupCacheClient,
	}

	declareCmd = &cobra.Command{
		Use:   "declare [cache] [policy]",
		Short: "Binds a cache name to a policy (plain, add-only, ttl(<duration>))",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := registry.ParsePolicy(args[1])
			if err != nil {
				return err
			}
			if err := rpcRegistry.Declare(args[0], policy); err != nil {
				return err
			}
			fmt.Printf("cache=%s, policy=%s\n", args[0], policy)
			return nil
		},
	}

	putCmd = &cobra.Command{
		Use:   "put [cache] [key] [value]",
		Short: "Writes a value into a named cache according to its policy",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcRegistry.Write(args[0], args[1], []byte(args[2])); err != nil {
				return err
			}
			fmt.Println("put successfully")
			return nil
		},
	}

	getCmd = &cobra.Command{
		Use:   "get [cache] [key]",
		Short: "Reads a value from a named cache",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, ok, err := rpcRegistry.Read(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("cache=%s, key=%s, found=%v, resp=%s\n", args[0], args[1], ok, value)
			return nil
		},
	}

	removeCmd = &cobra.Command{
		Use:   "remove [cache] [key]",
		Short: "Removes a key from a named cache and prints the value it held",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, ok, err := rpcRegistry.Remove(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("cache=%s, key=%s, found=%v, resp=%s\n", args[0], args[1], ok, value)
			return nil
		},
	}

	namesCmd = &cobra.Command{
		Use:   "names",
		Short: "Lists all bound cache names with their policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names := rpcRegistry.Names()
			if names == nil {
				return fmt.Errorf("failed to load cache names")
			}
			for _, name := range names {
				policy, _ := rpcRegistry.Policy(name)
				fmt.Printf("cache=%s, policy=%s\n", name, policy)
			}
			return nil
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common RPC flags to the cache command
	util.SetupRPCClientFlags(CacheCommands)

	CacheCommands.PersistentFlags().Uint64("shard", 100, util.WrapString("ID of the shard (module) to connect to"))

	// Add subcommands
	CacheCommands.AddCommand(declareCmd)
	CacheCommands.AddCommand(putCmd)
	CacheCommands.AddCommand(getCmd)
	CacheCommands.AddCommand(removeCmd)
	CacheCommands.AddCommand(namesCmd)
}

// setupCacheClient initializes the RPC registry client
func setupCacheClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	if err := util.InitClientLoggers(); err != nil {
		return err
	}

	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	rpcRegistry, err = client.NewRPCRegistry(
		util.GetShardID(),
		*util.GetClientConfig(),
		util.GetTransport(),
		s,
	)
	return err
}
