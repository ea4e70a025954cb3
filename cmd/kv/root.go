package kv

import (
	"github.com/ValentinKolb/dCache/cmd/util"
	"github.com/ValentinKolb/dCache/lib/store"
	"github.com/ValentinKolb/dCache/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcStore store.IStore

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:               "kv",
		Short:             "Perform entry, counter and batch operations",
		PersistentPreRunE: setupKVClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common RPC flags to the KV command
	util.SetupRPCClientFlags(KeyValueCommands)

	KeyValueCommands.PersistentFlags().Uint64("shard", 100, util.WrapString("ID of the shard (module) to connect to"))

	// Add subcommands
	KeyValueCommands.AddCommand(addCmd)
	KeyValueCommands.AddCommand(setCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(takeCmd)
	KeyValueCommands.AddCommand(getsCmd)
	KeyValueCommands.AddCommand(casCmd)
	KeyValueCommands.AddCommand(incrCmd)
	KeyValueCommands.AddCommand(counterCmd)
	KeyValueCommands.AddCommand(maddCmd)
	KeyValueCommands.AddCommand(msetCmd)
	KeyValueCommands.AddCommand(mgetCmd)
	KeyValueCommands.AddCommand(mdelCmd)
	KeyValueCommands.AddCommand(infoCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupKVClient initializes the RPC store client
func setupKVClient(cmd *cobra.Command, _ []string) error {
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

	// Create the KV store client
	rpcStore, err = client.NewRPCStore(
		util.GetShardID(),
		*util.GetClientConfig(),
		util.GetTransport(),
		s,
	)

	return err
}
