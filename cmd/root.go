package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/ValentinKolb/dCache/cmd/cache"
	"github.com/ValentinKolb/dCache/cmd/kv"
	"github.com/ValentinKolb/dCache/cmd/serve"
	"github.com/ValentinKolb/dCache/cmd/util"
	"github.com/ValentinKolb/dCache/rpc/serializer"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dcache",
		Short: "distributed caching and counter engine",
		Long: fmt.Sprintf(`dCache (v%s)

An in-memory caching engine written in Go with expiring entries,
typed counters, compare-and-swap, all-or-nothing batches and
named caches with write policies.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dCache",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dCache v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(cache.CacheCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "msgpack", util.WrapString(
		fmt.Sprintf("serializer to use (%s)", strings.Join(serializer.Names, ", "))))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
