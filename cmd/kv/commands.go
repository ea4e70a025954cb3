package kv

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/dCache/cmd/util"
	"github.com/ValentinKolb/dCache/lib/store"
	"github.com/spf13/cobra"
)

func init() {
	for _, cmd := range []*cobra.Command{addCmd, setCmd, casCmd, maddCmd, msetCmd} {
		cmd.Flags().Duration("ttl", 0, util.WrapString("Time to live of the written entries (0 = no expiry)"))
	}
	incrCmd.Flags().Int64("initial", 0, util.WrapString("Value the counter starts from if the key is absent"))
	counterCmd.Flags().String("type", "long", util.WrapString("Width of a new counter (int, long)"))
	counterCmd.Flags().Int64("initial", 0, util.WrapString("Initial value of a new counter"))
	counterCmd.Flags().Int64("delta", 1, util.WrapString("Amount to add to an existing counter (0 only reads it)"))
}

// ttlFlag reads the --ttl flag of cmd
func ttlFlag(cmd *cobra.Command) time.Duration {
	ttl, _ := cmd.Flags().GetDuration("ttl")
	return ttl
}

// pairs splits k1=v1 k2=v2 ... into keys and values
func pairs(args []string) ([]string, [][]byte, error) {
	keys := make([]string, 0, len(args))
	values := make([][]byte, 0, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, nil, fmt.Errorf("invalid pair %q (expected key=value)", arg)
		}
		keys = append(keys, k)
		values = append(values, []byte(v))
	}
	return keys, values, nil
}

var (
	addCmd = &cobra.Command{
		Use:   "add [key] [value]",
		Short: "Stores the value only if the key holds no live entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			added, err := rpcStore.Add(args[0], []byte(args[1]), ttlFlag(cmd))
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, added=%t\n", args[0], added)
			return nil
		},
	}
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcStore.Set(args[0], []byte(args[1]), ttlFlag(cmd)); err != nil {
				return err
			}
			fmt.Println("set successfully")
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if resp, ok, err := rpcStore.Get(key); err != nil {
				return err
			} else {
				fmt.Printf("key=%s, found=%v, resp=%s\n", key, ok, resp)
			}
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key value pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deleted, err := rpcStore.Delete(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, deleted=%t\n", args[0], deleted)
			return nil
		},
	}
	takeCmd = &cobra.Command{
		Use:   "take [key]",
		Short: "Deletes a key and prints the value it held",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, ok, err := rpcStore.GetAndDelete(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=%v, resp=%s\n", args[0], ok, value)
			return nil
		},
	}
	getsCmd = &cobra.Command{
		Use:   "gets [key]",
		Short: "Reads the value and the version (CAS token) of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, version, ok, err := rpcStore.Gets(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=%v, version=%d, resp=%s\n", args[0], ok, version, value)
			return nil
		},
	}
	casCmd = &cobra.Command{
		Use:   "cas [key] [version] [value]",
		Short: "Replaces the value if the entry still has the given version",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("version must be a number: %w", err)
			}
			swapped, found, err := rpcStore.CompareAndSwap(args[0], version, []byte(args[2]), ttlFlag(cmd))
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=%t, swapped=%t\n", args[0], found, swapped)
			return nil
		},
	}
	incrCmd = &cobra.Command{
		Use:   "incr [key] [delta]",
		Short: "Adds delta (may be negative) to a decimal counter, the result never drops below zero",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("delta must be a number: %w", err)
			}
			initial, _ := cmd.Flags().GetInt64("initial")
			value, err := rpcStore.Increment(args[0], delta, initial)
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, value=%d\n", args[0], value)
			return nil
		},
	}
	counterCmd = &cobra.Command{
		Use:   "counter [key]",
		Short: "Creates a typed counter if absent and applies delta to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			typ, _ := cmd.Flags().GetString("type")
			width, err := store.ParseCounterWidth(typ)
			if err != nil {
				return err
			}
			initial, _ := cmd.Flags().GetInt64("initial")
			delta, _ := cmd.Flags().GetInt64("delta")

			created, err := rpcStore.CreateCounter(key, initial, width)
			if err != nil {
				return err
			}

			var counter store.Counter
			var ok bool
			if delta == 0 {
				counter, ok, err = rpcStore.GetCounter(key)
			} else {
				counter, ok, err = rpcStore.IncrementCounter(key, delta)
			}
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, created=%t, found=%t, type=%s, value=%d\n", key, created, ok, counter.Width, counter.Value)
			return nil
		},
	}
	maddCmd = &cobra.Command{
		Use:   "madd [key=value]...",
		Short: "Adds all pairs, or none if any key holds a live entry",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, values, err := pairs(args)
			if err != nil {
				return err
			}
			added, err := rpcStore.MultiAdd(keys, values, ttlFlag(cmd))
			if err != nil {
				return err
			}
			fmt.Printf("keys=%d, added=%t\n", len(keys), added)
			return nil
		},
	}
	msetCmd = &cobra.Command{
		Use:   "mset [key=value]...",
		Short: "Sets all pairs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, values, err := pairs(args)
			if err != nil {
				return err
			}
			if err := rpcStore.MultiSet(keys, values, ttlFlag(cmd)); err != nil {
				return err
			}
			fmt.Printf("set %d keys successfully\n", len(keys))
			return nil
		},
	}
	mgetCmd = &cobra.Command{
		Use:   "mget [key]...",
		Short: "Reads several keys, absent keys are omitted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := rpcStore.MultiGet(args)
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(entries))
			for k := range entries {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("key=%s, resp=%s\n", k, entries[k])
			}
			fmt.Printf("found %d of %d keys\n", len(entries), len(args))
			return nil
		},
	}
	mdelCmd = &cobra.Command{
		Use:   "mdel [key]...",
		Short: "Deletes several keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcStore.MultiDelete(args); err != nil {
				return err
			}
			fmt.Println("delete successfully")
			return nil
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Prints information about the engine of the shard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := rpcStore.GetDBInfo()
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
)
