package kv

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dCache/cmd/util"
	"github.com/ValentinKolb/dCache/rpc/common"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for dCache servers",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfBatchSize        = 10
	perfSkip             = make([]string, 0)
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the set-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "batch-size"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("How many keys the batch tests (mset, mget) send per request"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfBatchSize = min(max(viper.GetInt("batch-size"), 1), perfKeySpread)
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

// perfCase is one benchmark. prepare runs before the timer starts, op is called for every iteration
type perfCase struct {
	name    string
	prepare func(keys []string)
	op      func(keys []string, i int) error
}

// perfResult combines the throughput measured by testing.Benchmark with the latency distribution of the timer
type perfResult struct {
	bench testing.BenchmarkResult
	timer gometrics.Timer
}

func perfCases() []perfCase {
	value := []byte("test")
	largeValue := make([]byte, perfLargeValueSizeKB*1024)
	fill := func(keys []string) {
		for _, k := range keys {
			if err := rpcStore.Set(k, value, 0); err != nil {
				log.Printf("error setting key %s: %v\n", k, err)
			}
		}
	}
	batch := func(keys []string, i int) []string {
		start := (i * perfBatchSize) % len(keys)
		if start+perfBatchSize > len(keys) {
			start = 0
		}
		return keys[start : start+perfBatchSize]
	}

	return []perfCase{
		{name: "set", op: func(keys []string, i int) error {
			return rpcStore.Set(keys[i%len(keys)], value, 0)
		}},
		{name: "set-large", op: func(keys []string, i int) error {
			return rpcStore.Set(keys[i%len(keys)], largeValue, 0)
		}},
		{name: "add", op: func(keys []string, i int) error {
			_, err := rpcStore.Add(keys[i%len(keys)], value, time.Second)
			return err
		}},
		{name: "get", prepare: fill, op: func(keys []string, i int) error {
			_, _, err := rpcStore.Get(keys[i%len(keys)])
			return err
		}},
		{name: "get-miss", op: func(keys []string, i int) error {
			_, _, err := rpcStore.Get(keys[i%len(keys)])
			return err
		}},
		{name: "delete", prepare: fill, op: func(keys []string, i int) error {
			_, err := rpcStore.Delete(keys[i%len(keys)])
			return err
		}},
		{name: "incr", op: func(keys []string, i int) error {
			_, err := rpcStore.Increment(keys[i%len(keys)], 1, 0)
			return err
		}},
		{name: "cas", prepare: fill, op: func(keys []string, i int) error {
			key := keys[i%len(keys)]
			_, version, ok, err := rpcStore.Gets(key)
			if err != nil || !ok {
				return err
			}
			_, _, err = rpcStore.CompareAndSwap(key, version, value, 0)
			return err
		}},
		{name: "mset", op: func(keys []string, i int) error {
			b := batch(keys, i)
			values := make([][]byte, len(b))
			for j := range values {
				values[j] = value
			}
			return rpcStore.MultiSet(b, values, 0)
		}},
		{name: "mget", prepare: fill, op: func(keys []string, i int) error {
			_, err := rpcStore.MultiGet(batch(keys, i))
			return err
		}},
		{name: "mixed", prepare: fill, op: func(keys []string, i int) error {
			key := keys[i%len(keys)]
			var err error
			switch i % 4 {
			case 0:
				err = rpcStore.Set(key, value, 0)
			case 1:
				_, _, err = rpcStore.Get(key)
			case 2:
				_, err = rpcStore.Increment(key+"-n", 1, 0)
			case 3:
				_, err = rpcStore.Delete(key)
			}
			return err
		}},
	}
}

func runPerf(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for dCache servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	results := make(map[string]perfResult)
	var order []string

	for _, c := range perfCases() {
		order = append(order, c.name)
		if shouldSkip(c.name) {
			results[c.name] = perfResult{timer: gometrics.NewTimer()}
			printResult(c.name, results[c.name])
			continue
		}

		keys := getKeys(c.name)
		timer := gometrics.NewTimer()

		bench := testing.Benchmark(func(b *testing.B) {
			if c.prepare != nil {
				c.prepare(keys)
			}
			b.Cleanup(func() { cleanup(c.name, keys) })

			b.SetParallelism(perfNumThreads)
			b.ResetTimer()

			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					start := time.Now()
					if err := c.op(keys, counter); err != nil {
						log.Printf("(%s) - error: %v\n", c.name, err)
					}
					timer.UpdateSince(start)
					counter++
				}
			})
		})

		results[c.name] = perfResult{bench: bench, timer: timer}
		printResult(c.name, results[c.name])
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, order, results, util.GetClientConfig()); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	return slices.Contains(perfSkip, test)
}

// getKeys creates the test keys of a benchmark
func getKeys(prefix string) []string {
	keys := make([]string, perfKeySpread)
	for i := range keys {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
	}
	return keys
}

// cleanup removes the test keys (and the counters of the mixed test) of a benchmark
func cleanup(test string, keys []string) {
	all := slices.Clone(keys)
	if test == "mixed" {
		for _, k := range keys {
			all = append(all, k+"-n")
		}
	}
	if err := rpcStore.MultiDelete(all); err != nil {
		log.Printf("(%s) - error deleting keys: %v\n", test, err)
	}
}

// opsPerSec returns ns/op and ops/sec of a result, zero if it was skipped
func opsPerSec(result perfResult) (float64, float64) {
	if result.bench.NsPerOp() == 0 {
		return 0, 0
	}
	nsPerOp := math.Max(float64(result.bench.NsPerOp()), 1) // prevent division by zero
	return nsPerOp, 1.0 / (nsPerOp / 1e9)
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result perfResult) {
	nsPerOp, ops := opsPerSec(result)
	if nsPerOp == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	// latency of a single request as seen by one thread
	ps := result.timer.Percentiles([]float64{0.5, 0.99})
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\tp50=%s p99=%s\n",
		test, nsPerOp, time.Duration(nsPerOp), ops, time.Duration(ps[0]), time.Duration(ps[1]))
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, order []string, results map[string]perfResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "P50", "P99", "Skipped",
		"Endpoints", "TimeoutSec", "RetryCount",
		"ShardID", "Serializer",
		"Threads", "LargeValueSizeKB", "Keys Count", "Batch Size",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for _, test := range order {
		result := results[test]
		nsPerOp, ops := opsPerSec(result)
		ps := result.timer.Percentiles([]float64{0.5, 0.99})

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", ops),
			time.Duration(ps[0]).String(),
			time.Duration(ps[1]).String(),
			strconv.FormatBool(nsPerOp == 0),
			strings.Join(config.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.RetryCount),
			strconv.FormatUint(util.GetShardID(), 10),
			viper.GetString("serializer"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
			strconv.Itoa(perfBatchSize),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
