package perf

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/segkv/cmd/util"
	"github.com/ValentinKolb/segkv/lib/segmap"
	"github.com/puzpuzpuz/xsync/v3"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	PerfCmd = &cobra.Command{
		Use:     "perf",
		Short:   "In-process performance tests of the concurrent map",
		Long:    "Runs parallel benchmarks against segmap and, for comparison, xsync.MapOf and sync.Map. Latencies of a sample of operations are recorded in go-metrics timers.",
		PreRunE: processPerfConfig,
		RunE:    run,
	}

	perfKeyPrefix   = "__test"
	perfNumThreads  = 10
	perfKeySpread   = 1000
	perfImpls       = []string{"segmap"}
	perfSkip        = make([]string, 0)
	perfMapOptions  = segmap.DefaultOptions()
	perfSampleEvery = 64
)

// tests lists the benchmarks in the order they run.
var tests = []string{"set", "get", "put-if-absent", "remove", "size", "mixed"}

func init() {
	key := "skip"
	PerfCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	PerfCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines per GOMAXPROCS to use for the benchmark"))
	key = "keys"
	PerfCmd.Flags().Int(key, 1000, util.WrapString("How many different keys to use for the tests"))
	key = "impl"
	PerfCmd.Flags().String(key, "segmap", util.WrapString("Comma separated list of map implementations to test (segmap, xsync, syncmap)"))
	key = "concurrency"
	PerfCmd.Flags().Int(key, perfMapOptions.Concurrency, util.WrapString("Concurrency level of the segmap under test"))
	key = "csv"
	PerfCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	if err := util.InitLogging(); err != nil {
		return err
	}

	perfKeySpread = viper.GetInt("keys")
	perfNumThreads = viper.GetInt("threads")
	perfSkip = splitList(viper.GetString("skip"))
	perfImpls = splitList(viper.GetString("impl"))
	perfMapOptions = segmap.DefaultOptions()
	perfMapOptions.Concurrency = viper.GetInt("concurrency")
	perfMapOptions.InitialCapacity = perfKeySpread

	if perfKeySpread <= 0 {
		return fmt.Errorf("keys must be positive")
	}
	if perfNumThreads <= 0 {
		return fmt.Errorf("threads must be positive")
	}
	if len(perfImpls) == 0 {
		return fmt.Errorf("at least one impl is required")
	}
	return perfMapOptions.Validate()
}

// result is the outcome of one benchmark against one implementation.
type result struct {
	test    string
	impl    string
	bench   testing.BenchmarkResult
	latency gometrics.Timer
	ops     int64
}

func run(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for segkv")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("Implementations: %s\n", strings.Join(perfImpls, ", "))
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Printf("Keys: %d\n", perfKeySpread)
	fmt.Printf("Concurrency: %d\n", perfMapOptions.Concurrency)
	fmt.Println()
	fmt.Println("starting tests...")

	var results []result
	for _, impl := range perfImpls {
		if _, err := newTarget(impl, perfMapOptions); err != nil {
			return err
		}
		fmt.Printf("\n[%s]\n", impl)
		for _, test := range tests {
			res, err := runTest(test, impl)
			if err != nil {
				return err
			}
			printResult(res)
			results = append(results, res)
		}
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}
	return nil
}

// runTest benchmarks a single operation against a fresh map of impl.
func runTest(test, impl string) (result, error) {
	res := result{test: test, impl: impl, latency: gometrics.NewTimer()}
	if shouldSkip(test) {
		return res, nil
	}

	m, err := newTarget(impl, perfMapOptions)
	if err != nil {
		return res, err
	}
	getKey, iter := getKeys(test)
	op, prefill := operation(test, m)
	if prefill {
		iter(func(k string) { m.Put(k, "test") })
	}
	ops := xsync.NewCounter()

	res.bench = testing.Benchmark(func(b *testing.B) {
		b.SetParallelism(perfNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				key := getKey(counter)
				if counter%perfSampleEvery == 0 {
					start := time.Now()
					op(counter, key)
					res.latency.UpdateSince(start)
				} else {
					op(counter, key)
				}
				ops.Inc()
				counter++
			}
		})
	})
	res.ops = ops.Value()
	return res, nil
}

// operation returns the function measured by test and whether the key set
// has to be written before measuring.
func operation(test string, m target) (func(i int, key string), bool) {
	switch test {
	case "set":
		return func(_ int, key string) { m.Put(key, "test") }, false
	case "get":
		return func(_ int, key string) { m.Get(key) }, true
	case "put-if-absent":
		return func(_ int, key string) { m.PutIfAbsent(key, "test") }, false
	case "remove":
		return func(i int, key string) {
			if i%2 == 0 {
				m.Remove(key)
			} else {
				m.Put(key, "test")
			}
		}, true
	case "size":
		return func(_ int, _ string) { m.Size() }, true
	default: // mixed
		return func(i int, key string) {
			switch i % 10 {
			case 0:
				m.Put(key, "test")
			case 1:
				m.Remove(key)
			case 2:
				m.PutIfAbsent(key, "test")
			case 3:
				m.Size()
			default:
				m.Get(key)
			}
		}, true
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func shouldSkip(test string) bool {
	return slices.Contains(perfSkip, test)
}

// creates an array of test keys and functions to work with them
func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
	}

	getKey := func(i int) string {
		return keys[i%perfKeySpread]
	}

	iterateKeys := func(fn func(string)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

// opsPerSec converts a benchmark result into throughput. Zero means skipped.
func opsPerSec(r testing.BenchmarkResult) (nsPerOp, perSec float64) {
	if r.NsPerOp() == 0 {
		return 0, 0
	}
	nsPerOp = math.Max(float64(r.NsPerOp()), 1) // prevent division by zero
	return nsPerOp, 1.0 / (nsPerOp / 1e9)
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(res result) {
	nsPerOp, perSec := opsPerSec(res.bench)
	if nsPerOp == 0 {
		fmt.Printf("%-20sskipped\n", res.test)
		return
	}
	p := res.latency.Percentiles([]float64{0.5, 0.99})
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\tp50=%s p99=%s\n",
		res.test, nsPerOp, time.Duration(nsPerOp), perSec, time.Duration(p[0]), time.Duration(p[1]))
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results []result) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "Impl", "NsPerOp", "DurationPerOp", "OpsPerSec", "P50Ns", "P99Ns", "Ops", "Skipped",
		"Threads", "Keys", "Concurrency",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for _, res := range results {
		nsPerOp, perSec := opsPerSec(res.bench)
		p := res.latency.Percentiles([]float64{0.5, 0.99})
		row := []string{
			res.test,
			res.impl,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", perSec),
			fmt.Sprintf("%.0f", p[0]),
			fmt.Sprintf("%.0f", p[1]),
			strconv.FormatInt(res.ops, 10),
			strconv.FormatBool(nsPerOp == 0),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfKeySpread),
			strconv.Itoa(perfMapOptions.Concurrency),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", res.test, err)
		}
	}
	return nil
}
