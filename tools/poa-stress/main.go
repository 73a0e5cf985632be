// Command poa-stress drives a running poa-server over the Arrow transport
// with synthetic read groups and reports throughput and latency.
package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/VanDung-dev/POA-Engine/poa-engine/api"
	"github.com/VanDung-dev/POA-Engine/poa-engine/binding"
	"github.com/VanDung-dev/POA-Engine/poa-engine/core"
)

// StressTestConfig holds configuration for the stress test.
type StressTestConfig struct {
	Address     string
	Concurrency int
	Duration    time.Duration
	AuthToken   string
	BatchSize   int
	Reads       int
	ReadLength  int
	Mode        string
	ReportFile  string
}

// StressTestResult holds the results of a stress test.
type StressTestResult struct {
	TotalRequests  int64
	SuccessfulReqs int64
	FailedReqs     int64
	FailedGroups   int64
	TotalDuration  time.Duration
	AvgLatency     time.Duration
	MinLatency     time.Duration
	MaxLatency     time.Duration
	RequestsPerSec float64
	GroupsPerSec   float64
}

type counters struct {
	total, success, failed, failedGroups int64
	latencySum                           int64
	minLatency                           int64
	maxLatency                           int64
}

func main() {
	var config StressTestConfig
	cmd := &cobra.Command{
		Use:          "poa-stress",
		Short:        "Stress test a poa-server Arrow endpoint",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(config)
		},
	}
	f := cmd.Flags()
	f.StringVar(&config.Address, "addr", "127.0.0.1:50052", "Arrow server address")
	f.IntVarP(&config.Concurrency, "concurrency", "c", 10, "number of concurrent connections")
	f.DurationVarP(&config.Duration, "duration", "d", 30*time.Second, "duration of test")
	f.StringVar(&config.AuthToken, "token", "", "authentication token")
	f.IntVar(&config.BatchSize, "batch", 16, "read groups per request")
	f.IntVar(&config.Reads, "reads", 8, "reads per group")
	f.IntVar(&config.ReadLength, "length", 200, "read length in residues")
	f.StringVar(&config.Mode, "mode", "global", "alignment mode")
	f.StringVarP(&config.ReportFile, "output", "o", "", "output report file (JSON)")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(config StressTestConfig) error {
	mode, err := binding.ParseMode(config.Mode)
	if err != nil {
		return err
	}
	align := binding.DefaultAlignmentConfig()
	align.Mode = mode

	fmt.Println("=== POA Arrow Server Stress Test ===")
	fmt.Printf("Target:      %s\n", config.Address)
	fmt.Printf("Concurrency: %d connections\n", config.Concurrency)
	fmt.Printf("Duration:    %v\n", config.Duration)
	fmt.Printf("Batch:       %d groups x %d reads x %d residues (%s)\n",
		config.BatchSize, config.Reads, config.ReadLength, mode)
	fmt.Println()

	result := runStressTest(config, align)
	printResults(config, result)

	if config.ReportFile != "" {
		return saveReport(config, result)
	}
	return nil
}

func runStressTest(config StressTestConfig, align binding.AlignmentConfig) StressTestResult {
	c := &counters{minLatency: 1<<63 - 1}
	stop := make(chan struct{})
	var wg sync.WaitGroup

	start := time.Now()
	for i := 0; i < config.Concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			runWorker(id, config, align, stop, c)
		}(i)
	}

	time.Sleep(config.Duration)
	close(stop)
	wg.Wait()

	duration := time.Since(start)
	success := atomic.LoadInt64(&c.success)
	total := atomic.LoadInt64(&c.total)

	result := StressTestResult{
		TotalRequests:  total,
		SuccessfulReqs: success,
		FailedReqs:     atomic.LoadInt64(&c.failed),
		FailedGroups:   atomic.LoadInt64(&c.failedGroups),
		TotalDuration:  duration,
		MaxLatency:     time.Duration(atomic.LoadInt64(&c.maxLatency)),
		RequestsPerSec: float64(total) / duration.Seconds(),
		GroupsPerSec:   float64(success*int64(config.BatchSize)) / duration.Seconds(),
	}
	if success > 0 {
		result.AvgLatency = time.Duration(atomic.LoadInt64(&c.latencySum) / success)
		result.MinLatency = time.Duration(atomic.LoadInt64(&c.minLatency))
	}
	return result
}

// runWorker keeps one connection open and reconnects after transport errors.
func runWorker(id int, config StressTestConfig, align binding.AlignmentConfig, stop chan struct{}, c *counters) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)))
	var client *api.ArrowClient
	defer func() {
		if client != nil {
			_ = client.Close()
		}
	}()

	for {
		select {
		case <-stop:
			return
		default:
		}

		if client == nil {
			cl, err := api.DialArrow(config.Address, config.AuthToken, 10*time.Second)
			if err != nil {
				atomic.AddInt64(&c.total, 1)
				atomic.AddInt64(&c.failed, 1)
				time.Sleep(10 * time.Millisecond)
				continue
			}
			client = cl
		}

		groups := syntheticBatch(rng, id, config)
		begin := time.Now()
		results, err := client.Compute(groups, &align)
		latency := int64(time.Since(begin))
		atomic.AddInt64(&c.total, 1)

		if err != nil {
			atomic.AddInt64(&c.failed, 1)
			_ = client.Close()
			client = nil
			time.Sleep(10 * time.Millisecond)
			continue
		}
		for _, r := range results {
			if r.Err != nil {
				atomic.AddInt64(&c.failedGroups, 1)
			}
		}
		atomic.AddInt64(&c.success, 1)
		atomic.AddInt64(&c.latencySum, latency)
		for {
			old := atomic.LoadInt64(&c.minLatency)
			if latency >= old || atomic.CompareAndSwapInt64(&c.minLatency, old, latency) {
				break
			}
		}
		for {
			old := atomic.LoadInt64(&c.maxLatency)
			if latency <= old || atomic.CompareAndSwapInt64(&c.maxLatency, old, latency) {
				break
			}
		}
	}
}

// syntheticBatch builds groups of noisy copies of one random template.
func syntheticBatch(rng *rand.Rand, worker int, config StressTestConfig) []core.ReadGroup {
	const alphabet = "ACGT"
	groups := make([]core.ReadGroup, config.BatchSize)
	for g := range groups {
		template := make([]byte, config.ReadLength)
		for i := range template {
			template[i] = alphabet[rng.Intn(len(alphabet))]
		}
		seqs := make([][]byte, config.Reads)
		for r := range seqs {
			read := make([]byte, 0, len(template))
			for _, b := range template {
				switch p := rng.Intn(100); {
				case p < 2:
					read = append(read, alphabet[rng.Intn(len(alphabet))])
				case p < 3:
					// deletion
				default:
					read = append(read, b)
				}
			}
			seqs[r] = read
		}
		groups[g] = core.ReadGroup{ID: fmt.Sprintf("w%d-g%d", worker, g), Sequences: seqs}
	}
	return groups
}

func percent(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func printResults(config StressTestConfig, result StressTestResult) {
	fmt.Println("=== Results ===")
	fmt.Printf("Duration:        %v\n", result.TotalDuration.Round(time.Millisecond))
	fmt.Printf("Total Requests:  %d\n", result.TotalRequests)
	fmt.Printf("Successful:      %d (%.2f%%)\n", result.SuccessfulReqs, percent(result.SuccessfulReqs, result.TotalRequests))
	fmt.Printf("Failed:          %d (%.2f%%)\n", result.FailedReqs, percent(result.FailedReqs, result.TotalRequests))
	fmt.Printf("Failed Groups:   %d\n", result.FailedGroups)
	fmt.Printf("Requests/sec:    %.2f\n", result.RequestsPerSec)
	fmt.Printf("Groups/sec:      %.2f\n", result.GroupsPerSec)
	fmt.Printf("Avg Latency:     %v\n", result.AvgLatency.Round(time.Microsecond))
	fmt.Printf("Min Latency:     %v\n", result.MinLatency.Round(time.Microsecond))
	fmt.Printf("Max Latency:     %v\n", result.MaxLatency.Round(time.Microsecond))
}

func saveReport(config StressTestConfig, result StressTestResult) error {
	report := map[string]interface{}{
		"config": map[string]interface{}{
			"address":     config.Address,
			"concurrency": config.Concurrency,
			"duration":    config.Duration.String(),
			"batch":       config.BatchSize,
			"reads":       config.Reads,
			"read_length": config.ReadLength,
			"mode":        config.Mode,
		},
		"results": map[string]interface{}{
			"total_requests":   result.TotalRequests,
			"successful":       result.SuccessfulReqs,
			"failed":           result.FailedReqs,
			"failed_groups":    result.FailedGroups,
			"requests_per_sec": result.RequestsPerSec,
			"groups_per_sec":   result.GroupsPerSec,
			"avg_latency_ms":   float64(result.AvgLatency.Microseconds()) / 1000,
			"min_latency_ms":   float64(result.MinLatency.Microseconds()) / 1000,
			"max_latency_ms":   float64(result.MaxLatency.Microseconds()) / 1000,
		},
		"timestamp": time.Now().Format(time.RFC3339),
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(config.ReportFile, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Printf("Report saved to: %s\n", config.ReportFile)
	return nil
}
