package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quiver-dev/quiver/pkg/quiver"
)

type benchProfile struct {
	Name     string
	Ops      int
	Effects  int
	Keys     int
	Watchers int
	Chain    int
}

var benchProfiles = map[string]benchProfile{
	"fast": {
		Name:     "fast",
		Ops:      20_000,
		Effects:  50,
		Keys:     50,
		Watchers: 50,
		Chain:    16,
	},
	"standard": {
		Name:     "standard",
		Ops:      100_000,
		Effects:  100,
		Keys:     100,
		Watchers: 100,
		Chain:    32,
	},
	"stress": {
		Name:     "stress",
		Ops:      500_000,
		Effects:  500,
		Keys:     500,
		Watchers: 200,
		Chain:    64,
	},
}

func benchCmd() *cobra.Command {
	var (
		profileName string
		ops         int
		effects     int
		keys        int
		watchers    int
		chain       int
		jsonOut     string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run reactive core micro-benchmarks",
		Long: `Run four workloads against the reactive core and report latency
percentiles, throughput, runtime counters, and GC cost:

  ref-fanout      one cell with N subscribed effects; every write propagates
  map-keyed       K keys with one effect each; a write hits one subscriber
  computed-chain  a chain of computeds recomputed lazily per head write
  watch-flush     W deep watchers coalesced through the flush queue

A human summary goes to stderr; the JSON report goes to --json
('-' for stdout).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, ok := benchProfiles[strings.ToLower(strings.TrimSpace(profileName))]
			if !ok {
				return fmt.Errorf("unknown profile %q (fast|standard|stress)", profileName)
			}

			cfg := base
			if ops > 0 {
				cfg.Ops = ops
			}
			if effects > 0 {
				cfg.Effects = effects
			}
			if keys > 0 {
				cfg.Keys = keys
			}
			if watchers > 0 {
				cfg.Watchers = watchers
			}
			if chain > 0 {
				cfg.Chain = chain
			}

			return runBench(cfg, jsonOut)
		},
	}

	cmd.Flags().StringVar(&profileName, "profile", "standard", "workload profile: fast|standard|stress")
	cmd.Flags().IntVar(&ops, "ops", 0, "override writes per scenario")
	cmd.Flags().IntVar(&effects, "effects", 0, "override ref-fanout subscriber count")
	cmd.Flags().IntVar(&keys, "keys", 0, "override map-keyed key count")
	cmd.Flags().IntVar(&watchers, "watchers", 0, "override watch-flush watcher count")
	cmd.Flags().IntVar(&chain, "chain", 0, "override computed-chain length")
	cmd.Flags().StringVar(&jsonOut, "json", "-", "JSON report path ('-' for stdout)")

	return cmd
}

// =============================================================================
// Scenarios
// =============================================================================

// A scenario builds its workload on a fresh runtime and returns the
// per-iteration operation.
type scenario struct {
	name  string
	setup func(rt *quiver.Runtime, cfg benchProfile) func(i int)
}

var scenarios = []scenario{
	{"ref-fanout", setupRefFanout},
	{"map-keyed", setupMapKeyed},
	{"computed-chain", setupComputedChain},
	{"watch-flush", setupWatchFlush},
}

func setupRefFanout(rt *quiver.Runtime, cfg benchProfile) func(int) {
	cell := quiver.NewRef(rt, 0)
	for i := 0; i < cfg.Effects; i++ {
		rt.NewEffect(func() any { return cell.Value() })
	}
	return func(i int) { cell.Set(i) }
}

func setupMapKeyed(rt *quiver.Runtime, cfg benchProfile) func(int) {
	m := rt.ReactiveMap(make(map[string]any, cfg.Keys))
	names := make([]string, cfg.Keys)
	for i := range names {
		names[i] = "k" + strconv.Itoa(i)
		m.Set(names[i], 0)
		key := names[i]
		rt.NewEffect(func() any { return m.Get(key) })
	}
	return func(i int) { m.Set(names[i%len(names)], i) }
}

func setupComputedChain(rt *quiver.Runtime, cfg benchProfile) func(int) {
	head := quiver.NewRef(rt, 0)
	prev := head.Value
	var tail *quiver.Computed[int]
	for i := 0; i < cfg.Chain; i++ {
		read := prev
		tail = quiver.NewComputed(rt, func() int { return read() + 1 })
		prev = tail.Value
	}
	return func(i int) {
		head.Set(i)
		_ = tail.Value()
	}
}

func setupWatchFlush(rt *quiver.Runtime, cfg benchProfile) func(int) {
	m := rt.ReactiveMap(map[string]any{"n": 0})
	for i := 0; i < cfg.Watchers; i++ {
		rt.Watch(m, func(_, _ any, _ func(func())) {}, quiver.WithFlush(quiver.FlushPost))
	}
	return func(i int) {
		m.Set("n", i)
		rt.Flush()
	}
}

func runScenario(s scenario, cfg benchProfile) scenarioReport {
	rt := quiver.New()
	op := s.setup(rt, cfg)
	before := rt.Stats()

	samples := make([]time.Duration, 0, cfg.Ops)
	start := time.Now()
	for i := 0; i < cfg.Ops; i++ {
		t0 := time.Now()
		op(i)
		samples = append(samples, time.Since(t0))
	}
	elapsed := time.Since(start)
	after := rt.Stats()

	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	return scenarioReport{
		Name:      s.name,
		Ops:       cfg.Ops,
		ElapsedMS: ms(elapsed),
		OpsPerSec: float64(cfg.Ops) / math.Max(0.001, elapsed.Seconds()),
		Latency: latencyInfo{
			Min: ms(samples[0]),
			P50: ms(percentile(samples, 0.50)),
			P95: ms(percentile(samples, 0.95)),
			P99: ms(percentile(samples, 0.99)),
			Max: ms(samples[len(samples)-1]),
		},
		EffectRuns: after.EffectRuns - before.EffectRuns,
		Triggers:   after.Triggers - before.Triggers,
		Recomputes: after.ComputedRecomputes - before.ComputedRecomputes,
		WatchJobs:  after.WatchJobs - before.WatchJobs,
	}
}

// =============================================================================
// Report
// =============================================================================

type benchReport struct {
	Version   string           `json:"version"`
	Run       runInfo          `json:"run"`
	Workload  workloadInfo     `json:"workload"`
	Scenarios []scenarioReport `json:"scenarios"`
	GC        gcInfo           `json:"gc"`
}

type runInfo struct {
	Timestamp string `json:"timestamp"`
	Go        string `json:"go"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	CPUCount  int    `json:"cpu_count"`
}

type workloadInfo struct {
	Profile  string `json:"profile"`
	Ops      int    `json:"ops"`
	Effects  int    `json:"effects"`
	Keys     int    `json:"keys"`
	Watchers int    `json:"watchers"`
	Chain    int    `json:"chain"`
}

type latencyInfo struct {
	Min float64 `json:"min"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
	Max float64 `json:"max"`
}

type scenarioReport struct {
	Name       string      `json:"name"`
	Ops        int         `json:"ops"`
	ElapsedMS  float64     `json:"elapsed_ms"`
	OpsPerSec  float64     `json:"ops_per_sec"`
	Latency    latencyInfo `json:"latency_ms"`
	EffectRuns uint64      `json:"effect_runs"`
	Triggers   uint64      `json:"triggers"`
	Recomputes uint64      `json:"recomputes"`
	WatchJobs  uint64      `json:"watch_jobs"`
}

type gcInfo struct {
	AllocMB      float64 `json:"alloc_mb"`
	NumGC        uint32  `json:"num_gc"`
	PauseTotalMS float64 `json:"pause_total_ms"`
	PauseAvgMS   float64 `json:"pause_avg_ms"`
}

func runBench(cfg benchProfile, jsonOut string) error {
	var before runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)

	reports := make([]scenarioReport, 0, len(scenarios))
	for _, s := range scenarios {
		reports = append(reports, runScenario(s, cfg))
	}

	var after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&after)

	report := benchReport{
		Version: version,
		Run: runInfo{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Go:        runtime.Version(),
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
			CPUCount:  runtime.NumCPU(),
		},
		Workload: workloadInfo{
			Profile:  cfg.Name,
			Ops:      cfg.Ops,
			Effects:  cfg.Effects,
			Keys:     cfg.Keys,
			Watchers: cfg.Watchers,
			Chain:    cfg.Chain,
		},
		Scenarios: reports,
		GC: gcInfo{
			AllocMB:      float64(after.TotalAlloc-before.TotalAlloc) / (1024 * 1024),
			NumGC:        after.NumGC - before.NumGC,
			PauseTotalMS: float64(after.PauseTotalNs-before.PauseTotalNs) / 1e6,
			PauseAvgMS:   ms(avgPause(after, before)),
		},
	}

	writeSummary(os.Stderr, report)
	return writeJSON(jsonOut, report)
}

func writeSummary(w io.Writer, report benchReport) {
	fmt.Fprintf(w, "\nquiver bench\nProfile: %s\nOps per scenario: %d\n\n",
		report.Workload.Profile, report.Workload.Ops)
	for _, s := range report.Scenarios {
		fmt.Fprintf(w, "  %-16s %12.0f ops/s   p50 %8.4fms  p95 %8.4fms  p99 %8.4fms\n",
			s.Name, s.OpsPerSec, s.Latency.P50, s.Latency.P95, s.Latency.P99)
	}
	fmt.Fprintf(w, "\n  gc: %.1f MB allocated, %d collections, %.2f ms total pause\n\n",
		report.GC.AllocMB, report.GC.NumGC, report.GC.PauseTotalMS)
}

func writeJSON(path string, report benchReport) error {
	if path == "" {
		return nil
	}

	var w io.Writer = os.Stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(math.Ceil(float64(len(sorted))*p)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func avgPause(after, before runtime.MemStats) time.Duration {
	gcCount := after.NumGC - before.NumGC
	if gcCount == 0 {
		return 0
	}
	return time.Duration((after.PauseTotalNs - before.PauseTotalNs) / uint64(gcCount))
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
