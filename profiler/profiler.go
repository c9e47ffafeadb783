// Package profiler - runtime sampling and operation timing for long
// detection runs.
package profiler

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"
)

// RuntimeProfiler tracks system resources and named operation timings,
// optionally emitting periodic status reports. All methods are safe for
// concurrent use.
type RuntimeProfiler struct {
	reportInterval time.Duration
	sampleInterval time.Duration
	maxSamples     int

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.RWMutex
	startTime time.Time
	running   bool

	memStats    runtime.MemStats
	cpuSamples  []cpuSample
	lastGCCount uint32

	metrics    map[string]*metricTracker
	operations map[string]*timeTracker
}

// cpuSample is one scheduler-level observation.
type cpuSample struct {
	timestamp  time.Time
	goroutines int
	cgoCalls   int64
}

// metricTracker accumulates a metric series. The average is computed
// over the rolling window; min and max are lifetime extremes.
type metricTracker struct {
	values []float64
	sum    float64
	min    float64
	max    float64
	count  int64
}

// timeTracker accumulates durations for one named operation.
type timeTracker struct {
	durations []time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// ProfilingOptions configures the runtime profiler.
type ProfilingOptions struct {
	// ReportInterval specifies how often to emit status reports (default: 2s).
	ReportInterval time.Duration
	// SampleInterval specifies how often to collect samples (default: 100ms).
	SampleInterval time.Duration
	// MaxSamples bounds the rolling windows (default: 600, one minute of
	// samples at the default interval).
	MaxSamples int
}

// MetricStats summarizes one recorded metric series.
type MetricStats struct {
	Name    string  `json:"name"`
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Samples int     `json:"samples"`
	Count   int64   `json:"count"`
}

// OperationStats summarizes timings for one named operation.
type OperationStats struct {
	Name    string        `json:"name"`
	Average time.Duration `json:"average"`
	Min     time.Duration `json:"min"`
	Max     time.Duration `json:"max"`
	Count   int64         `json:"count"`
}

// Snapshot is a point-in-time view of everything the profiler tracks.
// Metrics and Operations are sorted by name.
type Snapshot struct {
	Uptime          time.Duration    `json:"uptime"`
	Goroutines      int              `json:"goroutines"`
	CgoCalls        int64            `json:"cgoCalls"`
	AllocBytes      uint64           `json:"allocBytes"`
	TotalAllocBytes uint64           `json:"totalAllocBytes"`
	SysBytes        uint64           `json:"sysBytes"`
	HeapAllocBytes  uint64           `json:"heapAllocBytes"`
	HeapSysBytes    uint64           `json:"heapSysBytes"`
	HeapObjects     uint64           `json:"heapObjects"`
	GCCycles        uint32           `json:"gcCycles"`
	GCCPUFraction   float64          `json:"gcCpuFraction"`
	LastGC          time.Time        `json:"lastGc,omitempty"`
	Metrics         []MetricStats    `json:"metrics,omitempty"`
	Operations      []OperationStats `json:"operations,omitempty"`
}

// NewRuntimeProfiler creates a runtime profiler with the specified
// options. Zero option fields take the documented defaults.
func NewRuntimeProfiler(opts ProfilingOptions) *RuntimeProfiler {
	if opts.ReportInterval == 0 {
		opts.ReportInterval = 2 * time.Second
	}
	if opts.SampleInterval == 0 {
		opts.SampleInterval = 100 * time.Millisecond
	}
	if opts.MaxSamples == 0 {
		opts.MaxSamples = 600
	}

	return &RuntimeProfiler{
		reportInterval: opts.ReportInterval,
		sampleInterval: opts.SampleInterval,
		maxSamples:     opts.MaxSamples,
		startTime:      time.Now(),
		cpuSamples:     make([]cpuSample, 0, opts.MaxSamples),
		metrics:        make(map[string]*metricTracker),
		operations:     make(map[string]*timeTracker),
	}
}

// Start launches the sampling and reporting goroutines. Calling Start on
// a running profiler is a no-op; a stopped profiler may be started again.
func (rp *RuntimeProfiler) Start() {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if rp.running {
		return
	}
	rp.running = true
	rp.startTime = time.Now()
	rp.ctx, rp.cancel = context.WithCancel(context.Background())

	rp.wg.Add(2)
	go rp.sampleLoop(rp.ctx)
	go rp.reportLoop(rp.ctx)
}

// Stop halts the background goroutines and waits for them to exit.
func (rp *RuntimeProfiler) Stop() {
	rp.mu.Lock()
	if !rp.running {
		rp.mu.Unlock()
		return
	}
	rp.running = false
	cancel := rp.cancel
	rp.mu.Unlock()

	cancel()
	rp.wg.Wait()
}

// RecordMetric appends a value to the named metric series, creating the
// series on first use.
func (rp *RuntimeProfiler) RecordMetric(name string, value float64) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	tracker, ok := rp.metrics[name]
	if !ok {
		tracker = &metricTracker{
			values: make([]float64, 0, rp.maxSamples),
			min:    value,
			max:    value,
		}
		rp.metrics[name] = tracker
	}

	tracker.values = append(tracker.values, value)
	if len(tracker.values) > rp.maxSamples {
		tracker.sum -= tracker.values[0]
		tracker.values = tracker.values[1:]
	}
	tracker.sum += value
	tracker.count++
	if value < tracker.min {
		tracker.min = value
	}
	if value > tracker.max {
		tracker.max = value
	}
}

// StartOperation begins timing a named operation and returns the
// function that completes the measurement:
//
//	done := rp.StartOperation("inference")
//	defer done()
func (rp *RuntimeProfiler) StartOperation(name string) func() {
	start := time.Now()
	return func() {
		rp.recordOperationTime(name, time.Since(start))
	}
}

func (rp *RuntimeProfiler) recordOperationTime(name string, duration time.Duration) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	tracker, ok := rp.operations[name]
	if !ok {
		tracker = &timeTracker{
			minTime: duration,
			maxTime: duration,
		}
		rp.operations[name] = tracker
	}

	tracker.durations = append(tracker.durations, duration)
	if len(tracker.durations) > rp.maxSamples {
		tracker.totalTime -= tracker.durations[0]
		tracker.durations = tracker.durations[1:]
	}
	tracker.totalTime += duration
	tracker.count++
	if duration < tracker.minTime {
		tracker.minTime = duration
	}
	if duration > tracker.maxTime {
		tracker.maxTime = duration
	}
}

// Operation returns the stats for one named operation.
func (rp *RuntimeProfiler) Operation(name string) (OperationStats, bool) {
	rp.mu.RLock()
	defer rp.mu.RUnlock()

	tracker, ok := rp.operations[name]
	if !ok || len(tracker.durations) == 0 {
		return OperationStats{}, false
	}
	return tracker.stats(name), true
}

// Snapshot captures the current state of every tracked series along with
// fresh runtime statistics.
func (rp *RuntimeProfiler) Snapshot() Snapshot {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	runtime.ReadMemStats(&rp.memStats)

	snap := Snapshot{
		Uptime:          time.Since(rp.startTime),
		Goroutines:      runtime.NumGoroutine(),
		CgoCalls:        runtime.NumCgoCall(),
		AllocBytes:      rp.memStats.Alloc,
		TotalAllocBytes: rp.memStats.TotalAlloc,
		SysBytes:        rp.memStats.Sys,
		HeapAllocBytes:  rp.memStats.HeapAlloc,
		HeapSysBytes:    rp.memStats.HeapSys,
		HeapObjects:     rp.memStats.HeapObjects,
		GCCycles:        rp.memStats.NumGC,
		GCCPUFraction:   rp.memStats.GCCPUFraction,
	}
	if rp.memStats.LastGC > 0 {
		snap.LastGC = time.Unix(0, int64(rp.memStats.LastGC))
	}

	for name, tracker := range rp.metrics {
		if len(tracker.values) == 0 {
			continue
		}
		snap.Metrics = append(snap.Metrics, MetricStats{
			Name:    name,
			Average: tracker.sum / float64(len(tracker.values)),
			Min:     tracker.min,
			Max:     tracker.max,
			Samples: len(tracker.values),
			Count:   tracker.count,
		})
	}
	sort.Slice(snap.Metrics, func(i, j int) bool { return snap.Metrics[i].Name < snap.Metrics[j].Name })

	for name, tracker := range rp.operations {
		if len(tracker.durations) == 0 {
			continue
		}
		snap.Operations = append(snap.Operations, tracker.stats(name))
	}
	sort.Slice(snap.Operations, func(i, j int) bool { return snap.Operations[i].Name < snap.Operations[j].Name })

	return snap
}

func (t *timeTracker) stats(name string) OperationStats {
	return OperationStats{
		Name:    name,
		Average: t.totalTime / time.Duration(len(t.durations)),
		Min:     t.minTime,
		Max:     t.maxTime,
		Count:   t.count,
	}
}

// sampleLoop collects system metrics until ctx is canceled. Each tick
// takes and releases the lock inside sample.
func (rp *RuntimeProfiler) sampleLoop(ctx context.Context) {
	defer rp.wg.Done()

	ticker := time.NewTicker(rp.sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rp.sample()
		}
	}
}

func (rp *RuntimeProfiler) sample() {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	runtime.ReadMemStats(&rp.memStats)
	rp.cpuSamples = append(rp.cpuSamples, cpuSample{
		timestamp:  time.Now(),
		goroutines: runtime.NumGoroutine(),
		cgoCalls:   runtime.NumCgoCall(),
	})
	if len(rp.cpuSamples) > rp.maxSamples {
		rp.cpuSamples = rp.cpuSamples[1:]
	}
}

func (rp *RuntimeProfiler) reportLoop(ctx context.Context) {
	defer rp.wg.Done()

	ticker := time.NewTicker(rp.reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rp.emitStatusReport()
		}
	}
}

// emitStatusReport prints a status report to stdout.
func (rp *RuntimeProfiler) emitStatusReport() {
	snap := rp.Snapshot()

	rp.mu.Lock()
	newGC := snap.GCCycles - rp.lastGCCount
	rp.lastGCCount = snap.GCCycles
	rp.mu.Unlock()

	fmt.Printf("RUNTIME PROFILER STATUS REPORT - %s\n", time.Now().Format("15:04:05.000"))
	fmt.Printf("Uptime: %v\n", snap.Uptime.Truncate(time.Millisecond))

	fmt.Printf("\nSYSTEM METRICS:\n")
	fmt.Printf("  Goroutines: %d\n", snap.Goroutines)
	fmt.Printf("  CGO Calls: %d\n", snap.CgoCalls)

	fmt.Printf("\nMEMORY USAGE:\n")
	fmt.Printf("  Alloc: %s\n", formatBytes(snap.AllocBytes))
	fmt.Printf("  Total Alloc: %s\n", formatBytes(snap.TotalAllocBytes))
	fmt.Printf("  Sys: %s\n", formatBytes(snap.SysBytes))
	fmt.Printf("  Heap Alloc: %s\n", formatBytes(snap.HeapAllocBytes))
	fmt.Printf("  Heap Sys: %s\n", formatBytes(snap.HeapSysBytes))
	fmt.Printf("  Heap Objects: %d\n", snap.HeapObjects)

	if newGC > 0 {
		fmt.Printf("\nGARBAGE COLLECTION:\n")
		fmt.Printf("  GC Cycles: %d (new: %d)\n", snap.GCCycles, newGC)
		if !snap.LastGC.IsZero() {
			fmt.Printf("  Last GC: %v ago\n", time.Since(snap.LastGC).Truncate(time.Millisecond))
		}
		fmt.Printf("  GC CPU Fraction: %.4f%%\n", snap.GCCPUFraction*100)
	}

	if len(snap.Metrics) > 0 {
		fmt.Printf("\nCUSTOM METRICS:\n")
		for _, m := range snap.Metrics {
			fmt.Printf("  %s: avg=%.2f, min=%.2f, max=%.2f, samples=%d\n",
				m.Name, m.Average, m.Min, m.Max, m.Samples)
		}
	}

	if len(snap.Operations) > 0 {
		fmt.Printf("\nOPERATION TIMINGS:\n")
		for _, op := range snap.Operations {
			fmt.Printf("  %s: avg=%v, min=%v, max=%v, count=%d\n",
				op.Name, op.Average.Truncate(time.Microsecond),
				op.Min.Truncate(time.Microsecond),
				op.Max.Truncate(time.Microsecond),
				op.Count)
		}
	}
}

// formatBytes formats byte counts in human-readable form.
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
