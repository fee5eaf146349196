// Command ballast-stress drives a configurable number of goroutines
// allocating and releasing through a shared Allocator, and reports the
// resulting allocation-latency distribution. Grounded on the teacher's
// tools/pools command: a flag-parsed options struct and a single
// report function, not a cobra/viper CLI tree.
package main

import "flag"
import "fmt"
import "math/rand"
import "os"
import "runtime"
import "sync"
import "time"

import "github.com/bnclabs/ballast/lib"
import "github.com/bnclabs/ballast/log"
import "github.com/bnclabs/ballast/malloc"
import "github.com/bnclabs/ballast/sysmem"

var options struct {
	goroutines int
	iterations int
	minsize    int
	maxsize    int
	arenamax   int
	logsettings string
}

func argParse() {
	flag.IntVar(&options.goroutines, "goroutines", runtime.NumCPU(),
		"number of concurrent mutators")
	flag.IntVar(&options.iterations, "iterations", 100000,
		"allocate/release cycles per goroutine")
	flag.IntVar(&options.minsize, "minsize", 16,
		"minimum request size in bytes")
	flag.IntVar(&options.maxsize, "maxsize", 256*1024,
		"maximum request size in bytes")
	flag.IntVar(&options.arenamax, "arenamax", 0,
		"cap on live arenas, 0 for the allocator's default")
	flag.StringVar(&options.logsettings, "loglevel", "info",
		"log.level setting: ignore|fatal|error|warn|info|verbose|debug|trace")
	flag.Parse()
}

func main() {
	argParse()
	log.SetLogger(nil, lib.Settings{"log.level": options.logsettings, "log.file": ""})

	cfg := malloc.DefaultConfig()
	cfg.ArenaMax = options.arenamax

	alloc, err := malloc.NewAllocator(cfg, sysmem.NewOS())
	if err != nil {
		log.Fatalf("NewAllocator: %v", err)
		os.Exit(1)
	}

	log.Infof("stressing with %d goroutines, %d iterations each, sizes %d..%d\n",
		options.goroutines, options.iterations, options.minsize, options.maxsize)

	stats := &latencyStats{
		hist: lib.NewhistorgramInt64(0, 10000, 100),
	}

	var wg sync.WaitGroup
	wg.Add(options.goroutines)
	for g := 0; g < options.goroutines; g++ {
		go worker(alloc, g, stats, &wg)
	}
	wg.Wait()

	fmt.Println(stats.hist.Logstring())

	if trimmed := alloc.Trim(0); trimmed {
		log.Infof("final Trim released top-chunk slack\n")
	}
}

// latencyStats guards a shared histogram and running average behind a
// mutex: HistogramInt64 and AverageInt64 are plain accumulators with no
// internal locking of their own.
type latencyStats struct {
	mu   sync.Mutex
	hist *lib.HistogramInt64
	avg  lib.AverageInt64
}

func (s *latencyStats) add(sample int64) {
	s.mu.Lock()
	s.hist.Add(sample)
	s.avg.Add(sample)
	s.mu.Unlock()
}

// worker repeatedly allocates a random-sized request, touches its
// first byte, and releases it, recording each allocate's latency.
func worker(alloc *malloc.Allocator, seed int, stats *latencyStats, wg *sync.WaitGroup) {
	defer wg.Done()

	m := malloc.NewMutator(alloc)
	defer m.Close()

	rnd := rand.New(rand.NewSource(int64(seed) + time.Now().UnixNano()))
	span := options.maxsize - options.minsize
	if span < 1 {
		span = 1
	}

	for i := 0; i < options.iterations; i++ {
		n := int64(options.minsize + rnd.Intn(span))

		start := time.Now()
		p, err := m.Allocate(n)
		elapsed := time.Since(start).Nanoseconds()
		if err != nil {
			log.Warnf("Allocate(%d): %v\n", n, err)
			continue
		}
		stats.add(elapsed)

		b := (*[1]byte)(p)
		b[0] = byte(i)

		m.Release(p)
	}
}
