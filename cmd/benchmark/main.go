package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"lineidx/pkg/config"
	"lineidx/pkg/index"
)

func main() {
	nRecords := flag.Int("n", 200000, "Number of records in the generated data file")
	keyLength := flag.Int("k", 12, "Key length in bytes")
	nSearch := flag.Int("q", 20000, "Number of searches per strategy")
	dir := flag.String("dir", "", "Working directory (default: a fresh temp dir)")
	flag.Parse()

	workDir := *dir
	if workDir == "" {
		d, err := os.MkdirTemp("", "lineidx-bench-*")
		if err != nil {
			log.Fatalf("Temp dir failed: %v", err)
		}
		defer os.RemoveAll(d)
		workDir = d
	}

	dataPath := filepath.Join(workDir, "bench.txt")
	keys, size, err := generate(dataPath, *nRecords, *keyLength)
	if err != nil {
		log.Fatalf("Generate failed: %v", err)
	}

	fmt.Printf("lineidx Benchmark (N=%d, K=%d, data=%s)\n", *nRecords, *keyLength, humanize.Bytes(uint64(size)))
	fmt.Println("---------------------------------------------------")

	for _, strategy := range []string{config.StrategyMemory, config.StrategySpill, config.StrategySQLite} {
		indexPath := filepath.Join(workDir, "bench-"+strategy+".idx")

		res, err := index.Build(context.Background(), dataPath, indexPath, *keyLength, index.WithStrategy(strategy))
		if err != nil {
			log.Fatalf("Build (%s) failed: %v", strategy, err)
		}
		fmt.Printf(">> %-6s build: %v | %d entries | %s\n",
			strategy, res.Elapsed, res.Entries, humanize.Bytes(uint64(res.Bytes)))

		searchDuration, hits := runSearchBenchmark(dataPath, indexPath, *keyLength, keys, *nSearch)
		fmt.Printf("   %-6s search: %v | QPS: %.0f | hits: %d/%d\n",
			strategy, searchDuration, float64(*nSearch)/searchDuration.Seconds(), hits, *nSearch)
	}
	fmt.Println("---------------------------------------------------")
}

// generate writes n records with random fixed-length keys and returns the keys.
func generate(path string, n, keyLength int) ([]string, int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	rng := rand.New(rand.NewSource(1))
	keys := make([]string, n)
	var sb strings.Builder
	var size int64
	for i := range keys {
		sb.Reset()
		for j := 0; j < keyLength; j++ {
			sb.WriteByte(alphabet[rng.Intn(len(alphabet))])
		}
		keys[i] = sb.String()
		fmt.Fprintf(&sb, " payload-%d\n", i)
		m, err := f.WriteString(sb.String())
		if err != nil {
			return nil, 0, err
		}
		size += int64(m)
	}
	return keys, size, nil
}

func runSearchBenchmark(dataPath, indexPath string, keyLength int, keys []string, n int) (time.Duration, int) {
	r, err := index.Open(dataPath, indexPath, keyLength)
	if err != nil {
		log.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	rng := rand.New(rand.NewSource(2))
	hits := 0
	start := time.Now()
	for i := 0; i < n; i++ {
		_, found, err := r.Search([]byte(keys[rng.Intn(len(keys))]))
		if err != nil {
			log.Fatalf("Search failed: %v", err)
		}
		if found {
			hits++
		}
	}
	return time.Since(start), hits
}
