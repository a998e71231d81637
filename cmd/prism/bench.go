package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/chazu/prism/bench"
	"github.com/chazu/prism/compress"
)

// cmdBench measures every method on a program, optionally recording the
// results in the DuckDB results database.
func cmdBench(e *env, args []string) error {
	fs := e.flagSet("bench", "<program>")
	levels := fs.String("levels", "", "Comma separated levels, e.g. 0,6,9; default the configured level")
	methods := fs.String("methods", "", "Comma separated methods; default all")
	rounds := fs.Int("rounds", 3, "Timing rounds per measurement")
	record := fs.Bool("record", false, "Record results in the bench database")
	summary := fs.Bool("summary", false, "Print the recorded summary for this program afterwards")
	if err := parse(fs, args, 1); err != nil {
		return err
	}

	opts := bench.Options{Rounds: *rounds, Engine: e.cfg.EngineOptions()}
	if *levels != "" {
		for _, f := range strings.Split(*levels, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(f))
			if err != nil || n < compress.MinLevel || n > compress.MaxLevel {
				return fmt.Errorf("bad level %q", f)
			}
			opts.Levels = append(opts.Levels, n)
		}
	}
	if *methods != "" {
		for _, f := range strings.Split(*methods, ",") {
			m, err := compress.ParseMethod(strings.TrimSpace(f))
			if err != nil {
				return err
			}
			opts.Methods = append(opts.Methods, m)
		}
	}

	ref := fs.Arg(0)
	p, err := e.loadProgram(ref)
	if err != nil {
		return err
	}
	name := strings.TrimPrefix(ref, libraryPrefix)
	if !strings.HasPrefix(ref, libraryPrefix) {
		name = filepath.Base(ref)
	}

	results, err := bench.Run(e.ctx, name, p, opts)
	if err != nil {
		return err
	}
	rows := [][]string{{"METHOD", "LEVEL", "STORED", "SIZE", "RATIO", "ENCODE", "DECODE"}}
	for _, r := range results {
		rows = append(rows, []string{
			r.Requested.String(),
			strconv.Itoa(r.Level),
			r.Stored.String(),
			humanize.Bytes(uint64(r.Container)),
			fmt.Sprintf("%.3f", r.Ratio),
			r.Encode.String(),
			r.Decode.String(),
		})
	}
	table(e.stdout, rows)
	if best, ok := bench.Best(results); ok {
		fmt.Fprintf(e.stdout, "best: %s at level %d, %s\n", best.Stored, best.Level, humanize.Bytes(uint64(best.Container)))
	}

	if !*record && !*summary {
		return nil
	}
	db, err := bench.OpenDB(e.cfg.BenchDB())
	if err != nil {
		return err
	}
	defer db.Close()
	if *record {
		if err := db.Record(e.ctx, results); err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "recorded %d results in %s\n", len(results), e.cfg.BenchDB())
	}
	if *summary {
		sums, err := db.Summarize(e.ctx, name)
		if err != nil {
			return err
		}
		rows := [][]string{{"METHOD", "RUNS", "MEAN", "BEST", "FALLBACKS"}}
		for _, s := range sums {
			rows = append(rows, []string{
				s.Method,
				strconv.Itoa(s.Runs),
				fmt.Sprintf("%.3f", s.MeanRatio),
				fmt.Sprintf("%.3f", s.BestRatio),
				strconv.Itoa(s.Fallbacks),
			})
		}
		table(e.stdout, rows)
	}
	return nil
}
