// Command kontext runs batch spatial co-localization analyses over a
// per-cell table: the cross-type L function for every requested pair and,
// when a parent population is given, the context-corrected value.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/SydneyBioX/kontext/internal/batch"
	"github.com/SydneyBioX/kontext/internal/cells"
	"github.com/SydneyBioX/kontext/internal/config"
	"github.com/SydneyBioX/kontext/internal/ingest"
	"github.com/SydneyBioX/kontext/internal/store"
	"github.com/SydneyBioX/kontext/internal/units"
)

var (
	cellsPath     = flag.String("cells", "", "CSV per-cell table (image_id,x,y,cell_type,markers...)")
	configPath    = flag.String("config", "", "JSON tuning config (optional)")
	hierarchyPath = flag.String("hierarchy", "", "JSON cell-type hierarchy (optional)")
	fromTypes     = flag.String("from", "", "comma-separated from-types (default: all types)")
	toTypes       = flag.String("to", "", "comma-separated to-types (default: all types)")
	parent        = flag.String("parent", "", "parent population for context correction (optional)")
	dbPath        = flag.String("db", "", "sqlite result database (optional)")
)

func main() {
	flag.Parse()

	if args := flag.Args(); len(args) > 0 && args[0] == "migrate" {
		runMigrate(args[1:])
		return
	}

	if *cellsPath == "" {
		fmt.Fprintln(os.Stderr, "usage: kontext -cells cells.csv [-config tuning.json] [-hierarchy tree.json] [-from a,b] [-to c,d] [-parent pop] [-db results.db]")
		fmt.Fprintln(os.Stderr, "       kontext -db results.db migrate <up|down|version>")
		os.Exit(2)
	}

	cfg := &config.TuningConfig{}
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("loading config: %v", err)
		}
	}

	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

func run(cfg *config.TuningConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	f, err := os.Open(*cellsPath)
	if err != nil {
		return fmt.Errorf("opening cell table: %w", err)
	}
	defer f.Close()

	// Pixel tables are converted to micrometers at ingest so radii and
	// sigma are always in the same unit as the coordinates.
	scale := 1.0
	if cfg.GetUnit() == units.Pixels {
		scale = cfg.GetMicronsPerPixel()
	}
	cs, err := ingest.ReadCells(f, scale)
	if err != nil {
		return err
	}
	patterns, skipped, err := ingest.BuildPatterns(cs)
	if err != nil {
		return err
	}
	for _, id := range skipped {
		log.Printf("image %s skipped: degenerate extent", id)
	}

	tree, err := loadHierarchy()
	if err != nil {
		return err
	}
	if *parent != "" && tree == nil {
		return fmt.Errorf("-parent requires -hierarchy")
	}

	runner := batch.NewRunner(patterns, tree)
	from, to := pairLists(patterns)
	tasks := runner.Pairs(from, to, *parent)

	params := batch.Params{
		Workers: cfg.GetWorkers(),
		Options: cfg.Options(),
		Mode:    cfg.GetContextMode(),
		Curves:  cfg.GetCurves(),
	}

	started := time.Now()
	table, err := runner.Run(ctx, tasks, params)
	if err != nil {
		return err
	}

	if *dbPath != "" {
		if err := persist(cfg, table, len(tasks), started); err != nil {
			return err
		}
	}
	return writeTable(os.Stdout, table)
}

func loadHierarchy() (*cells.Tree, error) {
	if *hierarchyPath == "" {
		return nil, nil
	}
	h, err := os.Open(*hierarchyPath)
	if err != nil {
		return nil, fmt.Errorf("opening hierarchy: %w", err)
	}
	defer h.Close()
	return ingest.ReadHierarchy(h)
}

// pairLists resolves the -from/-to flags, defaulting to every type seen
// across the images.
func pairLists(patterns []*cells.Pattern) (from, to []string) {
	var all []string
	seen := map[string]bool{}
	for _, p := range patterns {
		for _, typ := range p.Types() {
			if !seen[typ] {
				seen[typ] = true
				all = append(all, typ)
			}
		}
	}
	from = splitList(*fromTypes, all)
	to = splitList(*toTypes, all)
	return from, to
}

func splitList(flagValue string, fallback []string) []string {
	if flagValue == "" {
		return fallback
	}
	parts := strings.Split(flagValue, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func persist(cfg *config.TuningConfig, table *batch.Table, taskCount int, started time.Time) error {
	s, err := store.Open(*dbPath)
	if err != nil {
		return fmt.Errorf("opening result store: %w", err)
	}
	defer s.Close()

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	runID := store.NewRunID()
	if err := s.InsertRun(store.RunRecord{
		RunID:      runID,
		StartedAt:  started,
		ConfigJSON: string(cfgJSON),
		TaskCount:  taskCount,
	}); err != nil {
		return err
	}
	if err := s.SaveTable(runID, table); err != nil {
		return err
	}
	defined := 0
	for _, r := range table.Rows {
		if !r.Missing {
			defined++
		}
	}
	if err := s.CompleteRun(runID, time.Now(), defined); err != nil {
		return err
	}
	log.Printf("run %s saved: %d results, %d exclusions", runID, defined, len(table.Excluded()))
	return nil
}

// writeTable prints the result table as CSV.
func writeTable(w *os.File, table *batch.Table) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write([]string{"image_id", "from", "to", "parent", "l", "context", "missing", "reason"}); err != nil {
		return err
	}
	for _, r := range table.Rows {
		l, ctxVal := "", ""
		if !r.Missing {
			l = strconv.FormatFloat(r.L, 'g', -1, 64)
			if r.Parent != "" && !r.ContextMissing {
				ctxVal = strconv.FormatFloat(r.Context, 'g', -1, 64)
			}
		}
		rec := []string{r.ImageID, r.From, r.To, r.Parent, l, ctxVal, strconv.FormatBool(r.Missing), r.Reason}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

func runMigrate(args []string) {
	if *dbPath == "" || len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: kontext -db results.db migrate <up|down|version>")
		os.Exit(2)
	}
	s, err := store.OpenNoMigrate(*dbPath)
	if err != nil {
		log.Fatalf("opening result store: %v", err)
	}
	defer s.Close()

	switch args[0] {
	case "up":
		if err := s.MigrateUp(); err != nil {
			log.Fatal(err)
		}
	case "down":
		if err := s.MigrateDown(); err != nil {
			log.Fatal(err)
		}
	case "version":
		version, dirty, err := s.MigrateVersion()
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("version %d (dirty=%v)\n", version, dirty)
	default:
		log.Fatalf("unknown migrate command %q", args[0])
	}
}
