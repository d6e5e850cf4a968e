package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/exzackley/fondogis/internal/adapter/fieldsource"
	"github.com/exzackley/fondogis/internal/config"
	"github.com/exzackley/fondogis/internal/domain"
	"github.com/exzackley/fondogis/internal/observability"
	"golang.org/x/sync/errgroup"
)

// CLI is the compare command line.
type CLI struct {
	Paths       []string `arg:"" name:"path" help:"Unit JSON files (one unit or an array of units) or directories of them." type:"path"`
	Config      string   `short:"c" help:"Reference YAML with model overrides, scenario pairs and tolerance tiers." type:"existingfile" env:"RECONCILE_CONFIG"`
	Boundary    string   `help:"GeoJSON boundary replacing every unit's region boundary." type:"existingfile"`
	Output      string   `short:"o" help:"Output format." enum:"table,json" default:"table"`
	Concurrency int      `short:"j" help:"Units reconciled in parallel." default:"4"`
	Resolution  float64  `help:"Default lattice step in degrees." default:"0.05"`

	FieldSourceURL     string        `help:"Remote field service base URL." env:"FIELD_SOURCE_URL"`
	FieldSourceToken   string        `help:"Remote field service bearer token." env:"FIELD_SOURCE_TOKEN"`
	FieldSourceTimeout time.Duration `help:"Remote field request timeout." default:"5s"`

	LogLevel  string `help:"Log level." enum:"debug,info,warn,error" default:"warn"`
	LogFormat string `help:"Log format." enum:"text,json" default:"text"`
}

// newLogger builds the same logger as the service's shared NewLogger (level
// names, "text" or JSON format, installed as the slog default) on w, which
// the shared constructor does not let callers choose.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}

// namedUnit is a unit with the file it came from, for error messages.
type namedUnit struct {
	origin string
	unit   domain.Unit
}

// Run loads the reference tables and units, reconciles every unit and
// writes the reports in input order.
func (c *CLI) Run(ctx context.Context, out io.Writer) error {
	// Reports go to out; logs stay on stderr.
	logger, err := newLogger(os.Stderr, c.LogLevel, c.LogFormat)
	if err != nil {
		return err
	}

	ref, err := config.LoadReference(c.Config)
	if err != nil {
		return err
	}
	tables, err := ref.Build()
	if err != nil {
		return err
	}

	units, err := loadUnits(c.Paths)
	if err != nil {
		return err
	}
	if c.Boundary != "" {
		boundary, err := os.ReadFile(c.Boundary)
		if err != nil {
			return fmt.Errorf("read boundary: %w", err)
		}
		for i := range units {
			units[i].unit.Region.Boundary = boundary
			units[i].unit.Region.Centroid = nil
		}
	}

	opts := []domain.EngineOption{domain.WithLogger(logger), domain.WithDefaultResolution(c.Resolution)}
	if c.FieldSourceURL != "" {
		metrics := observability.NewMetrics()
		client := fieldsource.NewClient(c.FieldSourceURL, c.FieldSourceToken, c.FieldSourceTimeout, metrics, logger)
		opts = append(opts, domain.WithFieldSource(fieldsource.NewCachedSource(client, 10000, metrics)))
	}
	engine := domain.NewEngine(tables.Model, tables.Pairs, tables.Tiers, opts...)

	reports, err := reconcileAll(ctx, engine, units, c.Concurrency)
	if err != nil {
		return err
	}

	if c.Output == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}
	return writeTable(out, reports)
}

// reconcileAll runs units with bounded parallelism; the first failure
// cancels the rest.
func reconcileAll(ctx context.Context, engine *domain.Engine, units []namedUnit, concurrency int) ([]domain.Report, error) {
	reports := make([]domain.Report, len(units))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))
	for i, u := range units {
		g.Go(func() error {
			r, err := engine.Reconcile(gctx, u.unit)
			if err != nil {
				return fmt.Errorf("%s: %w", u.origin, err)
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// loadUnits expands directories to their *.json files (sorted) and decodes
// each file as a single unit or an array of units.
func loadUnits(paths []string) ([]namedUnit, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(p, "*.json"))
		if err != nil {
			return nil, err
		}
		sort.Strings(matches)
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return nil, errors.New("no unit files found")
	}

	var units []namedUnit
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		decoded, err := decodeUnits(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		for i, u := range decoded {
			origin := f
			if len(decoded) > 1 {
				origin = fmt.Sprintf("%s[%d]", f, i)
			}
			units = append(units, namedUnit{origin: origin, unit: u})
		}
	}
	return units, nil
}

func decodeUnits(data []byte) ([]domain.Unit, error) {
	trimmed := strings.TrimSpace(string(data))
	if !strings.HasPrefix(trimmed, "[") {
		u, err := domain.DecodeUnit(data)
		if err != nil {
			return nil, err
		}
		return []domain.Unit{u}, nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode unit array: %w", err)
	}
	units := make([]domain.Unit, 0, len(raws))
	for i, raw := range raws {
		u, err := domain.DecodeUnit(raw)
		if err != nil {
			return nil, fmt.Errorf("unit %d: %w", i, err)
		}
		units = append(units, u)
	}
	return units, nil
}

func writeTable(w io.Writer, reports []domain.Report) error {
	for i, r := range reports {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s / %s  (%s vs %s, model %s)\n", r.Region, r.Indicator, r.A.Name, r.B.Name, r.ModelVersion)
		fmt.Fprintf(w, "%-22s %-10s %-10s %8s %8s %8s  %s\n", "SCENARIO", "INDICATOR", "PERIOD", "A", "B", "DIFF", "CLASS")
		for _, res := range r.Comparison.Results {
			fmt.Fprintln(w, res.String())
		}
		s := r.Comparison.Summary
		fmt.Fprintf(w, "verdict: %s  compared: %d  incomparable: %d  max|diff|: %s  mean|diff|: %s\n",
			s.Verdict, s.Compared, s.Incomparable, s.MaxAbsDiff, s.MeanAbsDiff)
		if cov := r.Comparison.Coverage; cov.OnlyA+cov.OnlyB > 0 || len(cov.UnmappedA)+len(cov.UnmappedB) > 0 {
			fmt.Fprintf(w, "coverage: only %s %d, only %s %d, unmapped %v / %v\n",
				r.A.Name, cov.OnlyA, r.B.Name, cov.OnlyB, cov.UnmappedA, cov.UnmappedB)
		}
		if n := len(r.A.Unresolved) + len(r.B.Unresolved); n > 0 {
			fmt.Fprintf(w, "unresolved labels: %s %v, %s %v\n", r.A.Name, r.A.Unresolved, r.B.Name, r.B.Unresolved)
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}
