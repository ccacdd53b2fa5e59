package merge

import (
	"context"
	"encoding/csv"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"armpose/internal/dataset"
)

// FindCSV lists *.csv files directly in dir, or anywhere below it when
// dir itself holds none
func FindCSV(dir string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("csv directory: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, err
	}
	if len(files) > 0 {
		return files, nil
	}

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".csv") {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func readTable(ctx context.Context, path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	raw, err := dataset.ReadCSV(ctx, f, filepath.Base(path))
	if err != nil {
		return nil, err
	}
	return FromRaw(raw), nil
}

// WriteCSV writes t to path, creating the parent directory
func WriteCSV(path string, t *Table) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write(t.Header); err != nil {
		return err
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return err
	}
	return w.Error()
}

// Files merges one muscle log with one angle log into outPath
func Files(ctx context.Context, muscleFile, angleFile, outPath string) (*Table, error) {
	muscle, err := readTable(ctx, muscleFile)
	if err != nil {
		return nil, err
	}
	angle, err := readTable(ctx, angleFile)
	if err != nil {
		return nil, err
	}
	merged, err := Tables(muscle, angle)
	if err != nil {
		return nil, err
	}
	if err := WriteCSV(outPath, merged); err != nil {
		return nil, fmt.Errorf("write %s: %w", outPath, err)
	}
	return merged, nil
}

// Result describes one merged pair
type Result struct {
	Pair   Pair   `json:"pair"`
	Output string `json:"output,omitempty"`
	Rows   int    `json:"rows"`
	Err    error  `json:"-"`
}

// Report summarises a directory merge
type Report struct {
	Results   []Result `json:"results"`
	Unmatched []string `json:"unmatched"`
}

// Merged counts the pairs written successfully
func (r *Report) Merged() int {
	n := 0
	for _, res := range r.Results {
		if res.Err == nil {
			n++
		}
	}
	return n
}

// Options controls Dirs
type Options struct {
	MuscleDir   string
	AngleDir    string
	OutDir      string
	Concurrency int
	Logger      *slog.Logger
}

// Dirs pairs every CSV in MuscleDir with one in AngleDir and writes the
// merged files to OutDir. A pair that fails is recorded in its Result and
// does not stop the others.
func Dirs(ctx context.Context, opts Options) (*Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "merge"))

	muscleFiles, err := FindCSV(opts.MuscleDir)
	if err != nil {
		return nil, err
	}
	if len(muscleFiles) == 0 {
		return nil, fmt.Errorf("no muscle csv files in %s", opts.MuscleDir)
	}
	angleFiles, err := FindCSV(opts.AngleDir)
	if err != nil {
		return nil, err
	}
	if len(angleFiles) == 0 {
		return nil, fmt.Errorf("no angle csv files in %s", opts.AngleDir)
	}
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	pairs, unmatched := MatchFiles(muscleFiles, angleFiles)
	logger.InfoContext(ctx, "files paired",
		slog.Int("muscle_files", len(muscleFiles)),
		slog.Int("angle_files", len(angleFiles)),
		slog.Int("pairs", len(pairs)),
		slog.Int("unmatched", len(unmatched)))

	report := &Report{Results: make([]Result, len(pairs)), Unmatched: unmatched}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Concurrency, 1))
	for i, p := range pairs {
		g.Go(func() error {
			out := filepath.Join(opts.OutDir, p.OutputName())
			res := Result{Pair: p, Output: out}

			merged, err := Files(gctx, p.Muscle, p.Angle, out)
			if err != nil {
				res.Err = err
				res.Output = ""
				logger.WarnContext(gctx, "pair merge failed",
					slog.String("muscle", filepath.Base(p.Muscle)),
					slog.String("angle", filepath.Base(p.Angle)),
					slog.String("error", err.Error()))
			} else {
				res.Rows = len(merged.Rows)
				logger.InfoContext(gctx, "pair merged",
					slog.String("output", out),
					slog.Int("rows", res.Rows))
			}

			report.Results[i] = res
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	for _, f := range unmatched {
		logger.WarnContext(ctx, "muscle file unmatched", slog.String("file", filepath.Base(f)))
	}
	return report, nil
}
