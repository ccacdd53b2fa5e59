// Command csvmerge pairs muscle-sensor CSVs with angle CSVs recorded in the
// same session, aligns them on time and writes one merged CSV per pair.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"armpose/internal/config"
	"armpose/internal/infrastructure"
	"armpose/internal/merge"
	"armpose/internal/validation"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "csvmerge:", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("csvmerge", flag.ContinueOnError)
	fs.SetOutput(stderr)
	muscleDir := fs.String("muscle", "", "directory of muscle-sensor CSVs (required)")
	angleDir := fs.String("angle", "", "directory of angle CSVs (required)")
	outDir := fs.String("out", "", "output directory (defaults to the configured data dir)")
	concurrency := fs.Int("concurrency", runtime.NumCPU(), "pairs merged in parallel")
	configFile := fs.String("config", "", "YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *muscleDir == "" || *angleDir == "" {
		fs.Usage()
		return errors.New("-muscle and -angle are required")
	}

	cfg, err := config.LoadFrom(*configFile)
	if err != nil {
		return err
	}
	logger := infrastructure.NewLogger(stderr, cfg.Logging)

	if *outDir == "" {
		paths, err := cfg.ResolvePaths("")
		if err != nil {
			return err
		}
		*outDir = filepath.Join(paths.DataDir, "merged")
	}

	fv := validation.NewFileValidator(logger)
	for _, dir := range []string{*muscleDir, *angleDir} {
		if _, err := fv.ValidateInputDirectory(dir); err != nil {
			return err
		}
	}
	if err := fv.ValidateOutputDirectory(*outDir); err != nil {
		return err
	}

	report, err := merge.Dirs(ctx, merge.Options{
		MuscleDir:   *muscleDir,
		AngleDir:    *angleDir,
		OutDir:      *outDir,
		Concurrency: *concurrency,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	for _, res := range report.Results {
		if res.Err != nil {
			fmt.Fprintf(stdout, "FAIL %s + %s: %v\n", filepath.Base(res.Pair.Muscle), filepath.Base(res.Pair.Angle), res.Err)
			continue
		}
		fmt.Fprintf(stdout, "ok   %s (%d rows)\n", res.Output, res.Rows)
	}
	for _, u := range report.Unmatched {
		fmt.Fprintf(stdout, "skip %s: no angle file\n", filepath.Base(u))
	}
	fmt.Fprintf(stdout, "%d of %d pairs merged\n", report.Merged(), len(report.Results))

	if report.Merged() < len(report.Results) {
		return fmt.Errorf("%d pairs failed", len(report.Results)-report.Merged())
	}
	return nil
}
