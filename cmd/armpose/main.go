// Command armpose runs calibration, training and prediction on local CSV
// files and writes the decoded angles to a CSV or XLSX file.
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
	"strings"
	"syscall"

	"armpose/internal/config"
	"armpose/internal/exporter"
	"armpose/internal/infrastructure"
	"armpose/internal/kinematics"
	"armpose/internal/operations"
	"armpose/internal/regressor"
	"armpose/internal/services"
	"armpose/internal/session"
	"armpose/internal/validation"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "armpose:", err)
		}
		os.Exit(1)
	}
}

type options struct {
	configFile  string
	calibration string
	training    []string
	test        string
	out         string
	epochs      int
	activation  string
	verbose     bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("armpose", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &options{}
	var training string
	fs.StringVar(&opts.configFile, "config", "", "YAML config file (env vars still override)")
	fs.StringVar(&opts.calibration, "calibration", "", "calibration CSV (required)")
	fs.StringVar(&training, "training", "", "comma-separated training CSVs (required)")
	fs.StringVar(&opts.test, "test", "", "test CSV (required)")
	fs.StringVar(&opts.out, "out", "predictions.csv", "output file, .csv or .xlsx")
	fs.IntVar(&opts.epochs, "epochs", 0, "override training epochs")
	fs.StringVar(&opts.activation, "activation", "", "override activation: relu, sigmoid, tanh or linear")
	fs.BoolVar(&opts.verbose, "v", false, "debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	for _, f := range strings.Split(training, ",") {
		if f = strings.TrimSpace(f); f != "" {
			opts.training = append(opts.training, f)
		}
	}

	var missing []string
	if opts.calibration == "" {
		missing = append(missing, "-calibration")
	}
	if len(opts.training) == 0 {
		missing = append(missing, "-training")
	}
	if opts.test == "" {
		missing = append(missing, "-test")
	}
	if len(missing) > 0 {
		fs.Usage()
		return nil, fmt.Errorf("missing required flags: %s", strings.Join(missing, ", "))
	}
	if opts.activation != "" && !regressor.IsActivation(opts.activation) {
		return nil, fmt.Errorf("unknown activation %q", opts.activation)
	}
	if _, err := exporter.FormatFromPath(opts.out); err != nil {
		return nil, err
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := config.LoadFrom(opts.configFile)
	if err != nil {
		return err
	}
	if opts.verbose {
		cfg.Logging.Level = "debug"
	}
	logger := infrastructure.NewLogger(stderr, cfg.Logging)

	fv := validation.NewFileValidator(logger)
	inputs := append([]string{opts.calibration, opts.test}, opts.training...)
	if err := fv.ValidateCSVFiles(inputs...); err != nil {
		return err
	}
	if err := fv.ValidateOutputFile(opts.out); err != nil {
		return err
	}

	opCfg := operations.ConfigFromApp(cfg)
	manager := operations.NewManager(nil, nil, opCfg, nil, logger)
	defer manager.Close()
	if err := operations.RegisterPipeline(manager, opCfg); err != nil {
		return err
	}

	svc := services.NewPipelineService(services.PipelineOptions{
		Store:    session.NewStore(nil),
		Manager:  manager,
		Exporter: exporter.NewExporter(nil, logger),
		Geometry: kinematics.FromConfig(cfg.Kinematics),
		Logger:   logger,
		Base:     ctx,
	})

	in := services.RunInputs{}
	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()
	open := func(path string) (services.Upload, error) {
		f, err := os.Open(path)
		if err != nil {
			return services.Upload{}, err
		}
		closers = append(closers, f)
		return services.Upload{Name: filepath.Base(path), Body: f}, nil
	}

	if in.Calibration, err = open(opts.calibration); err != nil {
		return err
	}
	for _, path := range opts.training {
		u, err := open(path)
		if err != nil {
			return err
		}
		in.Training = append(in.Training, u)
	}
	if in.Test, err = open(opts.test); err != nil {
		return err
	}
	if opts.epochs > 0 || opts.activation != "" {
		in.Options = &regressor.Options{Epochs: opts.epochs, Activation: opts.activation}
	}

	sum, resp, err := svc.Run(ctx, in)
	if err != nil {
		return err
	}

	path, err := svc.SaveExport(sum.ID, opts.out)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "calibration rows rejected: %d\n", sum.CalibrationRejected)
	fmt.Fprintf(stdout, "training rows: %d\n", sum.TrainingRows)
	fmt.Fprintf(stdout, "frames predicted: %d\n", sum.Predictions)
	fmt.Fprintf(stdout, "pipeline %s in %s\n", resp.Status, resp.Duration)
	fmt.Fprintf(stdout, "wrote %s\n", path)
	return nil
}
