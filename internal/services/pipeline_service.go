package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"armpose/internal/dataset"
	"armpose/internal/exporter"
	"armpose/internal/infrastructure"
	"armpose/internal/kinematics"
	"armpose/internal/operations"
	"armpose/internal/playback"
	"armpose/internal/prediction"
	"armpose/internal/regressor"
	"armpose/internal/session"
)

// Upload is one CSV file handed to the pipeline
type Upload struct {
	Name string
	Body io.Reader
}

// PlaybackAction is a cursor command
type PlaybackAction string

const (
	ActionPlay  PlaybackAction = "play"
	ActionPause PlaybackAction = "pause"
	ActionReset PlaybackAction = "reset"
)

// PipelineOptions wires a PipelineService
type PipelineOptions struct {
	Store    *session.Store
	Manager  *operations.Manager
	Exporter *exporter.Exporter
	Geometry kinematics.Geometry
	Tick     time.Duration
	Sinks    []playback.Sink
	Metrics  *infrastructure.BusinessMetrics
	Logger   *slog.Logger
	// Base bounds every playback goroutine started by the service
	Base context.Context
}

// PipelineService runs the calibrate, prepare, train and predict stages
// against stored sessions and serves their results
type PipelineService struct {
	store    *session.Store
	manager  *operations.Manager
	exporter *exporter.Exporter
	geometry kinematics.Geometry
	tick     time.Duration
	sinks    []playback.Sink
	metrics  *infrastructure.BusinessMetrics
	logger   *slog.Logger
	base     context.Context
}

// NewPipelineService creates the service. Store and Manager are required.
func NewPipelineService(opts PipelineOptions) *PipelineService {
	if opts.Logger == nil {
		opts.Logger = infrastructure.GetLogger()
	}
	if opts.Base == nil {
		opts.Base = context.Background()
	}
	if opts.Exporter == nil {
		opts.Exporter = exporter.NewExporter(nil, opts.Logger)
	}
	return &PipelineService{
		store:    opts.Store,
		manager:  opts.Manager,
		exporter: opts.Exporter,
		geometry: opts.Geometry,
		tick:     opts.Tick,
		sinks:    opts.Sinks,
		metrics:  opts.Metrics,
		logger:   opts.Logger.With(slog.String("service", "pipeline")),
		base:     opts.Base,
	}
}

// CalibrationResult is returned after a calibration upload
type CalibrationResult struct {
	Session  session.Summary           `json:"session"`
	Rows     int                       `json:"rows"`
	Rejected []dataset.RowDiagnostic   `json:"rejected"`
	Steps    []operations.StepSnapshot `json:"steps"`
}

// TrainingResult is returned after a training upload
type TrainingResult struct {
	Session  session.Summary `json:"session"`
	Files    []FileResult    `json:"files"`
	Rows     int             `json:"rows"`
	Rejected int             `json:"rejected"`
}

// FileResult describes one validated upload
type FileResult struct {
	Name     string                  `json:"name"`
	Total    int                     `json:"total"`
	Accepted int                     `json:"accepted"`
	Rejected []dataset.RowDiagnostic `json:"rejected,omitempty"`
}

// TestResult is returned after a test upload
type TestResult struct {
	Session  session.Summary           `json:"session"`
	Frames   int                       `json:"frames"`
	Rejected []dataset.RowDiagnostic   `json:"rejected,omitempty"`
	Steps    []operations.StepSnapshot `json:"steps"`
}

// CreateSession registers an empty session
func (s *PipelineService) CreateSession(ctx context.Context) session.Summary {
	sess := s.store.Create(ctx)
	s.logger.InfoContext(ctx, "session created", slog.String("session_id", sess.ID))
	return sess.Summary()
}

// GetSession returns the summary of session id
func (s *PipelineService) GetSession(id string) (session.Summary, error) {
	sess, err := s.store.Get(id)
	if err != nil {
		return session.Summary{}, err
	}
	return sess.Summary(), nil
}

// ListSessions returns every live session
func (s *PipelineService) ListSessions() []session.Summary {
	return s.store.List()
}

// DeleteSession stops playback and forgets the session
func (s *PipelineService) DeleteSession(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.manager.ForgetSession(id)
	s.logger.InfoContext(ctx, "session deleted", slog.String("session_id", id))
	return nil
}

// ResetSession clears calibration, training and results but keeps the ID
func (s *PipelineService) ResetSession(ctx context.Context, id string) (session.Summary, error) {
	sess, err := s.store.Get(id)
	if err != nil {
		return session.Summary{}, err
	}
	sess.Reset()
	s.logger.InfoContext(ctx, "session reset", slog.String("session_id", id))
	return sess.Summary(), nil
}

// load validates one upload, logging and counting its rejected rows
func (s *PipelineService) load(ctx context.Context, u Upload, role dataset.Role) (*dataset.ValidationResult, error) {
	result, err := dataset.Load(ctx, u.Body, u.Name, role)
	if result != nil {
		dataset.LogDiagnostics(ctx, s.logger, result)
		infrastructure.RecordValidation(ctx, s.metrics, string(role), result.Accepted(), len(result.Rejected))
	}
	if err != nil {
		return result, err
	}
	s.logger.InfoContext(ctx, "file validated",
		slog.String("file", u.Name),
		slog.String("role", string(role)),
		slog.Int("accepted", result.Accepted()),
		slog.Int("rejected", len(result.Rejected)))
	return result, nil
}

// loadTraining loads one of several training files. A file without usable
// rows contributes nothing; only an empty combined set fails.
func (s *PipelineService) loadTraining(ctx context.Context, u Upload) (*dataset.ValidationResult, error) {
	result, err := s.load(ctx, u, dataset.RoleTraining)
	var empty *dataset.EmptyResultError
	if errors.As(err, &empty) && result != nil {
		s.logger.WarnContext(ctx, "training file has no usable rows",
			slog.String("file", u.Name),
			slog.Int("rows", empty.Total),
			slog.Int("rejected", empty.Rejected))
		return result, nil
	}
	return result, err
}

func (s *PipelineService) execute(ctx context.Context, sess *session.Session, step string, params map[string]interface{}) (*operations.OperationResponse, error) {
	if params == nil {
		params = make(map[string]interface{})
	}
	params[operations.ParamStep] = step
	ctx = infrastructure.WithSessionID(ctx, sess.ID)
	return s.manager.Execute(ctx, sess, operations.OperationRequest{Parameters: params})
}

func steps(resp *operations.OperationResponse) []operations.StepSnapshot {
	if resp == nil {
		return nil
	}
	return resp.Steps
}

// Calibrate validates the calibration file and estimates the session's
// channel statistics
func (s *PipelineService) Calibrate(ctx context.Context, id string, u Upload) (*CalibrationResult, error) {
	sess, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	result, err := s.load(ctx, u, dataset.RoleCalibration)
	if err != nil {
		return nil, err
	}

	resp, err := s.execute(ctx, sess, operations.StageIDCalibrate, map[string]interface{}{
		operations.ParamCalibration: result,
	})
	if err != nil {
		return nil, err
	}
	return &CalibrationResult{
		Session:  sess.Summary(),
		Rows:     result.Accepted(),
		Rejected: result.Rejected,
		Steps:    steps(resp),
	}, nil
}

// AddTraining validates every training file concurrently, concatenates
// them in upload order and standardizes the result
func (s *PipelineService) AddTraining(ctx context.Context, id string, uploads []Upload) (*TrainingResult, error) {
	sess, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	if len(uploads) == 0 {
		return nil, ErrNoFiles
	}
	if _, err := sess.Stats(); err != nil {
		return nil, err
	}

	results := make([]*dataset.ValidationResult, len(uploads))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, u := range uploads {
		g.Go(func() error {
			res, err := s.loadTraining(gctx, u)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &TrainingResult{Files: make([]FileResult, len(results))}
	sets := make([]*dataset.RecordSet, len(results))
	for i, res := range results {
		sets[i] = res.Set
		out.Files[i] = FileResult{
			Name:     uploads[i].Name,
			Total:    res.Total,
			Accepted: res.Accepted(),
			Rejected: res.Rejected,
		}
		out.Rejected += len(res.Rejected)
	}
	combined, err := dataset.Concat(sets...)
	if err != nil {
		return nil, err
	}

	if _, err := s.execute(ctx, sess, operations.StageIDPrepareTraining, map[string]interface{}{
		operations.ParamTraining: combined,
	}); err != nil {
		return nil, err
	}
	out.Rows = combined.Len()
	out.Session = sess.Summary()
	return out, nil
}

// Train fits a fresh model on the session's standardized training rows.
// opts may be nil; zero fields fall back to the configured defaults.
func (s *PipelineService) Train(ctx context.Context, id string, opts *regressor.Options) (*operations.OperationResponse, error) {
	sess, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	params := map[string]interface{}{}
	if opts != nil {
		params[operations.ParamOptions] = *opts
	}
	return s.execute(ctx, sess, operations.StageIDTrain, params)
}

// Test standardizes the test file and predicts every frame. A previous
// playback cursor is discarded with the old predictions.
func (s *PipelineService) Test(ctx context.Context, id string, u Upload) (*TestResult, error) {
	sess, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	result, err := s.load(ctx, u, dataset.RoleTest)
	if err != nil {
		return nil, err
	}

	resp, err := s.execute(ctx, sess, operations.StageIDPredict, map[string]interface{}{
		operations.ParamTest: result.Set,
	})
	if err != nil {
		return nil, err
	}
	return &TestResult{
		Session:  sess.Summary(),
		Frames:   result.Accepted(),
		Rejected: result.Rejected,
		Steps:    steps(resp),
	}, nil
}

// RunInputs holds the files for a full pipeline run
type RunInputs struct {
	Calibration Upload
	Training    []Upload
	Test        Upload
	Options     *regressor.Options
}

// Run executes the whole pipeline on a new session and returns it
func (s *PipelineService) Run(ctx context.Context, in RunInputs) (session.Summary, *operations.OperationResponse, error) {
	sum := s.CreateSession(ctx)
	sess, err := s.store.Get(sum.ID)
	if err != nil {
		return sum, nil, err
	}

	cal, err := s.load(ctx, in.Calibration, dataset.RoleCalibration)
	if err != nil {
		return sum, nil, err
	}
	var sets []*dataset.RecordSet
	for _, u := range in.Training {
		res, err := s.loadTraining(ctx, u)
		if err != nil {
			return sum, nil, err
		}
		sets = append(sets, res.Set)
	}
	training, err := dataset.Concat(sets...)
	if err != nil {
		return sum, nil, err
	}
	test, err := s.load(ctx, in.Test, dataset.RoleTest)
	if err != nil {
		return sum, nil, err
	}

	params := map[string]interface{}{
		operations.ParamCalibration: cal,
		operations.ParamTraining:    training,
		operations.ParamTest:        test.Set,
	}
	if in.Options != nil {
		params[operations.ParamOptions] = *in.Options
	}
	resp, err := s.execute(ctx, sess, operations.StepFullPipeline, params)
	return sess.Summary(), resp, err
}

// Frames returns decoded predictions with their solved poses. limit <= 0
// means no limit.
func (s *PipelineService) Frames(id string, offset, limit int) ([]playback.Frame, int, error) {
	sess, err := s.store.Get(id)
	if err != nil {
		return nil, 0, err
	}
	preds, err := sess.Predictions()
	if err != nil {
		return nil, 0, err
	}

	total := len(preds)
	start := min(max(offset, 0), total)
	end := total
	if limit > 0 {
		end = min(start+limit, total)
	}

	frames := make([]playback.Frame, 0, end-start)
	for i := start; i < end; i++ {
		frames = append(frames, playback.Frame{
			SessionID:  id,
			Index:      i,
			Total:      total,
			Label:      kinematics.FrameLabel(i, total),
			Prediction: preds[i],
			Pose:       s.geometry.Solve(preds[i]),
		})
	}
	return frames, total, nil
}

// Standardized returns the standardized test records backing the charts
func (s *PipelineService) Standardized(id string) (*dataset.RecordSet, error) {
	sess, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	return sess.Standardized()
}

// Report collects what an export needs
func (s *PipelineService) Report(id string) (*exporter.Report, error) {
	sess, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	preds, err := sess.Predictions()
	if err != nil {
		return nil, err
	}
	std, _ := sess.Standardized()
	return &exporter.Report{SessionID: id, Predictions: preds, Standardized: std}, nil
}

// Export writes the session's predictions to w
func (s *PipelineService) Export(ctx context.Context, w io.Writer, id string, format exporter.Format) error {
	report, err := s.Report(id)
	if err != nil {
		return err
	}
	if err := s.exporter.Write(w, format, report); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "predictions exported",
		slog.String("session_id", id),
		slog.String("format", string(format)),
		slog.Int("frames", len(report.Predictions)))
	return nil
}

// SaveExport writes the session's predictions to path
func (s *PipelineService) SaveExport(id, path string) (string, error) {
	report, err := s.Report(id)
	if err != nil {
		return "", err
	}
	return s.exporter.Save(path, report)
}

func (s *PipelineService) newPlayer(id string) func([]prediction.Prediction) *playback.Player {
	return func(preds []prediction.Prediction) *playback.Player {
		return playback.New(preds, playback.Options{
			SessionID: id,
			Geometry:  s.geometry,
			Tick:      s.tick,
			Sinks:     s.sinks,
			Logger:    s.logger,
			Metrics:   s.metrics,
			Base:      s.base,
		})
	}
}

func (s *PipelineService) player(id string) (*playback.Player, error) {
	sess, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	return sess.Player(s.newPlayer(id))
}

// Playback applies action to the session's cursor and returns its state
func (s *PipelineService) Playback(ctx context.Context, id string, action PlaybackAction) (playback.State, error) {
	p, err := s.player(id)
	if err != nil {
		return playback.State{}, err
	}

	switch action {
	case ActionPlay:
		if err := p.Play(); err != nil {
			if errors.Is(err, playback.ErrNoFrames) {
				return playback.State{}, session.ErrNoPredictions
			}
			return playback.State{}, err
		}
	case ActionPause:
		p.Pause()
	case ActionReset:
		p.Reset()
	default:
		return playback.State{}, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}

	s.logger.DebugContext(ctx, "playback action",
		slog.String("session_id", id),
		slog.String("action", string(action)))
	return p.State(), nil
}

// PlaybackState returns the cursor without moving it
func (s *PipelineService) PlaybackState(id string) (playback.State, error) {
	p, err := s.player(id)
	if err != nil {
		return playback.State{}, err
	}
	return p.State(), nil
}

// CleanupIdle drops sessions untouched for longer than idle
func (s *PipelineService) CleanupIdle(ctx context.Context, idle time.Duration) int {
	n := s.store.CleanupIdle(ctx, idle)
	if n > 0 {
		s.logger.InfoContext(ctx, "idle sessions removed", slog.Int("count", n))
	}
	return n
}
