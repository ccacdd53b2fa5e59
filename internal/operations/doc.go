// Package operations runs the armpose pipeline as a set of dependent
// stages: calibrate, prepare_training, train and predict.
//
// A Manager executes either one stage (the "step" request parameter) or
// every registered stage in dependency order against a session. Each stage
// gets its own timeout and retry policy, and its progress is pushed through
// the StatusBroadcaster to the WebSocket hub as operation snapshots.
// Training additionally emits one training:progress event per epoch.
//
// Dependencies only gate stages that are part of the same run. A stage run
// on its own checks the session in Validate instead, so uploading the test
// file long after training still works.
//
//	mgr := operations.NewManager(hub, nil, cfg, tracer, logger)
//	if err := operations.RegisterPipeline(mgr, cfg); err != nil {
//		return err
//	}
//	resp, err := mgr.Execute(ctx, sess, operations.OperationRequest{
//		Parameters: map[string]interface{}{
//			operations.ParamStep:        operations.StageIDCalibrate,
//			operations.ParamCalibration: result,
//		},
//	})
package operations
