// Package http implements the REST surface of the arm pose service.
//
// Handlers are thin: they parse the request, call the pipeline service and
// render either a {"status":"success","data":...} envelope or an RFC 7807
// problem through errors.ErrorHandler.
//
// # Routes
//
//	/api/sessions                         list, create
//	/api/sessions/{id}                    get, delete
//	/api/sessions/{id}/reset              clear all pipeline state
//	/api/sessions/{id}/calibration        multipart "file"
//	/api/sessions/{id}/training           multipart "files", repeated
//	/api/sessions/{id}/train              optional JSON model options
//	/api/sessions/{id}/test               multipart "file"
//	/api/sessions/{id}/predictions        ?offset=&limit=
//	/api/sessions/{id}/standardized       chart series
//	/api/sessions/{id}/export             ?format=csv|xlsx
//	/api/sessions/{id}/playback[/action]  play, pause, reset
//	/api/operations                       stage snapshots
//	/api/health, /api/metrics, /api/logs
package http
