// Package websocket pushes operation snapshots, training progress and
// playback frames to browser clients.
package websocket
