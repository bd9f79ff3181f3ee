// Package server implements the multi-server lifecycle core.
//
// Architecture:
//   - Instance: one bound listener plus its accept loop and the
//     connections it has dispatched
//   - Manager: owns every Instance, orchestrates atomic multi-bind
//     startup and coordinated shutdown
//   - per-connection protocol behavior lives in internal/handler
//
// Two levels of fan-out: one goroutine per instance for its accept
// loop, one goroutine per accepted connection for its handler. The
// manager fans out one control operation per instance for start and
// stop and fans back in, so it never reports running or stopped until
// the slowest instance agrees.
package server
