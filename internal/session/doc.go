// Package session keeps per-user sessions in memory. Each session owns a
// pipeline state machine, the live capture buffer and the last outcome.
// The manager starts and stops live captures, hands uploads and captured
// audio to the pipeline, and expires idle sessions from a cleanup goroutine.
package session
