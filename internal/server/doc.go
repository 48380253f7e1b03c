// Package server exposes the service over HTTP with gin: the embedded browser
// page, the session API (upload, live capture, level stream, download) and
// the health, config, stats and Prometheus endpoints.
package server
