// Package metrics defines the service's Prometheus instruments.
package metrics
