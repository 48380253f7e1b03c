// Package meter turns live audio frames into loudness readings for display.
// Readings go to a bounded channel with a non-blocking send; a slow consumer
// loses readings rather than stalling capture.
package meter
