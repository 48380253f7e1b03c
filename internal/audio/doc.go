// Package audio normalizes meeting audio into assets on disk. It stores
// uploaded recordings, buffers live PCM frames from the real-time transport
// and encodes them as mono 16-bit WAV, and provides the level math used by
// the live meter.
package audio
