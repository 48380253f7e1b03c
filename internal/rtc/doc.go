// Package rtc terminates browser WebRTC connections for live capture. A Peer
// answers an SDP offer, receives the microphone track, decodes Opus to
// 48 kHz PCM and hands each frame to an audio.FrameSink.
package rtc
