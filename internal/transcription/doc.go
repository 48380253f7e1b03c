// Package transcription converts audio assets into plain-text transcripts.
// A Service owns a single lazily loaded speech-to-text Model, backed either
// by the OpenAI Whisper API or by a Whisper-compatible HTTP endpoint.
package transcription
