// Package extraction builds the action-item prompt for a transcript and
// sends it to an OpenAI chat completion model.
package extraction
