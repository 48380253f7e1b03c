// Package pipeline sequences one meeting through transcription, action item
// extraction and presentation, tracking progress with an explicit state
// machine:
//
//	idle -> input_selected -> transcribing -> extracting -> presenting
//	                              |               |
//	                              +---> error <---+
package pipeline
