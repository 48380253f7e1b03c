// Package actionitems turns a chat model's reply into validated action items
// and renders the downloadable action_items.json document. Replies that are
// not valid JSON, or not an array of well-formed items, become a diagnostic
// result that keeps the raw text.
package actionitems
