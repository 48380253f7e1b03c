package extraction

import "strings"

const promptTemplate = `You are an expert meeting assistant. Based on the following transcript, extract all action items in structured JSON format.

Transcript:
"""{{transcript}}"""

Return ONLY a JSON array, with no prose and no code fences, like:
[
  {
    "owner": "Name",
    "action": "What needs to be done",
    "due_date": "If mentioned, else null",
    "priority": "high/medium/low"
  }
]

Every object must have exactly the keys owner, action, due_date and priority.
Use null for owner or due_date when the transcript does not say.
priority must be one of "high", "medium" or "low".
If there are no action items, return [].`

// BuildPrompt returns the extraction instruction with the transcript
// embedded verbatim between triple-quote delimiters.
func BuildPrompt(transcript string) string {
	return strings.Replace(promptTemplate, "{{transcript}}", transcript, 1)
}
