package actionitems

// Priority ranks an action item
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Item is one follow-up task extracted from a meeting. Owner and DueDate are
// nil when the meeting did not name them and serialize as null.
type Item struct {
	Owner    *string  `json:"owner"`
	Action   string   `json:"action" validate:"required"`
	DueDate  *string  `json:"due_date"`
	Priority Priority `json:"priority" validate:"required,oneof=high medium low"`
}

// requiredKeys are the exact keys every item object carries
var requiredKeys = []string{"owner", "action", "due_date", "priority"}

// Equal reports whether two items carry the same values
func (i Item) Equal(o Item) bool {
	return i.Action == o.Action &&
		i.Priority == o.Priority &&
		equalPtr(i.Owner, o.Owner) &&
		equalPtr(i.DueDate, o.DueDate)
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
