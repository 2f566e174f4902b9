package calendar

import "fmt"

// Status is the result kind of a calendar operation.
type Status int

const (
	Added Status = iota + 1
	Duplicate
	InvalidDate
	Pruned
)

func (s Status) String() string {
	switch s {
	case Added:
		return "added"
	case Duplicate:
		return "duplicate"
	case InvalidDate:
		return "invalid_date"
	case Pruned:
		return "pruned"
	default:
		return "unknown"
	}
}

// Outcome reports what an Add or PruneBefore did. Date is the caller's input
// string, kept verbatim so InvalidDate outcomes can echo it back.
type Outcome struct {
	Status  Status
	Date    string
	Event   string
	Removed int // Pruned only: number of dates deleted
}

// String is the plain text shown to the end user.
func (o Outcome) String() string {
	switch o.Status {
	case Added:
		return fmt.Sprintf("Event added to %s: %s", o.Date, o.Event)
	case Duplicate:
		return fmt.Sprintf("Event '%s' already exists for %s. Skipping.", o.Event, o.Date)
	case InvalidDate:
		return invalidDateText
	case Pruned:
		return fmt.Sprintf("Removed all events before %s.", o.Date)
	default:
		return ""
	}
}

const invalidDateText = "Invalid date format. Please use 'YYYY-MM-DD'."
