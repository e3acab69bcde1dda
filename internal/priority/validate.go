package priority

import (
	"strings"
	"time"
)

// Structured reports whether the request uses the task/description/due_date shape.
func (r Request) Structured() bool {
	return r.Task != "" || r.Description != "" || r.DueDate != ""
}

// Validate checks required fields and parses the due date in loc. The due
// date is mandatory for structured requests when requireDueDate is set.
func (r Request) Validate(requireDueDate bool, loc *time.Location) (Input, error) {
	if !r.Structured() {
		text := strings.TrimSpace(r.Text)
		if text == "" {
			return Input{}, invalidInput("No input text provided")
		}
		return Input{Text: text}, nil
	}

	task := strings.TrimSpace(r.Task)
	description := strings.TrimSpace(r.Description)
	dueRaw := strings.TrimSpace(r.DueDate)

	var missing []string
	if task == "" {
		missing = append(missing, "task")
	}
	if description == "" {
		missing = append(missing, "description")
	}
	if requireDueDate && dueRaw == "" {
		missing = append(missing, "due_date")
	}
	if len(missing) > 0 {
		return Input{}, invalidInput("Missing required fields: %s", strings.Join(missing, ", "))
	}

	in := Input{Text: strings.TrimSpace(task + " " + description)}
	if dueRaw != "" {
		if loc == nil {
			loc = time.UTC
		}
		due, err := time.ParseInLocation(DateLayout, dueRaw, loc)
		if err != nil {
			return Input{}, invalidInput("due_date must be formatted as YYYY-MM-DD")
		}
		in.DueDate = &due
	}
	return in, nil
}
