package tool

import "fmt"

// Action tags carried by reminder results.
const (
	ActionAddReminder    = "add_reminder"
	ActionViewReminders  = "view_reminders"
	ActionUpdateReminder = "update_reminder"
	ActionDeleteReminder = "delete_reminder"
	ActionUpdateUserName = "update_user_name"
)

// Result is the closed set of outcomes a reminder callback can produce:
// Added, Viewed, Updated, UpdateError, Deleted, DeleteError and Renamed.
// Each variant keeps its typed fields and serializes to a generic mapping
// (always with "action" and "message") at the model boundary.
type Result interface {
	Mapper
	Action() string
	Message() string
	// Failed reports whether the result describes a rejected operation.
	Failed() bool
	isResult()
}

// Added reports an appended reminder.
type Added struct {
	Reminder string
	Count    int
}

func (Added) isResult() {}
func (Added) Action() string { return ActionAddReminder }
func (Added) Failed() bool { return false }
func (r Added) Message() string { return fmt.Sprintf("Added reminder: %s", r.Reminder) }
func (r Added) Map() map[string]any {
	return map[string]any{"action": r.Action(), "reminder": r.Reminder, "count": r.Count, "message": r.Message()}
}

// Viewed lists the current reminders.
type Viewed struct {
	Reminders []string
}

func (Viewed) isResult() {}
func (Viewed) Action() string { return ActionViewReminders }
func (Viewed) Failed() bool { return false }

func (r Viewed) Message() string {
	if len(r.Reminders) == 0 {
		return "You have no reminders."
	}
	return fmt.Sprintf("You have %d reminder(s).", len(r.Reminders))
}

func (r Viewed) Map() map[string]any {
	items := make([]any, len(r.Reminders))
	for i, s := range r.Reminders {
		items[i] = s
	}
	return map[string]any{"action": r.Action(), "reminders": items, "count": len(r.Reminders), "message": r.Message()}
}

// Updated reports a replaced reminder.
type Updated struct {
	Index       int
	OldText     string
	UpdatedText string
}

func (Updated) isResult() {}
func (Updated) Action() string { return ActionUpdateReminder }
func (Updated) Failed() bool { return false }

func (r Updated) Message() string {
	return fmt.Sprintf("Reminder %d updated from '%s' to '%s'", r.Index, r.OldText, r.UpdatedText)
}

func (r Updated) Map() map[string]any {
	return map[string]any{
		"action":       r.Action(),
		"index":        r.Index,
		"old_text":     r.OldText,
		"updated_text": r.UpdatedText,
		"message":      r.Message(),
	}
}

// UpdateError reports an out-of-range update; state is untouched.
type UpdateError struct {
	Index int
	Count int
}

func (UpdateError) isResult() {}
func (UpdateError) Action() string { return ActionUpdateReminder }
func (UpdateError) Failed() bool { return true }
func (r UpdateError) Message() string { return outOfRange(r.Index, r.Count) }
func (r UpdateError) Map() map[string]any {
	return errorMap(r.Action(), r.Index, r.Count, r.Message())
}

// Deleted reports a removed reminder.
type Deleted struct {
	Index           int
	DeletedReminder string
}

func (Deleted) isResult() {}
func (Deleted) Action() string { return ActionDeleteReminder }
func (Deleted) Failed() bool { return false }

func (r Deleted) Message() string {
	return fmt.Sprintf("Reminder %d deleted: '%s'", r.Index, r.DeletedReminder)
}

func (r Deleted) Map() map[string]any {
	return map[string]any{
		"action":           r.Action(),
		"index":            r.Index,
		"deleted_reminder": r.DeletedReminder,
		"message":          r.Message(),
	}
}

// DeleteError reports an out-of-range delete; state is untouched.
type DeleteError struct {
	Index int
	Count int
}

func (DeleteError) isResult() {}
func (DeleteError) Action() string { return ActionDeleteReminder }
func (DeleteError) Failed() bool { return true }
func (r DeleteError) Message() string { return outOfRange(r.Index, r.Count) }
func (r DeleteError) Map() map[string]any {
	return errorMap(r.Action(), r.Index, r.Count, r.Message())
}

// Renamed reports an overwritten user name.
type Renamed struct {
	OldName string
	NewName string
}

func (Renamed) isResult() {}
func (Renamed) Action() string { return ActionUpdateUserName }
func (Renamed) Failed() bool { return false }
func (r Renamed) Message() string { return fmt.Sprintf("Name updated to: %s", r.NewName) }
func (r Renamed) Map() map[string]any {
	return map[string]any{"action": r.Action(), "old_name": r.OldName, "new_name": r.NewName, "message": r.Message()}
}

func outOfRange(index, count int) string {
	return fmt.Sprintf("Could not find reminder at position %d. There are currently %d reminders.", index, count)
}

func errorMap(action string, index, count int, msg string) map[string]any {
	return map[string]any{"action": action, "status": "error", "index": index, "count": count, "message": msg}
}
