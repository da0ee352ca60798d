package tool

import (
	"fmt"

	"github.com/hupe1980/statemesh/core"
)

// Default state keys used by the reminder tools.
const (
	KeyReminders = "reminders"
	KeyUserName  = "user_name"
)

// AddReminder appends text to items.
func AddReminder(items []string, text string) ([]string, Result) {
	next := append(append(make([]string, 0, len(items)+1), items...), text)
	return next, Added{Reminder: text, Count: len(next)}
}

// ViewReminders returns the items unchanged with their count.
func ViewReminders(items []string) Result {
	return Viewed{Reminders: append([]string{}, items...)}
}

// UpdateReminder replaces the item at the 1-based index. Out-of-range
// indexes yield UpdateError and the input slice unchanged.
func UpdateReminder(items []string, index int, text string) ([]string, Result) {
	if index < 1 || index > len(items) {
		return items, UpdateError{Index: index, Count: len(items)}
	}
	next := append([]string{}, items...)
	old := next[index-1]
	next[index-1] = text
	return next, Updated{Index: index, OldText: old, UpdatedText: text}
}

// DeleteReminder removes the item at the 1-based index, shifting later items
// down. Out-of-range indexes yield DeleteError and the input slice unchanged.
func DeleteReminder(items []string, index int) ([]string, Result) {
	if index < 1 || index > len(items) {
		return items, DeleteError{Index: index, Count: len(items)}
	}
	removed := items[index-1]
	next := make([]string, 0, len(items)-1)
	next = append(next, items[:index-1]...)
	next = append(next, items[index:]...)
	return next, Deleted{Index: index, DeletedReminder: removed}
}

// RenameUser unconditionally replaces the name.
func RenameUser(old, name string) (string, Result) {
	return name, Renamed{OldName: old, NewName: name}
}

// ReminderOptions configures the reminder tools.
type ReminderOptions struct {
	// ListKey holds the reminder list (default "reminders").
	ListKey string
	// NameKey holds the user name (default "user_name").
	NameKey string
}

// NewReminderTools returns add_reminder, view_reminders, update_reminder,
// delete_reminder and update_user_name. Each runs its pure function inside
// one atomic Gateway update. Only view_reminders is read-only.
func NewReminderTools(optFns ...func(o *ReminderOptions)) []Tool {
	opts := ReminderOptions{ListKey: KeyReminders, NameKey: KeyUserName}
	for _, fn := range optFns {
		fn(&opts)
	}

	listKey, nameKey := opts.ListKey, opts.NameKey

	return []Tool{
		NewCallback(ActionAddReminder, "Add a new reminder to the user's reminder list.",
			[]Param{{Name: "reminder", Type: String, Description: "The reminder text to add"}},
			func(tc *core.ToolContext, args Args) (any, error) {
				text := args.String("reminder")
				return updateList(tc, listKey, func(items []string) ([]string, Result) {
					return AddReminder(items, text)
				}), nil
			}),

		NewCallback(ActionViewReminders, "View all current reminders.", nil,
			func(tc *core.ToolContext, _ Args) (any, error) {
				return ViewReminders(listOf(tc.ReadState(listKey, core.List{}))), nil
			},
			func(o *CallbackOptions) { o.ReadOnly = true }),

		NewCallback(ActionUpdateReminder, "Update an existing reminder by its 1-based position.",
			[]Param{
				{Name: "index", Type: Integer, Description: "1-based position of the reminder"},
				{Name: "updated_text", Type: String, Description: "The new reminder text"},
			},
			func(tc *core.ToolContext, args Args) (any, error) {
				index, text := args.Int("index"), args.String("updated_text")
				return updateList(tc, listKey, func(items []string) ([]string, Result) {
					return UpdateReminder(items, index, text)
				}), nil
			}),

		NewCallback(ActionDeleteReminder, "Delete a reminder by its 1-based position.",
			[]Param{{Name: "index", Type: Integer, Description: "1-based position of the reminder"}},
			func(tc *core.ToolContext, args Args) (any, error) {
				index := args.Int("index")
				return updateList(tc, listKey, func(items []string) ([]string, Result) {
					return DeleteReminder(items, index)
				}), nil
			}),

		NewCallback(ActionUpdateUserName, "Update the user's name.",
			[]Param{{Name: "name", Type: String, Description: "The new name"}},
			func(tc *core.ToolContext, args Args) (any, error) {
				name := args.String("name")
				var res Result
				tc.UpdateState(nameKey, core.String(""), func(cur core.Value) (core.Value, bool) {
					next, r := RenameUser(scalarString(cur), name)
					res = r
					return core.String(next), true
				})
				return res, nil
			}),
	}
}

// updateList runs fn against the list at key inside one gateway update and
// writes back only successful mutations.
func updateList(tc *core.ToolContext, key string, fn func([]string) ([]string, Result)) Result {
	var res Result
	tc.UpdateState(key, core.List{}, func(cur core.Value) (core.Value, bool) {
		next, r := fn(listOf(cur))
		res = r
		if r.Failed() {
			return cur, false
		}
		return toList(next), true
	})
	return res
}

func listOf(v core.Value) []string {
	if l, ok := v.(core.List); ok {
		return l.Strings()
	}
	return []string{}
}

func toList(items []string) core.List {
	out := make(core.List, len(items))
	for i, s := range items {
		out[i] = core.String(s)
	}
	return out
}

func scalarString(v core.Value) string {
	switch t := v.(type) {
	case core.String:
		return string(t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", core.Native(v))
	}
}
