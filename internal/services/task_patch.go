package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/taskboard/backend/internal/ordering"
	"github.com/taskboard/backend/pkg/response"
)

// TaskPatch is the body of a task update. It is either a Reposition or an
// Edit; DecodeTaskPatch picks one and never merges the two.
type TaskPatch interface {
	isTaskPatch()
}

// Reposition moves a task to a slot, possibly in another column.
type Reposition struct {
	Status ordering.Status
	Order  int
}

// Edit changes content fields. Nil Title and unset optionals are left alone.
type Edit struct {
	Title       *string
	Description OptionalString
	AssigneeID  OptionalString
}

func (Reposition) isTaskPatch() {}
func (Edit) isTaskPatch()       {}

// assigns reports whether the edit points the task at a membership. Such an
// edit must hold the project lock so the membership cannot be removed while
// it is checked.
func (e Edit) assigns() bool {
	return e.AssigneeID.Set && e.AssigneeID.Value != nil && *e.AssigneeID.Value != ""
}

// OptionalString tells an absent field apart from an explicit null.
type OptionalString struct {
	Set   bool
	Value *string
}

func SetString(v string) OptionalString {
	return OptionalString{Set: true, Value: &v}
}

func NullString() OptionalString {
	return OptionalString{Set: true}
}

const (
	keyStatus      = "status"
	keyOrder       = "order"
	keyTitle       = "title"
	keyDescription = "description"
	keyAssignee    = "assigneeId"
	keyAssigneeAlt = "assignee_id"
)

// DecodeTaskPatch parses a PATCH body into a Reposition or an Edit.
func DecodeTaskPatch(raw []byte) (TaskPatch, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, response.NewBadRequest("malformed patch body")
	}
	if len(fields) == 0 {
		return nil, response.NewBadRequest("empty patch")
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var positional, content int
	for _, k := range keys {
		switch k {
		case keyStatus, keyOrder:
			positional++
		case keyTitle, keyDescription, keyAssignee, keyAssigneeAlt:
			content++
		default:
			return nil, response.NewBadRequest(fmt.Sprintf("unknown field %q", k))
		}
	}

	if positional > 0 && content > 0 {
		return nil, response.NewBadRequest("a patch either moves a task (status, order) or edits its content, not both")
	}
	if positional > 0 {
		return decodeReposition(fields)
	}
	return decodeEdit(fields)
}

func decodeReposition(fields map[string]json.RawMessage) (TaskPatch, error) {
	rawStatus, hasStatus := fields[keyStatus]
	rawOrder, hasOrder := fields[keyOrder]
	if !hasStatus || !hasOrder {
		return nil, response.NewBadRequest("status and order must be sent together")
	}

	var status *string
	if err := json.Unmarshal(rawStatus, &status); err != nil || status == nil {
		return nil, response.NewBadRequest("status must be a string")
	}
	parsed, err := ordering.ParseStatus(*status)
	if err != nil {
		return nil, response.NewBadRequest(err.Error())
	}

	var order *int
	if err := json.Unmarshal(rawOrder, &order); err != nil || order == nil {
		return nil, response.NewBadRequest("order must be an integer")
	}

	return Reposition{Status: parsed, Order: *order}, nil
}

func decodeEdit(fields map[string]json.RawMessage) (TaskPatch, error) {
	var edit Edit

	if raw, ok := fields[keyTitle]; ok {
		var title *string
		if err := json.Unmarshal(raw, &title); err != nil || title == nil {
			return nil, response.NewBadRequest("title must be a string")
		}
		trimmed := strings.TrimSpace(*title)
		if trimmed == "" {
			return nil, response.NewBadRequest("title is required")
		}
		edit.Title = &trimmed
	}

	if raw, ok := fields[keyDescription]; ok {
		v, err := decodeOptional(raw, keyDescription)
		if err != nil {
			return nil, err
		}
		edit.Description = v
	}

	rawAssignee, hasAssignee := fields[keyAssignee]
	if alt, ok := fields[keyAssigneeAlt]; ok {
		if hasAssignee {
			return nil, response.NewBadRequest("assigneeId sent twice")
		}
		rawAssignee, hasAssignee = alt, true
	}
	if hasAssignee {
		v, err := decodeOptional(rawAssignee, keyAssignee)
		if err != nil {
			return nil, err
		}
		edit.AssigneeID = v
	}

	return edit, nil
}

func decodeOptional(raw json.RawMessage, name string) (OptionalString, error) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return NullString(), nil
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return OptionalString{}, response.NewBadRequest(name + " must be a string or null")
	}
	return SetString(v), nil
}
