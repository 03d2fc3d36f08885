// Package ordering computes the order shifts that keep every board column
// contiguous: for a (project, status) pair the orders are exactly 0..n-1.
//
// The package is pure. Callers read the current column state inside a
// transaction, ask for a Plan, and apply its shifts before writing the moved
// task's own row.
package ordering

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Status is a board column.
type Status string

const (
	Backlog    Status = "BACKLOG"
	Todo       Status = "TODO"
	InProgress Status = "IN_PROGRESS"
	Done       Status = "DONE"
)

// Statuses lists the columns in board order.
var Statuses = []Status{Backlog, Todo, InProgress, Done}

var (
	ErrInvalidStatus   = errors.New("invalid status")
	ErrOrderOutOfRange = errors.New("order out of range")
	ErrUnknownEntry    = errors.New("unknown entry")
)

// Valid reports whether s is one of the four columns.
func (s Status) Valid() bool {
	switch s {
	case Backlog, Todo, InProgress, Done:
		return true
	}
	return false
}

// ParseStatus accepts the canonical upper-case column names.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.TrimSpace(raw))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return s, nil
}

// Position is a slot in a column.
type Position struct {
	Status Status `json:"status"`
	Order  int    `json:"order"`
}

// Open marks a shift window without an upper bound.
const Open = -1

// Shift adds Delta to the order of every task in Status whose order lies in
// [From, To]. To == Open means no upper bound.
type Shift struct {
	Status Status
	From   int
	To     int
	Delta  int
}

// Covers reports whether a task at (status, order) is affected by the shift.
func (s Shift) Covers(status Status, order int) bool {
	if status != s.Status || order < s.From {
		return false
	}
	return s.To == Open || order <= s.To
}

// Plan is the full effect of one move: the shifts to apply to the other
// tasks, then the moved task's final position.
type Plan struct {
	Shifts []Shift
	Target Position
	Noop   bool
}

// Insert returns the order of a task appended to a column holding size tasks.
func Insert(size int) int {
	return size
}

// Remove closes the gap left by the task at order in status.
func Remove(status Status, order int) Shift {
	return Shift{Status: status, From: order + 1, To: Open, Delta: -1}
}

// Move plans moving a task from one position to another.
//
// Within a column only the range between the two slots rotates by one.
// Across columns the source column is compacted first, then a slot is opened
// at the target order in the destination column.
func Move(from, to Position) Plan {
	if from.Status == to.Status {
		return moveWithin(from, to)
	}
	return Plan{
		Shifts: []Shift{
			Remove(from.Status, from.Order),
			{Status: to.Status, From: to.Order, To: Open, Delta: 1},
		},
		Target: to,
	}
}

func moveWithin(from, to Position) Plan {
	switch {
	case from.Order == to.Order:
		return Plan{Target: to, Noop: true}
	case from.Order < to.Order:
		return Plan{
			Shifts: []Shift{{Status: to.Status, From: from.Order + 1, To: to.Order, Delta: -1}},
			Target: to,
		}
	default:
		return Plan{
			Shifts: []Shift{{Status: to.Status, From: to.Order, To: from.Order - 1, Delta: 1}},
			Target: to,
		}
	}
}

// CheckTarget validates a move target against the destination column size.
// Within a column the target must be an existing slot; across columns it may
// also append at the end.
func CheckTarget(from, to Position, destSize int) error {
	if !to.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, to.Status)
	}
	limit := destSize
	if from.Status == to.Status {
		limit = destSize - 1
	}
	if to.Order < 0 || to.Order > limit {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrOrderOutOfRange, to.Order, limit)
	}
	return nil
}

// Entry is the ordering view of one task.
type Entry struct {
	ID     string
	Status Status
	Order  int
}

// Apply returns a copy of entries with plan applied, id being the moved task.
func Apply(entries []Entry, plan Plan, id string) ([]Entry, error) {
	out := make([]Entry, len(entries))
	copy(out, entries)

	moved := -1
	for i := range out {
		if out[i].ID == id {
			moved = i
			break
		}
	}
	if moved < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntry, id)
	}
	if plan.Noop {
		return out, nil
	}

	for _, shift := range plan.Shifts {
		for i := range out {
			if i == moved {
				continue
			}
			if shift.Covers(out[i].Status, out[i].Order) {
				out[i].Order += shift.Delta
			}
		}
	}
	out[moved].Status = plan.Target.Status
	out[moved].Order = plan.Target.Order
	return out, nil
}

// ApplyRemove returns a copy of entries without id, its column compacted.
func ApplyRemove(entries []Entry, id string) ([]Entry, error) {
	var removed *Entry
	out := make([]Entry, 0, len(entries))
	for i := range entries {
		if entries[i].ID == id {
			e := entries[i]
			removed = &e
			continue
		}
		out = append(out, entries[i])
	}
	if removed == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntry, id)
	}
	shift := Remove(removed.Status, removed.Order)
	for i := range out {
		if shift.Covers(out[i].Status, out[i].Order) {
			out[i].Order += shift.Delta
		}
	}
	return out, nil
}

// Violation describes a column whose orders are not exactly 0..n-1.
// Extra holds orders that are duplicated or fall outside 0..n-1.
type Violation struct {
	Status  Status `json:"status"`
	Size    int    `json:"size"`
	Missing []int  `json:"missing,omitempty"`
	Extra   []int  `json:"extra,omitempty"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: size=%d missing=%v extra=%v", v.Status, v.Size, v.Missing, v.Extra)
}

// Verify checks contiguity of every column present in entries. The result is
// empty when all columns are contiguous.
func Verify(entries []Entry) []Violation {
	byStatus := make(map[Status][]int)
	for _, e := range entries {
		byStatus[e.Status] = append(byStatus[e.Status], e.Order)
	}

	var violations []Violation
	for _, status := range sortedStatuses(byStatus) {
		orders := byStatus[status]
		n := len(orders)
		seen := make(map[int]int, n)
		for _, o := range orders {
			seen[o]++
		}

		v := Violation{Status: status, Size: n}
		for i := 0; i < n; i++ {
			if seen[i] == 0 {
				v.Missing = append(v.Missing, i)
			}
		}
		for o, count := range seen {
			if count > 1 || o < 0 || o >= n {
				v.Extra = append(v.Extra, o)
			}
		}
		sort.Ints(v.Extra)
		if len(v.Missing) > 0 || len(v.Extra) > 0 {
			violations = append(violations, v)
		}
	}
	return violations
}

// Change is a single order rewrite produced by Reindex.
type Change struct {
	ID       string
	Status   Status
	OldOrder int
	NewOrder int
}

// Reindex restores contiguity by sorting each column by (order, id) and
// renumbering from zero. Only entries whose order changes are returned.
func Reindex(entries []Entry) []Change {
	byStatus := make(map[Status][]Entry)
	for _, e := range entries {
		byStatus[e.Status] = append(byStatus[e.Status], e)
	}

	var changes []Change
	for _, status := range sortedStatuses(byStatus) {
		column := byStatus[status]
		sort.SliceStable(column, func(i, j int) bool {
			if column[i].Order != column[j].Order {
				return column[i].Order < column[j].Order
			}
			return column[i].ID < column[j].ID
		})
		for i, e := range column {
			if e.Order != i {
				changes = append(changes, Change{ID: e.ID, Status: status, OldOrder: e.Order, NewOrder: i})
			}
		}
	}
	return changes
}

func sortedStatuses[T any](m map[Status]T) []Status {
	out := make([]Status, 0, len(m))
	for _, s := range Statuses {
		if _, ok := m[s]; ok {
			out = append(out, s)
		}
	}
	// columns holding an unknown status still get checked, after the known ones
	var extra []Status
	for s := range m {
		if !s.Valid() {
			extra = append(extra, s)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}
