// Package board groups a project's tasks into its four columns and tracks
// optimistic moves that are still waiting for the server.
package board

import (
	"sort"

	"github.com/taskboard/backend/internal/ordering"
)

// Card is the board view of one task.
type Card struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description *string         `json:"description,omitempty"`
	AssigneeID  *string         `json:"assignee_id,omitempty"`
	Status      ordering.Status `json:"status"`
	Order       int             `json:"order"`
}

func (c Card) Position() ordering.Position {
	return ordering.Position{Status: c.Status, Order: c.Order}
}

type Column struct {
	Status ordering.Status `json:"status"`
	Cards  []Card          `json:"tasks"`
}

// Board holds one Column per status, in ordering.Statuses order.
type Board struct {
	Columns []Column `json:"columns"`
}

// Build groups cards by status and sorts each column by order, ties by id.
// Cards with an unknown status are left out.
func Build(cards []Card) Board {
	byStatus := make(map[ordering.Status][]Card, len(ordering.Statuses))
	for _, c := range cards {
		if !c.Status.Valid() {
			continue
		}
		byStatus[c.Status] = append(byStatus[c.Status], c)
	}

	b := Board{Columns: make([]Column, len(ordering.Statuses))}
	for i, status := range ordering.Statuses {
		col := byStatus[status]
		if col == nil {
			col = []Card{}
		}
		sort.SliceStable(col, func(i, j int) bool {
			if col[i].Order != col[j].Order {
				return col[i].Order < col[j].Order
			}
			return col[i].ID < col[j].ID
		})
		b.Columns[i] = Column{Status: status, Cards: col}
	}
	return b
}

// Column returns the column for status. An unknown status yields an empty one.
func (b Board) Column(status ordering.Status) Column {
	for _, c := range b.Columns {
		if c.Status == status {
			return c
		}
	}
	return Column{Status: status, Cards: []Card{}}
}

// Find looks a card up by id.
func (b Board) Find(id string) (Card, bool) {
	for _, col := range b.Columns {
		for _, c := range col.Cards {
			if c.ID == id {
				return c, true
			}
		}
	}
	return Card{}, false
}

// Cards flattens the board in column order.
func (b Board) Cards() []Card {
	var out []Card
	for _, col := range b.Columns {
		out = append(out, col.Cards...)
	}
	return out
}

// Entries returns the ordering view of every card.
func (b Board) Entries() []ordering.Entry {
	var out []ordering.Entry
	for _, col := range b.Columns {
		for _, c := range col.Cards {
			out = append(out, ordering.Entry{ID: c.ID, Status: c.Status, Order: c.Order})
		}
	}
	return out
}

func (b Board) index(status ordering.Status) int {
	for i, c := range b.Columns {
		if c.Status == status {
			return i
		}
	}
	return -1
}

func (b Board) clone() Board {
	out := Board{Columns: make([]Column, len(b.Columns))}
	for i, col := range b.Columns {
		cards := make([]Card, len(col.Cards))
		copy(cards, col.Cards)
		out.Columns[i] = Column{Status: col.Status, Cards: cards}
	}
	return out
}
