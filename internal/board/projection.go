package board

import (
	"errors"
	"fmt"
	"sync"

	"github.com/taskboard/backend/internal/ordering"
)

// State is the state of a Projection.
type State int

const (
	// Confirmed shows the last board the server acknowledged.
	Confirmed State = iota
	// Pending shows a local move the server has not answered yet.
	Pending
)

func (s State) String() string {
	switch s {
	case Confirmed:
		return "confirmed"
	case Pending:
		return "pending"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var (
	ErrMovePending = errors.New("a move is already pending")
	ErrNotPending  = errors.New("no move is pending")
	ErrUnknownCard = errors.New("unknown card")
)

// Move is a local move waiting for the server.
type Move struct {
	TaskID string
	From   ordering.Position
	To     ordering.Position
}

// Projection keeps the confirmed board and at most one speculative board.
// On success Resolve replaces the confirmed board with the server's answer;
// on failure it falls back to the snapshot taken before the move.
type Projection struct {
	mu          sync.Mutex
	state       State
	confirmed   Board
	speculative Board
	pending     Move
}

func NewProjection(cards []Card) *Projection {
	return &Projection{state: Confirmed, confirmed: Build(cards)}
}

func (p *Projection) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// View returns the board to display: the speculative one while pending.
func (p *Projection) View() Board {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Pending {
		return p.speculative.clone()
	}
	return p.confirmed.clone()
}

// Confirmed returns the last acknowledged board, whatever the state.
func (p *Projection) Confirmed() Board {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.confirmed.clone()
}

// PendingMove returns the move in flight, if any.
func (p *Projection) PendingMove() (Move, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending, p.state == Pending
}

// BeginMove applies a move locally and enters Pending. The target must be in
// range for the destination column; an invalid move leaves the projection
// untouched.
func (p *Projection) BeginMove(taskID string, to ordering.Position) (Move, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Confirmed {
		return Move{}, ErrMovePending
	}
	card, ok := p.confirmed.Find(taskID)
	if !ok {
		return Move{}, fmt.Errorf("%w: %s", ErrUnknownCard, taskID)
	}
	from := card.Position()
	dest := p.confirmed.Column(to.Status)
	if err := ordering.CheckTarget(from, to, len(dest.Cards)); err != nil {
		return Move{}, err
	}

	p.speculative = moveLocally(p.confirmed, card, to)
	p.pending = Move{TaskID: taskID, From: from, To: to}
	p.state = Pending
	return p.pending, nil
}

// Resolve ends the pending move. A nil err confirms result as the new board;
// any other err restores the snapshot taken by BeginMove.
func (p *Projection) Resolve(result []Card, err error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Pending {
		return ErrNotPending
	}
	if err == nil {
		p.confirmed = Build(result)
	}
	p.speculative = Board{}
	p.pending = Move{}
	p.state = Confirmed
	return nil
}

// Refresh replaces the confirmed board outside of a move.
func (p *Projection) Refresh(cards []Card) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Confirmed {
		return ErrMovePending
	}
	p.confirmed = Build(cards)
	return nil
}

// moveLocally splices card out of its column and into the target slot, then
// renumbers the touched columns by array position.
func moveLocally(b Board, card Card, to ordering.Position) Board {
	out := b.clone()
	src := out.index(card.Status)
	dst := out.index(to.Status)

	cards := out.Columns[src].Cards
	for i := range cards {
		if cards[i].ID == card.ID {
			cards = append(cards[:i], cards[i+1:]...)
			break
		}
	}
	out.Columns[src].Cards = cards

	moved := card
	moved.Status = to.Status
	target := out.Columns[dst].Cards
	target = append(target, Card{})
	copy(target[to.Order+1:], target[to.Order:])
	target[to.Order] = moved
	out.Columns[dst].Cards = target

	renumber(out.Columns[src].Cards)
	renumber(out.Columns[dst].Cards)
	return out
}

func renumber(cards []Card) {
	for i := range cards {
		cards[i].Order = i
	}
}
