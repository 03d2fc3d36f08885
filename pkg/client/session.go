package client

import (
	"context"
	"fmt"

	"github.com/taskboard/backend/internal/board"
	"github.com/taskboard/backend/internal/ordering"
)

// BoardSession keeps one project board in sync for a single user and applies
// moves optimistically: the local view changes at once and is either
// confirmed from the server or rolled back.
type BoardSession struct {
	client    *Client
	cred      Credential
	projectID string
	proj      *board.Projection
}

// OpenBoard loads the project's board and starts a session on it.
func (c *Client) OpenBoard(ctx context.Context, cred Credential, projectID string) (*BoardSession, error) {
	cards, err := c.Tasks(ctx, cred, projectID)
	if err != nil {
		return nil, err
	}
	return &BoardSession{
		client:    c,
		cred:      cred,
		projectID: projectID,
		proj:      board.NewProjection(cards),
	}, nil
}

// View is what the user should see, including an in-flight move.
func (s *BoardSession) View() board.Board {
	return s.proj.View()
}

func (s *BoardSession) State() board.State {
	return s.proj.State()
}

// Move applies the move locally, sends it, then adopts the server's board.
// A rejected move restores the board as it was before the call.
func (s *BoardSession) Move(ctx context.Context, taskID string, to ordering.Position) error {
	if _, err := s.proj.BeginMove(taskID, to); err != nil {
		return err
	}

	if _, err := s.client.MoveTask(ctx, s.cred, s.projectID, taskID, to); err != nil {
		_ = s.proj.Resolve(nil, err)
		return err
	}

	cards, err := s.client.Tasks(ctx, s.cred, s.projectID)
	if err != nil {
		// the move is committed; keep the speculative board as confirmed
		_ = s.proj.Resolve(s.proj.View().Cards(), nil)
		return fmt.Errorf("move applied, refresh failed: %w", err)
	}
	return s.proj.Resolve(cards, nil)
}

// Reload replaces the board with the server's current state.
func (s *BoardSession) Reload(ctx context.Context) error {
	cards, err := s.client.Tasks(ctx, s.cred, s.projectID)
	if err != nil {
		return err
	}
	return s.proj.Refresh(cards)
}
