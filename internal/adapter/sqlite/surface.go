package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hostedraids/muster/internal/domain"
)

// Surface mirrors the rendered roster fields into the display_fields table.
// It stands in for the remote chat embed: a delivery layer replays the
// current rows whenever the upstream view needs rebuilding.
type Surface struct {
	db *sql.DB
}

var _ domain.DisplaySurface = (*Surface)(nil)

// NewSurface wraps an already-migrated database connection.
func NewSurface(db *sql.DB) *Surface {
	return &Surface{db: db}
}

func (s *Surface) Apply(ctx context.Context, instruction domain.RenderInstruction) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO display_fields (event_id, role, label, body) VALUES (?, ?, ?, ?)
		 ON CONFLICT (event_id, role) DO UPDATE SET label = excluded.label, body = excluded.body`,
		instruction.EventID, string(instruction.Role), instruction.Label, instruction.Body,
	)
	if err != nil {
		return fmt.Errorf("applying display field: %w", err)
	}
	return nil
}

func (s *Surface) Render(ctx context.Context, eventID string) ([]domain.RenderInstruction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, role, label, body FROM display_fields
		 WHERE event_id = ? ORDER BY role ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("reading display fields: %w", err)
	}
	defer rows.Close()

	var instructions []domain.RenderInstruction
	for rows.Next() {
		var in domain.RenderInstruction
		var role string
		if err := rows.Scan(&in.EventID, &role, &in.Label, &in.Body); err != nil {
			return nil, fmt.Errorf("scanning display field: %w", err)
		}
		in.Role = domain.RoleKind(role)
		instructions = append(instructions, in)
	}
	return instructions, rows.Err()
}

func (s *Surface) Delete(ctx context.Context, eventID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM display_fields WHERE event_id = ?`, eventID,
	); err != nil {
		return fmt.Errorf("deleting display fields: %w", err)
	}
	return nil
}
