// internal/db/drafts.go
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/codr1/Pitchside/internal/models"
	"github.com/codr1/Pitchside/internal/onboarding"
)

func (q *Queries) SaveDraft(ctx context.Context, d onboarding.Draft) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode draft %s: %w", d.ID, err)
	}
	_, err = q.db.ExecContext(ctx, q.rebind(`
		INSERT INTO ground_drafts (id, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at`),
		d.ID, string(payload), d.CreatedAt.Unix(), d.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("save draft %s: %w", d.ID, err)
	}
	return nil
}

func (q *Queries) GetDraft(ctx context.Context, id string) (onboarding.Draft, error) {
	var payload string
	err := q.db.QueryRowxContext(ctx, q.rebind(`SELECT payload FROM ground_drafts WHERE id = ?`), id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return onboarding.Draft{}, fmt.Errorf("draft %s: %w", id, models.ErrNotFound)
		}
		return onboarding.Draft{}, fmt.Errorf("get draft %s: %w", id, err)
	}
	var d onboarding.Draft
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		return onboarding.Draft{}, fmt.Errorf("decode draft %s: %w", id, err)
	}
	return d, nil
}

func (q *Queries) DeleteDraft(ctx context.Context, id string) error {
	if _, err := q.db.ExecContext(ctx, q.rebind(`DELETE FROM ground_drafts WHERE id = ?`), id); err != nil {
		return fmt.Errorf("delete draft %s: %w", id, err)
	}
	return nil
}

// PublishDraft creates the ground a reviewed draft describes and removes
// the draft.
func (db *DB) PublishDraft(ctx context.Context, id string) (models.Ground, error) {
	var ground models.Ground
	err := db.RunInTx(ctx, func(tx *DB) error {
		d, err := tx.Queries.GetDraft(ctx, id)
		if err != nil {
			return err
		}
		g, err := onboarding.Build(d)
		if err != nil {
			return err
		}
		if ground, err = tx.createGround(ctx, g); err != nil {
			return err
		}
		return tx.Queries.DeleteDraft(ctx, id)
	})
	if err != nil {
		return models.Ground{}, err
	}
	return ground, nil
}
