package storage

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/claude/tulog/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ListAll returns every exercise for userID ordered by name, each with its
// full session history in append order.
func (db *DB) ListAll(ctx context.Context, userID int) ([]models.Exercise, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT e.name, e.last_updated,
		        s.id, s.weight, s.time_under_load, s.recorded_at
		 FROM exercises e
		 LEFT JOIN exercise_sessions s ON s.exercise_id = e.id
		 WHERE e.user_id = $1
		 ORDER BY e.name ASC, s.position ASC`,
		userID)
	if err != nil {
		return nil, classify("querying exercises", err)
	}
	defer rows.Close()

	var result []models.Exercise
	for rows.Next() {
		var (
			name        string
			lastUpdated time.Time
			sessionID   *uuid.UUID
			weight      *float64
			tul         *int
			recordedAt  *time.Time
		)
		if err := rows.Scan(&name, &lastUpdated, &sessionID, &weight, &tul, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning exercise: %w", err)
		}

		if len(result) == 0 || result[len(result)-1].Name != name {
			result = append(result, models.Exercise{
				Name:        name,
				Sessions:    []models.Session{},
				LastUpdated: lastUpdated,
			})
		}
		if sessionID == nil {
			continue
		}
		cur := &result[len(result)-1]
		cur.Sessions = append(cur.Sessions, models.Session{
			ID:            *sessionID,
			Weight:        deref(weight),
			TimeUnderLoad: deref(tul),
			Timestamp:     deref(recordedAt),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, classify("reading exercises", err)
	}
	return result, nil
}

// Get retrieves a single exercise by name. found is false when it does not exist.
func (db *DB) Get(ctx context.Context, userID int, name string) (ex models.Exercise, found bool, err error) {
	var id int64
	err = db.Pool.QueryRow(ctx,
		`SELECT id, name, last_updated FROM exercises WHERE user_id = $1 AND name = $2`,
		userID, name).Scan(&id, &ex.Name, &ex.LastUpdated)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return models.Exercise{}, false, nil
	}
	if err != nil {
		return models.Exercise{}, false, classify("querying exercise", err)
	}

	rows, err := db.Pool.Query(ctx,
		`SELECT id, weight, time_under_load, recorded_at
		 FROM exercise_sessions
		 WHERE exercise_id = $1
		 ORDER BY position ASC`,
		id)
	if err != nil {
		return models.Exercise{}, false, classify("querying sessions", err)
	}
	defer rows.Close()

	ex.Sessions = []models.Session{}
	for rows.Next() {
		var s models.Session
		if err := rows.Scan(&s.ID, &s.Weight, &s.TimeUnderLoad, &s.Timestamp); err != nil {
			return models.Exercise{}, false, fmt.Errorf("scanning session: %w", err)
		}
		ex.Sessions = append(ex.Sessions, s)
	}
	if err := rows.Err(); err != nil {
		return models.Exercise{}, false, classify("reading sessions", err)
	}
	return ex, true, nil
}

// Upsert creates the exercise or replaces its session list and last_updated,
// all in one transaction.
func (db *DB) Upsert(ctx context.Context, userID int, ex models.Exercise) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return classify("beginning upsert", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var exerciseID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO exercises (user_id, name, last_updated)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, name) DO UPDATE SET last_updated = EXCLUDED.last_updated
		 RETURNING id`,
		userID, ex.Name, ex.LastUpdated).Scan(&exerciseID)
	if err != nil {
		return classify("upserting exercise", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM exercise_sessions WHERE exercise_id = $1`, exerciseID); err != nil {
		return classify("clearing sessions", err)
	}

	if len(ex.Sessions) > 0 {
		query := `INSERT INTO exercise_sessions (id, exercise_id, position, weight, time_under_load, recorded_at) VALUES `
		args := make([]any, 0, len(ex.Sessions)*6)
		valueStrings := make([]string, 0, len(ex.Sessions))

		for i, s := range ex.Sessions {
			id := s.ID
			if id == uuid.Nil {
				id = uuid.New()
			}
			base := i * 6
			valueStrings = append(valueStrings, fmt.Sprintf(
				"($%d,$%d,$%d,$%d,$%d,$%d)",
				base+1, base+2, base+3, base+4, base+5, base+6,
			))
			args = append(args, id, exerciseID, i, s.Weight, s.TimeUnderLoad, s.Timestamp)
		}

		query += strings.Join(valueStrings, ",") + " ON CONFLICT DO NOTHING"
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return classify("inserting sessions", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return classify("committing upsert", err)
	}
	return nil
}

// Remove deletes an exercise; its sessions go with it via ON DELETE CASCADE.
// Deleting a name that does not exist is not an error.
func (db *DB) Remove(ctx context.Context, userID int, name string) error {
	_, err := db.Pool.Exec(ctx,
		`DELETE FROM exercises WHERE user_id = $1 AND name = $2`, userID, name)
	if err != nil {
		return classify("deleting exercise", err)
	}
	return nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
