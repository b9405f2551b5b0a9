// Package repository holds the SQL access to datasets, training tasks and trained models.
// Queries are written with `?` placeholders and rebound for the connected driver.
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

var ErrNotFound = errors.New("record not found")

type Repository struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Stats are the aggregate counts shown on the dashboard
type Stats struct {
	DatasetCount  int `db:"dataset_count" json:"dataset_count"`
	ModelCount    int `db:"model_count" json:"model_count"`
	TaskCount     int `db:"task_count" json:"task_count"`
	TrainingCount int `db:"training_count" json:"training_count"`
}

func (r *Repository) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	err := r.db.GetContext(ctx, &stats, r.db.Rebind(`
SELECT (SELECT COUNT(*) FROM dataset)                             AS dataset_count,
       (SELECT COUNT(*) FROM model)                               AS model_count,
       (SELECT COUNT(*) FROM training_task)                       AS task_count,
       (SELECT COUNT(*) FROM training_task WHERE status = 'training') AS training_count`))
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// expectOne turns an update that touched no rows into ErrNotFound
func expectOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func releaseTx(tx *sqlx.Tx) {
	if err1 := tx.Commit(); err1 != nil && !errors.Is(err1, sql.ErrTxDone) {
		if err2 := tx.Rollback(); err2 != nil && !errors.Is(err2, sql.ErrTxDone) {
			log.Error().
				Err(err1).
				AnErr("rollback_error", err2).
				Msg("Error encountered when trying to release transaction")
		}
	}
}

func rollbackTx(tx *sqlx.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		log.Error().Err(err).Msg("Could not rollback transaction")
	}
}
