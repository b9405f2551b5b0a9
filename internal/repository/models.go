package repository

import (
	"context"

	"yolotrain/internal/models"
)

func (r *Repository) GetModel(ctx context.Context, id int64) (*models.Model, error) {
	var m models.Model
	if err := r.db.GetContext(ctx, &m, r.db.Rebind(`SELECT * FROM model WHERE id = ?`), id); err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (r *Repository) ListModels(ctx context.Context) ([]models.Model, error) {
	list := []models.Model{}
	if err := r.db.SelectContext(ctx, &list, `SELECT * FROM model ORDER BY created_at DESC, id DESC`); err != nil {
		return nil, err
	}
	return list, nil
}

// ListModelsByTask returns the models produced by a training task
func (r *Repository) ListModelsByTask(ctx context.Context, taskID int64) ([]models.Model, error) {
	list := []models.Model{}
	if err := r.db.SelectContext(ctx, &list, r.db.Rebind(`SELECT * FROM model WHERE task_id = ? ORDER BY id`), taskID); err != nil {
		return nil, err
	}
	return list, nil
}

func (r *Repository) DeleteModel(ctx context.Context, id int64) error {
	return expectOne(r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM model WHERE id = ?`), id))
}
