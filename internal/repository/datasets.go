package repository

import (
	"context"
	"time"

	"yolotrain/internal/models"
)

func (r *Repository) CreateDataset(ctx context.Context, ds *models.Dataset) error {
	now := time.Now().UTC()
	ds.CreatedAt, ds.UpdatedAt = now, now
	if ds.Status == "" {
		ds.Status = models.DsReady
	}

	return r.db.QueryRowxContext(ctx, r.db.Rebind(`
INSERT INTO dataset (name, task_type, description, path, file_count, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id`),
		ds.Name, ds.TaskKind, ds.Description, ds.Path, ds.FileCount, ds.Status, ds.CreatedAt, ds.UpdatedAt,
	).Scan(&ds.ID)
}

func (r *Repository) GetDataset(ctx context.Context, id int64) (*models.Dataset, error) {
	var ds models.Dataset
	if err := r.db.GetContext(ctx, &ds, r.db.Rebind(`SELECT * FROM dataset WHERE id = ?`), id); err != nil {
		return nil, notFound(err)
	}
	return &ds, nil
}

func (r *Repository) ListDatasets(ctx context.Context) ([]models.Dataset, error) {
	datasets := []models.Dataset{}
	if err := r.db.SelectContext(ctx, &datasets, `SELECT * FROM dataset ORDER BY created_at DESC, id DESC`); err != nil {
		return nil, err
	}
	return datasets, nil
}

// DeleteDataset removes the dataset row. Training tasks of the dataset are removed by the
// foreign key cascade, files on disk are left alone.
func (r *Repository) DeleteDataset(ctx context.Context, id int64) error {
	return expectOne(r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM dataset WHERE id = ?`), id))
}
