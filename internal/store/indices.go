package store

import (
	"context"
	"slices"
	"strings"

	"gorm.io/gorm"

	"github.com/seenimoa/moexidx/internal/errs"
	"github.com/seenimoa/moexidx/pkg/models"
	"github.com/seenimoa/moexidx/pkg/utils"
)

// CreateIndex persists an index and its components in one transaction and
// returns the index with its assigned id.
func (s *Store) CreateIndex(ctx context.Context, idx models.Index, weights models.Weights) (models.Index, []models.IndexComponent, error) {
	row := indexRow{
		Name:      idx.Name,
		BaseDate:  utils.Day(idx.BaseDate),
		Weighting: string(idx.Weighting),
		BaseValue: idx.BaseValue,
	}
	var comps []componentRow

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		comps = make([]componentRow, 0, len(weights))
		for _, secid := range sortedKeys(weights) {
			comps = append(comps, componentRow{IndexID: row.ID, SecID: secid, Weight: weights[secid]})
		}
		if len(comps) == 0 {
			return nil
		}
		return tx.Create(&comps).Error
	})
	if err != nil {
		return models.Index{}, nil, errs.Store("create index "+idx.Name, err)
	}
	return toIndex(row), toComponents(comps), nil
}

// GetIndex returns an index by id.
func (s *Store) GetIndex(ctx context.Context, id int64) (models.Index, error) {
	var row indexRow
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return models.Index{}, errs.Store("get index", notFound(err))
	}
	return toIndex(row), nil
}

// ListIndices returns indices whose name contains query, case-insensitively.
// An empty query lists every index.
func (s *Store) ListIndices(ctx context.Context, query string) ([]models.Index, error) {
	var rows []indexRow
	q := s.db.WithContext(ctx).Order("id")
	if query = strings.TrimSpace(query); query != "" {
		q = q.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(query)+"%")
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, errs.Store("list indices", err)
	}
	out := make([]models.Index, len(rows))
	for i, r := range rows {
		out[i] = toIndex(r)
	}
	return out, nil
}

// Components returns the frozen components of an index.
func (s *Store) Components(ctx context.Context, indexID int64) ([]models.IndexComponent, error) {
	var rows []componentRow
	err := s.db.WithContext(ctx).
		Where("index_id = ?", indexID).
		Order("secid").
		Find(&rows).Error
	if err != nil {
		return nil, errs.Store("load components", err)
	}
	return toComponents(rows), nil
}

func toIndex(r indexRow) models.Index {
	return models.Index{
		ID:        r.ID,
		Name:      r.Name,
		BaseDate:  utils.Day(r.BaseDate),
		Weighting: models.WeightingScheme(r.Weighting),
		BaseValue: r.BaseValue,
	}
}

func toComponents(rows []componentRow) []models.IndexComponent {
	out := make([]models.IndexComponent, len(rows))
	for i, r := range rows {
		out[i] = models.IndexComponent{ID: r.ID, IndexID: r.IndexID, SecID: r.SecID, Weight: r.Weight}
	}
	return out
}

func sortedKeys(w models.Weights) []string {
	keys := make([]string, 0, len(w))
	for k := range w {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
