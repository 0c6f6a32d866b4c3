package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/flashsale/internal/shop/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, shop *domain.Shop) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO shops (id, name, type_id, area, address, avg_price, score, open_hours, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		shop.ID,
		shop.Name,
		shop.TypeID,
		shop.Area,
		shop.Address,
		shop.AvgPrice,
		shop.Score,
		shop.OpenHours,
		shop.CreatedAt,
		shop.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Shop, error) {
	var shop domain.Shop
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, type_id, area, address, avg_price, score, open_hours, created_at, updated_at
		 FROM shops WHERE id = ?`,
		id,
	).Scan(&shop).Error
	if err != nil {
		return nil, err
	}
	if shop.ID == 0 {
		return nil, nil
	}
	return &shop, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, shop *domain.Shop) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE shops
		 SET name = ?, type_id = ?, area = ?, address = ?, avg_price = ?, score = ?, open_hours = ?, updated_at = ?
		 WHERE id = ?`,
		shop.Name,
		shop.TypeID,
		shop.Area,
		shop.Address,
		shop.AvgPrice,
		shop.Score,
		shop.OpenHours,
		shop.UpdatedAt,
		shop.ID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
