package model

import (
	"time"

	"gorm.io/gorm"
)

// 商品。価格の正は常にここ（注文時にスナップショットする）。
// IDはUUID。SeedIDはシードデータ由来の数値ID（後方互換の参照用）。
type Product struct {
	ID          string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	SeedID      int64          `gorm:"uniqueIndex" json:"seed_id"`
	Name        string         `gorm:"type:varchar(255);not null" json:"name"`
	Description string         `gorm:"type:text" json:"description"`
	Price       int64          `gorm:"not null" json:"price"`
	Category    string         `gorm:"type:varchar(100);index" json:"category"`
	Image       string         `gorm:"type:varchar(500)" json:"image"`
	IsActive    bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}
