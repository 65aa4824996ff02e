package models

import (
	"time"

	"gorm.io/gorm"
)

// Product is a sellable item. Stock is decremented exactly once per paid
// order during finalization.
type Product struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Name         string         `gorm:"type:varchar(191);not null" json:"name" validate:"required"`
	Description  string         `gorm:"type:text" json:"description"`
	Price        float64        `gorm:"type:decimal(12,2);not null" json:"price" validate:"required,gt=0"`
	Stock        int            `gorm:"not null;default:0" json:"stock" validate:"min=0"`
	Customizable bool           `gorm:"default:false" json:"customizable"`
	IsActive     bool           `gorm:"default:true;index" json:"is_active"`
	ViewCount    int64          `gorm:"default:0" json:"view_count"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}
