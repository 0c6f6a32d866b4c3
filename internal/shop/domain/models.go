package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Shop struct {
	ID        snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Name      string       `gorm:"not null" json:"name"`
	TypeID    int64        `gorm:"not null;default:0" json:"type_id"`
	Area      string       `gorm:"not null;default:''" json:"area"`
	Address   string       `gorm:"not null;default:''" json:"address"`
	AvgPrice  int64        `gorm:"not null;default:0" json:"avg_price"`
	Score     int          `gorm:"not null;default:0" json:"score"`
	OpenHours string       `gorm:"not null;default:''" json:"open_hours"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Shop) TableName() string { return "shops" }
