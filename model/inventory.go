package model

import (
	"time"

	"gorm.io/datatypes"
)

// Inventory represents a single item stack in a character's bag.
type Inventory struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	CharID    int64          `gorm:"index:idx_char_inventory;not null" json:"char_id"`
	Bag       uint8          `gorm:"not null" json:"bag"`
	Slot      uint8          `gorm:"not null" json:"slot"`
	ItemGUID  string         `gorm:"size:36" json:"item_guid"`
	Entry     uint32         `gorm:"not null" json:"entry"`
	Count     uint32         `gorm:"not null" json:"count"`
	MaxStack  uint32         `json:"max_stack"`
	Soulbound bool           `json:"soulbound"`
	Tradeable bool           `json:"tradeable"`
	BagSize   uint8          `json:"bag_size"`
	Attrs     datatypes.JSON `json:"attrs"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}
