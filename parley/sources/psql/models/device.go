package models

import (
	"time"

	"parley/parley/types"
)

type Device struct {
	ID        string    `gorm:"type:varchar(64);primaryKey"`
	FirstSeen time.Time `gorm:"not null"`
	LastSeen  time.Time `gorm:"not null"`
}

func (d *Device) ToType() types.Device {
	return types.Device{ID: d.ID, FirstSeen: d.FirstSeen, LastSeen: d.LastSeen}
}
