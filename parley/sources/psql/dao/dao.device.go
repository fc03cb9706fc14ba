package dao

import (
	"context"
	"errors"
	"time"

	"parley/parley/sources/psql/models"
	"parley/parley/types"

	"gorm.io/gorm"
)

type DeviceDAO struct {
	DB *gorm.DB
}

func NewDeviceDAO(db *gorm.DB) *DeviceDAO {
	return &DeviceDAO{DB: db}
}

// TouchDevice registers the device on first sight and bumps LastSeen afterwards.
func (dao *DeviceDAO) TouchDevice(ctx context.Context, id string) (*types.Device, error) {
	now := time.Now().UTC()
	var device models.Device
	err := dao.DB.WithContext(ctx).First(&device, "id = ?", id).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		device = models.Device{ID: id, FirstSeen: now, LastSeen: now}
		if err := dao.DB.WithContext(ctx).Create(&device).Error; err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		device.LastSeen = now
		if err := dao.DB.WithContext(ctx).Save(&device).Error; err != nil {
			return nil, err
		}
	}
	out := device.ToType()
	return &out, nil
}
