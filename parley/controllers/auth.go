package controllers

import (
	"context"
	"errors"
	"time"

	"parley/parley/config"
	"parley/parley/types"
	"parley/parley/utils/logging"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	tokenTTL       = 30 * 24 * time.Hour
	maxDeviceIDLen = 128
)

var ErrInvalidDevice = errors.New("deviceId must be 1-128 characters")

type DeviceRegistry interface {
	TouchDevice(ctx context.Context, id string) (*types.Device, error)
}

type AuthController struct {
	devices DeviceRegistry
	cfg     config.Config
}

func NewAuthController(devices DeviceRegistry, cfg config.Config) *AuthController {
	return &AuthController{
		devices: devices,
		cfg:     cfg,
	}
}

// IssueToken registers the device and, when a JWT secret is configured,
// returns a signed token binding it. Without a secret the token is empty and
// clients identify with the raw device id.
func (c *AuthController) IssueToken(ctx context.Context, deviceID string) (*types.TokenResponse, error) {
	if deviceID == "" || len(deviceID) > maxDeviceIDLen {
		return nil, ErrInvalidDevice
	}
	device, err := c.devices.TouchDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	logging.AppLogger.Info("device seen", zap.String("device_id", device.ID), zap.Time("first_seen", device.FirstSeen))

	if c.cfg.JWTSecret == "" {
		return &types.TokenResponse{}, nil
	}
	exp := time.Now().Add(tokenTTL)
	claims := jwt.MapClaims{
		"user_id": device.ID,
		"exp":     exp.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(c.cfg.JWTSecret))
	if err != nil {
		return nil, err
	}
	return &types.TokenResponse{Token: signed, ExpiresAt: exp.Unix()}, nil
}
