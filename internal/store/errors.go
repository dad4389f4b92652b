package store

import "errors"

var (
	ErrNotFound    = errors.New("record not found")
	ErrDeviceInUse = errors.New("device has attendance or history records")
)
