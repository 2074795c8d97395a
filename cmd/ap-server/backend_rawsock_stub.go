//go:build !linux

package main

import (
	"errors"

	"github.com/airsched/go-airsched-server/internal/link"
)

var openRawDevice = func(iface string) (link.Device, error) {
	return nil, errors.New("rawsock backend requires linux")
}
