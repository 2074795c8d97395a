//go:build linux

package main

import "github.com/airsched/go-airsched-server/internal/link"

// openRawDevice is a hook for tests (overridden in unit tests).
var openRawDevice = func(iface string) (link.Device, error) { return link.OpenRaw(iface) }
