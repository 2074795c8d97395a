package main

import (
	"os"
	"testing"
	"time"
)

func TestApplyEnvOverrides_Basic(t *testing.T) {
	base := &appConfig{
		backend:         "udp",
		udpRemote:       "127.0.0.1:5800",
		rawIf:           "mon0",
		serialDev:       "/dev/null",
		baud:            921600,
		serialReadTO:    50 * time.Millisecond,
		localMAC:        "02:00:00:00:00:01",
		logFormat:       "text",
		logLevel:        "info",
		logMetricsEvery: 0,
	}

	os.Setenv("AIRSCHED_STA_BACKEND", "serial")
	os.Setenv("AIRSCHED_STA_BAUD", "115200")
	os.Setenv("AIRSCHED_STA_SERIAL_READ_TIMEOUT", "100ms")
	os.Setenv("AIRSCHED_STA_LOG_METRICS_INTERVAL", "5s")
	t.Cleanup(func() {
		os.Unsetenv("AIRSCHED_STA_BACKEND")
		os.Unsetenv("AIRSCHED_STA_BAUD")
		os.Unsetenv("AIRSCHED_STA_SERIAL_READ_TIMEOUT")
		os.Unsetenv("AIRSCHED_STA_LOG_METRICS_INTERVAL")
	})
	if err := applyEnvOverrides(base, map[string]struct{}{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.backend != "serial" {
		t.Fatalf("expected backend override, got %s", base.backend)
	}
	if base.baud != 115200 {
		t.Fatalf("expected baud override, got %d", base.baud)
	}
	if base.serialReadTO != 100*time.Millisecond {
		t.Fatalf("expected serialReadTO 100ms got %v", base.serialReadTO)
	}
	if base.logMetricsEvery != 5*time.Second {
		t.Fatalf("expected logMetricsEvery 5s got %v", base.logMetricsEvery)
	}
}

func TestApplyEnvOverrides_FlagPrecedence(t *testing.T) {
	base := &appConfig{baud: 921600}
	os.Setenv("AIRSCHED_STA_BAUD", "115200")
	t.Cleanup(func() { os.Unsetenv("AIRSCHED_STA_BAUD") })
	// Simulate user passed --baud flag (so env should be ignored)
	if err := applyEnvOverrides(base, map[string]struct{}{"baud": {}}); err != nil {
		t.Fatalf("err: %v", err)
	}
	if base.baud != 921600 {
		t.Fatalf("expected baud unchanged 921600 got %d", base.baud)
	}
}

func TestApplyEnvOverrides_BadInt(t *testing.T) {
	base := &appConfig{baud: 921600}
	os.Setenv("AIRSCHED_STA_BAUD", "notint")
	t.Cleanup(func() { os.Unsetenv("AIRSCHED_STA_BAUD") })
	if err := applyEnvOverrides(base, map[string]struct{}{}); err == nil {
		t.Fatalf("expected error for bad integer")
	}
}

func TestValidate_Backend(t *testing.T) {
	base := &appConfig{
		backend: "carrier-pigeon", udpRemote: "x", baud: 1,
		serialReadTO: time.Millisecond, logFormat: "text", logLevel: "info",
	}
	if err := base.validate(); err == nil {
		t.Fatalf("expected invalid backend error")
	}
	base.backend = "udp"
	if err := base.validate(); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
}
