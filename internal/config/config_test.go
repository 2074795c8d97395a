package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/airsched/go-airsched-server/internal/class"
)

func writeTemp(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "airsched.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestDefault_Validates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeTemp(t, `
classes:
  class1: {period_ms: 1000, deadline_ms: 2000, data_type: i32, packet_count: 20}
  class2: {period_ms: 5000, deadline_ms: 10000, data_type: f64, packet_count: 4}
  class3: {period_ms: 6000, deadline_ms: 10000, data_type: i16, packet_count: 12}
scheduler:
  processing_threshold_ms: 500
  tick_ms: 25
burst:
  enabled: true
  data_type: i8
  element_count: 32
  relative_deadline_ms: 1500
  min_interval_ms: 200
  max_interval_ms: 900
  burst_activation_ms: 10000
  burst_interval_ms: 50
  burst_duration_ms: 5000
  burst_enabled: true
`)
	f, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg := f.SchedulerConfig()
	if cfg.Classes[class.C1].PeriodMs != 1000 || cfg.Classes[class.C1].Count != 20 {
		t.Fatalf("class1 = %+v", cfg.Classes[class.C1])
	}
	if cfg.Classes[class.C2].Type != class.Float64 {
		t.Fatalf("class2 type = %v", cfg.Classes[class.C2].Type)
	}
	if cfg.Classes[class.Burst].Type != class.Int8 || cfg.Classes[class.Burst].DeadlineMs != 1500 {
		t.Fatalf("burst class = %+v", cfg.Classes[class.Burst])
	}
	if cfg.ThresholdMs != 500 || cfg.TickInterval != 25*time.Millisecond {
		t.Fatalf("scheduler = %+v", cfg)
	}
	bc := f.BurstConfig()
	if bc.MinInterval != 200*time.Millisecond || bc.MaxInterval != 900*time.Millisecond || !bc.BurstEnabled {
		t.Fatalf("burst = %+v", bc)
	}
}

func TestValidate_Ranges(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*File)
		want   string
	}{
		{"period_low", func(f *File) { c := f.Classes["class1"]; c.PeriodMs = 50; f.Classes["class1"] = c }, "period_ms"},
		{"period_high", func(f *File) { c := f.Classes["class1"]; c.PeriodMs = 20000; f.Classes["class1"] = c }, "period_ms"},
		{"ratio_low", func(f *File) { c := f.Classes["class2"]; c.DeadlineMs = 1000; f.Classes["class2"] = c }, "ratio"},
		{"ratio_high", func(f *File) { c := f.Classes["class2"]; c.DeadlineMs = 30000; f.Classes["class2"] = c }, "ratio"},
		{"count_zero", func(f *File) { c := f.Classes["class3"]; c.PacketCount = 0; f.Classes["class3"] = c }, "packet_count"},
		{"count_high", func(f *File) { c := f.Classes["class3"]; c.PacketCount = 500; f.Classes["class3"] = c }, "packet_count"},
		{"bad_type", func(f *File) { c := f.Classes["class1"]; c.DataType = "u128"; f.Classes["class1"] = c }, "data_type"},
		{"threshold_low", func(f *File) { f.Scheduler.ProcessingThresholdMs = 10 }, "processing_threshold_ms"},
		{"threshold_high", func(f *File) { f.Scheduler.ProcessingThresholdMs = 20000 }, "processing_threshold_ms"},
		{"tx_power_low", func(f *File) { f.Link.TxPower = 4 }, "tx_power"},
		{"tx_power_high", func(f *File) { f.Link.TxPower = 100 }, "tx_power"},
		{"power_save", func(f *File) { f.Link.PowerSaveMode = "turbo" }, "power_save_mode"},
		{"protocol", func(f *File) { f.Link.Protocols = []string{"11ax"} }, "protocol"},
		{"burst_interval", func(f *File) { f.Burst.MaxIntervalMs = 100; f.Burst.MinIntervalMs = 200 }, "interval"},
		{"rssi_order", func(f *File) { f.Link.RSSIGood = -40 }, "rssi"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := Default()
			tc.mutate(f)
			err := f.Validate()
			if err == nil {
				t.Fatalf("validation passed")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/airsched.yaml"); err == nil {
		t.Fatalf("expected error")
	}
}
