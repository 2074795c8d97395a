package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/airsched/go-airsched-server/internal/class"
	"github.com/airsched/go-airsched-server/internal/producer"
	"github.com/airsched/go-airsched-server/internal/sched"
)

// Validation ranges for the configuration surface.
const (
	MinPeriodMs = 100
	MaxPeriodMs = 10000

	MinDeadlineRatio = 0.8
	MaxDeadlineRatio = 4.0

	MinPacketCount = 1
	MaxPacketCount = 200

	MinThresholdMs = 50
	MaxThresholdMs = 15000

	// TX power in 0.25 dBm units.
	MinTxPower = 8
	MaxTxPower = 84
)

// ClassSpec configures one periodic class.
type ClassSpec struct {
	PeriodMs    uint32 `yaml:"period_ms"`
	DeadlineMs  uint32 `yaml:"deadline_ms"`
	DataType    string `yaml:"data_type"`
	PacketCount uint16 `yaml:"packet_count"`
}

// BurstSpec configures the randomized aspiration class.
type BurstSpec struct {
	Enabled            bool   `yaml:"enabled"`
	DataType           string `yaml:"data_type"`
	ElementCount       uint16 `yaml:"element_count"`
	RelativeDeadlineMs uint32 `yaml:"relative_deadline_ms"`
	MinIntervalMs      uint32 `yaml:"min_interval_ms"`
	MaxIntervalMs      uint32 `yaml:"max_interval_ms"`
	BurstActivationMs  uint32 `yaml:"burst_activation_ms"`
	BurstIntervalMs    uint32 `yaml:"burst_interval_ms"`
	BurstDurationMs    uint32 `yaml:"burst_duration_ms"`
	BurstEnabled       bool   `yaml:"burst_enabled"`
}

// SchedulerSpec configures the emission gate.
type SchedulerSpec struct {
	ProcessingThresholdMs uint32 `yaml:"processing_threshold_ms"`
	TickMs                uint32 `yaml:"tick_ms"`
}

// LinkSpec carries the radio options the link backend consumes opaquely.
type LinkSpec struct {
	TxPower               int      `yaml:"tx_power"` // 0.25 dBm units
	PowerSaveMode         string   `yaml:"power_save_mode"`
	Protocols             []string `yaml:"protocols"`
	Disable11bRates       bool     `yaml:"disable_11b_rates"`
	AutoTxPower           bool     `yaml:"auto_tx_power"`
	AutoTxPowerIntervalMs uint32   `yaml:"auto_tx_power_interval_ms"`
	RSSIExcellent         int8     `yaml:"rssi_excellent"`
	RSSIGood              int8     `yaml:"rssi_good"`
	RSSIFair              int8     `yaml:"rssi_fair"`
}

// File is the whole YAML configuration document.
type File struct {
	Classes   map[string]ClassSpec `yaml:"classes"`
	Burst     BurstSpec            `yaml:"burst"`
	Scheduler SchedulerSpec        `yaml:"scheduler"`
	Link      LinkSpec             `yaml:"link"`
}

var classKeys = map[string]class.ID{
	"class1": class.C1,
	"class2": class.C2,
	"class3": class.C3,
}

// Default returns a runnable configuration mirroring the firmware defaults.
func Default() *File {
	return &File{
		Classes: map[string]ClassSpec{
			"class1": {PeriodMs: 3000, DeadlineMs: 6000, DataType: "i32", PacketCount: 10},
			"class2": {PeriodMs: 5000, DeadlineMs: 10000, DataType: "f32", PacketCount: 8},
			"class3": {PeriodMs: 6000, DeadlineMs: 10000, DataType: "i16", PacketCount: 12},
		},
		Burst: BurstSpec{
			Enabled:            true,
			DataType:           "i8",
			ElementCount:       16,
			RelativeDeadlineMs: 2000,
			MinIntervalMs:      500,
			MaxIntervalMs:      2000,
			BurstActivationMs:  30000,
			BurstIntervalMs:    100,
			BurstDurationMs:    5000,
			BurstEnabled:       true,
		},
		Scheduler: SchedulerSpec{ProcessingThresholdMs: 1000, TickMs: 50},
		Link: LinkSpec{
			TxPower:               52,
			PowerSaveMode:         "none",
			Protocols:             []string{"11b", "11g", "11n"},
			AutoTxPower:           false,
			AutoTxPowerIntervalMs: 5000,
			RSSIExcellent:         -55,
			RSSIGood:              -67,
			RSSIFair:              -78,
		},
	}
}

// Load reads and validates a YAML configuration file.
func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config read: %w", err)
	}
	f := Default()
	if err := yaml.Unmarshal(b, f); err != nil {
		return nil, fmt.Errorf("config parse: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks every range the configuration surface promises.
func (f *File) Validate() error {
	for key := range f.Classes {
		if _, ok := classKeys[key]; !ok {
			return fmt.Errorf("config: unknown class %q (use class1..class3)", key)
		}
	}
	for key := range classKeys {
		cs, ok := f.Classes[key]
		if !ok {
			return fmt.Errorf("config: missing %s", key)
		}
		if cs.PeriodMs < MinPeriodMs || cs.PeriodMs > MaxPeriodMs {
			return fmt.Errorf("config: %s period_ms %d outside [%d,%d]", key, cs.PeriodMs, MinPeriodMs, MaxPeriodMs)
		}
		ratio := float64(cs.DeadlineMs) / float64(cs.PeriodMs)
		if ratio < MinDeadlineRatio || ratio > MaxDeadlineRatio {
			return fmt.Errorf("config: %s deadline/period ratio %.2f outside [%.1f,%.1f]", key, ratio, MinDeadlineRatio, MaxDeadlineRatio)
		}
		if cs.PacketCount < MinPacketCount || cs.PacketCount > MaxPacketCount {
			return fmt.Errorf("config: %s packet_count %d outside [%d,%d]", key, cs.PacketCount, MinPacketCount, MaxPacketCount)
		}
		if _, ok := class.ParseDataType(cs.DataType); !ok {
			return fmt.Errorf("config: %s data_type %q invalid", key, cs.DataType)
		}
	}
	if f.Scheduler.ProcessingThresholdMs < MinThresholdMs || f.Scheduler.ProcessingThresholdMs > MaxThresholdMs {
		return fmt.Errorf("config: processing_threshold_ms %d outside [%d,%d]", f.Scheduler.ProcessingThresholdMs, MinThresholdMs, MaxThresholdMs)
	}
	if f.Scheduler.TickMs == 0 {
		return fmt.Errorf("config: tick_ms must be > 0")
	}
	if f.Burst.Enabled {
		if _, ok := class.ParseDataType(f.Burst.DataType); !ok {
			return fmt.Errorf("config: burst data_type %q invalid", f.Burst.DataType)
		}
		if f.Burst.ElementCount < MinPacketCount || f.Burst.ElementCount > MaxPacketCount {
			return fmt.Errorf("config: burst element_count %d outside [%d,%d]", f.Burst.ElementCount, MinPacketCount, MaxPacketCount)
		}
		if f.Burst.MinIntervalMs == 0 || f.Burst.MaxIntervalMs < f.Burst.MinIntervalMs {
			return fmt.Errorf("config: burst interval range [%d,%d] invalid", f.Burst.MinIntervalMs, f.Burst.MaxIntervalMs)
		}
		if f.Burst.RelativeDeadlineMs == 0 {
			return fmt.Errorf("config: burst relative_deadline_ms must be > 0")
		}
		if f.Burst.BurstEnabled && f.Burst.BurstIntervalMs == 0 {
			return fmt.Errorf("config: burst_interval_ms must be > 0 when burst_enabled")
		}
	}
	if f.Link.TxPower < MinTxPower || f.Link.TxPower > MaxTxPower {
		return fmt.Errorf("config: tx_power %d outside [%d,%d]", f.Link.TxPower, MinTxPower, MaxTxPower)
	}
	switch f.Link.PowerSaveMode {
	case "none", "min_modem", "max_modem":
	default:
		return fmt.Errorf("config: power_save_mode %q invalid", f.Link.PowerSaveMode)
	}
	for _, p := range f.Link.Protocols {
		switch p {
		case "11b", "11g", "11n":
		default:
			return fmt.Errorf("config: protocol %q invalid", p)
		}
	}
	if f.Link.AutoTxPower && f.Link.AutoTxPowerIntervalMs == 0 {
		return fmt.Errorf("config: auto_tx_power_interval_ms must be > 0 when auto_tx_power")
	}
	if !(f.Link.RSSIExcellent > f.Link.RSSIGood && f.Link.RSSIGood > f.Link.RSSIFair) {
		return fmt.Errorf("config: rssi thresholds must decrease excellent > good > fair")
	}
	return nil
}

// SchedulerConfig converts the file into the scheduler's runtime config.
func (f *File) SchedulerConfig() sched.Config {
	var cfg sched.Config
	for key, id := range classKeys {
		cs := f.Classes[key]
		dt, _ := class.ParseDataType(cs.DataType)
		cfg.Classes[id] = sched.ClassConfig{
			Type:       dt,
			PeriodMs:   cs.PeriodMs,
			DeadlineMs: cs.DeadlineMs,
			Count:      cs.PacketCount,
		}
	}
	bt, _ := class.ParseDataType(f.Burst.DataType)
	cfg.Classes[class.Burst] = sched.ClassConfig{
		Type:       bt,
		DeadlineMs: f.Burst.RelativeDeadlineMs,
		Count:      f.Burst.ElementCount,
	}
	cfg.ThresholdMs = f.Scheduler.ProcessingThresholdMs
	cfg.TickInterval = time.Duration(f.Scheduler.TickMs) * time.Millisecond
	return cfg
}

// BurstConfig converts the file into the burst producer's runtime config.
func (f *File) BurstConfig() producer.BurstConfig {
	return producer.BurstConfig{
		Count:         f.Burst.ElementCount,
		MinInterval:   time.Duration(f.Burst.MinIntervalMs) * time.Millisecond,
		MaxInterval:   time.Duration(f.Burst.MaxIntervalMs) * time.Millisecond,
		Activation:    time.Duration(f.Burst.BurstActivationMs) * time.Millisecond,
		BurstInterval: time.Duration(f.Burst.BurstIntervalMs) * time.Millisecond,
		BurstDuration: time.Duration(f.Burst.BurstDurationMs) * time.Millisecond,
		BurstEnabled:  f.Burst.BurstEnabled,
	}
}
