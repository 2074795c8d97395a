package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
)

type appConfig struct {
	configPath   string
	backend      string
	udpRemote    string
	rawIf        string
	serialDev    string
	baud         int
	serialReadTO time.Duration
	localMAC     string
	peerMAC      string
	logFormat    string
	logLevel     string
	metricsAddr  string

	logMetricsEvery time.Duration
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	configPath := flag.String("config", "", "Class/burst/link YAML configuration (defaults used when empty)")
	backend := flag.String("backend", "udp", "Link backend: udp|rawsock|serial")
	udpRemote := flag.String("udp-remote", "127.0.0.1:5800", "AP address (when --backend=udp)")
	rawIf := flag.String("raw-if", "mon0", "Injection interface (when --backend=rawsock)")
	serialDev := flag.String("serial", "/dev/ttyUSB0", "Serial device path (when --backend=serial)")
	baud := flag.Int("baud", 921600, "Serial baud rate")
	serialReadTO := flag.Duration("serial-read-timeout", 50*time.Millisecond, "Serial read timeout")
	localMAC := flag.String("local-mac", "02:00:00:00:00:01", "Local MAC address written into frames")
	peerMAC := flag.String("peer-mac", "", "AP MAC/BSSID; empty means broadcast")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	// Track which flags were explicitly set to give them precedence over env.
	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })
	cfg.configPath = *configPath
	cfg.backend = *backend
	cfg.udpRemote = *udpRemote
	cfg.rawIf = *rawIf
	cfg.serialDev = *serialDev
	cfg.baud = *baud
	cfg.serialReadTO = *serialReadTO
	cfg.localMAC = *localMAC
	cfg.peerMAC = *peerMAC
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.logMetricsEvery = *logMetricsEvery

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// validate performs basic semantic validation of the parsed configuration.
// It does not attempt to open devices, only checks values/ranges. The YAML
// file has its own validator.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	switch c.backend {
	case "udp", "rawsock", "serial":
	default:
		return fmt.Errorf("invalid backend: %s", c.backend)
	}
	if c.backend == "udp" && c.udpRemote == "" {
		return fmt.Errorf("udp-remote required for udp backend")
	}
	if c.baud <= 0 {
		return fmt.Errorf("baud must be > 0 (got %d)", c.baud)
	}
	if c.serialReadTO <= 0 {
		return fmt.Errorf("serial-read-timeout must be > 0")
	}
	return nil
}

// applyEnvOverrides maps AIRSCHED_STA_* environment variables to config
// fields unless a corresponding flag was explicitly set. Empty values are
// ignored, except AIRSCHED_STA_METRICS, where an empty value clears the
// metrics address. Duration accepts Go time.ParseDuration format.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }
	str := func(flagName, env string, dst *string) {
		if _, ok := set[flagName]; ok {
			return
		}
		if v, ok := get(env); ok && v != "" {
			*dst = v
		}
	}
	str("config", "AIRSCHED_STA_CONFIG", &c.configPath)
	str("backend", "AIRSCHED_STA_BACKEND", &c.backend)
	str("udp-remote", "AIRSCHED_STA_UDP_REMOTE", &c.udpRemote)
	str("raw-if", "AIRSCHED_STA_RAW_IF", &c.rawIf)
	str("serial", "AIRSCHED_STA_SERIAL", &c.serialDev)
	str("local-mac", "AIRSCHED_STA_LOCAL_MAC", &c.localMAC)
	str("peer-mac", "AIRSCHED_STA_PEER_MAC", &c.peerMAC)
	str("log-format", "AIRSCHED_STA_LOG_FORMAT", &c.logFormat)
	str("log-level", "AIRSCHED_STA_LOG_LEVEL", &c.logLevel)
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("AIRSCHED_STA_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["baud"]; !ok {
		if v, ok := get("AIRSCHED_STA_BAUD"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.baud = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid AIRSCHED_STA_BAUD: %w", err)
			}
		}
	}
	if _, ok := set["serial-read-timeout"]; !ok {
		if v, ok := get("AIRSCHED_STA_SERIAL_READ_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.serialReadTO = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid AIRSCHED_STA_SERIAL_READ_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("AIRSCHED_STA_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid AIRSCHED_STA_LOG_METRICS_INTERVAL: %w", err)
			}
		}
	}
	return firstErr
}
