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
	backend      string
	udpListen    string
	rawIf        string
	serialDev    string
	baud         int
	serialReadTO time.Duration
	localMAC     string
	listenAddr   string
	hubBuffer    int
	hubPolicy    string
	maxClients   int
	handshakeTO  time.Duration
	clientReadTO time.Duration
	mdnsEnable   bool
	mdnsName     string
	logFormat    string
	logLevel     string
	metricsAddr  string

	logMetricsEvery time.Duration
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	backend := flag.String("backend", "udp", "Link backend: udp|rawsock|serial")
	udpListen := flag.String("udp-listen", ":5800", "UDP listen address (when --backend=udp)")
	rawIf := flag.String("raw-if", "mon0", "Capture interface (when --backend=rawsock)")
	serialDev := flag.String("serial", "/dev/ttyUSB0", "Serial device path (when --backend=serial)")
	baud := flag.Int("baud", 921600, "Serial baud rate")
	serialReadTO := flag.Duration("serial-read-timeout", 50*time.Millisecond, "Serial read timeout")
	localMAC := flag.String("local-mac", "02:00:00:00:00:02", "Local MAC address frames must target")
	listen := flag.String("listen", ":20100", "TCP subscriber listen address")
	hubBuf := flag.Int("hub-buffer", 512, "Per-subscriber hub buffer (deliveries)")
	hubPolicy := flag.String("hub-policy", "drop", "Backpressure policy: drop|kick")
	maxClients := flag.Int("max-clients", 0, "Maximum simultaneous subscribers (0 = unlimited)")
	handshakeTO := flag.Duration("handshake-timeout", 3*time.Second, "Subscriber handshake timeout")
	clientReadTO := flag.Duration("client-read-timeout", 60*time.Second, "Per-connection read deadline")
	mdnsEnable := flag.Bool("mdns-enable", false, "Enable mDNS/Avahi advertisement")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default ap-server-<hostname>)")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })
	cfg.backend = *backend
	cfg.udpListen = *udpListen
	cfg.rawIf = *rawIf
	cfg.serialDev = *serialDev
	cfg.baud = *baud
	cfg.serialReadTO = *serialReadTO
	cfg.localMAC = *localMAC
	cfg.listenAddr = *listen
	cfg.hubBuffer = *hubBuf
	cfg.hubPolicy = *hubPolicy
	cfg.maxClients = *maxClients
	cfg.handshakeTO = *handshakeTO
	cfg.clientReadTO = *clientReadTO
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName
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
	switch c.hubPolicy {
	case "drop", "kick":
	default:
		return fmt.Errorf("invalid hub-policy: %s", c.hubPolicy)
	}
	if c.hubBuffer <= 0 {
		return fmt.Errorf("hub-buffer must be > 0 (got %d)", c.hubBuffer)
	}
	if c.baud <= 0 {
		return fmt.Errorf("baud must be > 0 (got %d)", c.baud)
	}
	if c.serialReadTO <= 0 {
		return fmt.Errorf("serial-read-timeout must be > 0")
	}
	if c.handshakeTO <= 0 {
		return fmt.Errorf("handshake-timeout must be > 0")
	}
	if c.clientReadTO <= 0 {
		return fmt.Errorf("client-read-timeout must be > 0")
	}
	if c.maxClients < 0 {
		return fmt.Errorf("max-clients must be >= 0")
	}
	return nil
}

// applyEnvOverrides maps AIRSCHED_AP_* environment variables to config
// fields unless a corresponding flag was explicitly set.
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
	str("backend", "AIRSCHED_AP_BACKEND", &c.backend)
	str("udp-listen", "AIRSCHED_AP_UDP_LISTEN", &c.udpListen)
	str("raw-if", "AIRSCHED_AP_RAW_IF", &c.rawIf)
	str("serial", "AIRSCHED_AP_SERIAL", &c.serialDev)
	str("local-mac", "AIRSCHED_AP_LOCAL_MAC", &c.localMAC)
	str("listen", "AIRSCHED_AP_LISTEN", &c.listenAddr)
	str("hub-policy", "AIRSCHED_AP_HUB_POLICY", &c.hubPolicy)
	str("mdns-name", "AIRSCHED_AP_MDNS_NAME", &c.mdnsName)
	str("log-format", "AIRSCHED_AP_LOG_FORMAT", &c.logFormat)
	str("log-level", "AIRSCHED_AP_LOG_LEVEL", &c.logLevel)
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("AIRSCHED_AP_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	num := func(flagName, env string, dst *int, min int) {
		if _, ok := set[flagName]; ok {
			return
		}
		if v, ok := get(env); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= min {
				*dst = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid %s: %w", env, err)
			}
		}
	}
	num("baud", "AIRSCHED_AP_BAUD", &c.baud, 1)
	num("hub-buffer", "AIRSCHED_AP_HUB_BUFFER", &c.hubBuffer, 1)
	num("max-clients", "AIRSCHED_AP_MAX_CLIENTS", &c.maxClients, 0)
	dur := func(flagName, env string, dst *time.Duration) {
		if _, ok := set[flagName]; ok {
			return
		}
		if v, ok := get(env); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				*dst = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid %s: %w", env, err)
			}
		}
	}
	dur("serial-read-timeout", "AIRSCHED_AP_SERIAL_READ_TIMEOUT", &c.serialReadTO)
	dur("handshake-timeout", "AIRSCHED_AP_HANDSHAKE_TIMEOUT", &c.handshakeTO)
	dur("client-read-timeout", "AIRSCHED_AP_CLIENT_READ_TIMEOUT", &c.clientReadTO)
	if _, ok := set["mdns-enable"]; !ok {
		if v, ok := get("AIRSCHED_AP_MDNS_ENABLE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.mdnsEnable = true
			case "0", "false", "no", "off":
				c.mdnsEnable = false
			}
		}
	}
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("AIRSCHED_AP_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid AIRSCHED_AP_LOG_METRICS_INTERVAL: %w", err)
			}
		}
	}
	return firstErr
}
