package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/airsched/go-airsched-server/internal/class"
	"github.com/airsched/go-airsched-server/internal/config"
	"github.com/airsched/go-airsched-server/internal/metrics"
	"github.com/airsched/go-airsched-server/internal/power"
	"github.com/airsched/go-airsched-server/internal/producer"
	"github.com/airsched/go-airsched-server/internal/sched"
	"github.com/airsched/go-airsched-server/internal/wire"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("station-server %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(1)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)

	fileCfg := config.Default()
	if cfg.configPath != "" {
		var err error
		fileCfg, err = config.Load(cfg.configPath)
		if err != nil {
			l.Error("config_load_error", "path", cfg.configPath, "error", err)
			os.Exit(1)
		}
		l.Info("config_loaded", "path", cfg.configPath)
	}

	localMAC, err := wire.ParseMAC(cfg.localMAC)
	if err != nil {
		l.Error("bad_local_mac", "value", cfg.localMAC, "error", err)
		os.Exit(1)
	}
	peerMAC := wire.Broadcast
	if cfg.peerMAC != "" {
		if peerMAC, err = wire.ParseMAC(cfg.peerMAC); err != nil {
			l.Error("bad_peer_mac", "value", cfg.peerMAC, "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	// Radio bring-up owns these; they are recorded here so the link profile
	// in effect is visible next to the scheduler's own settings.
	l.Info("link_profile",
		"tx_power_qdbm", fileCfg.Link.TxPower,
		"power_save", fileCfg.Link.PowerSaveMode,
		"protocols", strings.Join(fileCfg.Link.Protocols, ","),
		"disable_11b_rates", fileCfg.Link.Disable11bRates,
		"auto_tx_power", fileCfg.Link.AutoTxPower)

	// The power setter is the radio's knob; the link stand-ins record intent.
	pc := power.New(
		power.SetterFunc(func(lvl power.Level) error {
			l.Info("tx_power_apply", "level", lvl.String())
			return nil
		}),
		power.Thresholds{
			Excellent: fileCfg.Link.RSSIExcellent,
			Good:      fileCfg.Link.RSSIGood,
			Fair:      fileCfg.Link.RSSIFair,
		},
		time.Duration(fileCfg.Link.AutoTxPowerIntervalMs)*time.Millisecond,
	)

	tx, cleanup, berr := initBackend(ctx, cfg, pc, l, &wg)
	if berr != nil {
		l.Error("backend_init_error", "error", berr)
		return
	}

	schedCfg := fileCfg.SchedulerConfig()
	s := sched.New(schedCfg,
		sched.WithTransmitter(tx),
		sched.WithRole(wire.RoleStation),
		sched.WithLocalMAC(localMAC),
		sched.WithPeerMAC(peerMAC),
		sched.WithLogger(l),
	)
	wg.Add(1)
	go func() { defer wg.Done(); s.Run(ctx) }()

	for _, id := range []class.ID{class.C1, class.C2, class.C3} {
		cc := schedCfg.Classes[id]
		p := producer.NewPeriodic(id, cc.Count, time.Duration(cc.PeriodMs)*time.Millisecond, s)
		wg.Add(1)
		go func() { defer wg.Done(); p.Run(ctx) }()
	}
	if fileCfg.Burst.Enabled {
		b := producer.NewBurst(fileCfg.BurstConfig(), s)
		wg.Add(1)
		go func() { defer wg.Done(); b.Run(ctx) }()
	}
	if fileCfg.Link.AutoTxPower {
		wg.Add(1)
		go func() { defer wg.Done(); pc.Run(ctx) }()
	} else {
		l.Info("auto_tx_power_disabled")
	}

	metrics.SetReadinessFunc(func() bool { return ctx.Err() == nil })
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}
	l.Info("build_info", "version", version, "commit", commit, "date", date)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	l.Info("shutdown_signal", "signal", sig.String())
	cancel()
	cleanup()
	wg.Wait()

	st := s.Stats()
	l.Info("final_stats",
		"points_processed", st.PointsProcessed,
		"packets_transmitted", st.PacketsTransmitted,
		"deadline_misses", st.DeadlineMisses)
}
