// teach-teleop drives a robot arm from a VR controller.
//
// Controller samples and robot state arrive on relay topics; actions go to the
// robot host's control endpoint. Ctrl+C stops the loop and, with -record,
// saves the demonstration.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/teslashibe/go-teach/internal/config"
	"github.com/teslashibe/go-teach/internal/log"
	"github.com/teslashibe/go-teach/pkg/relay"
	"github.com/teslashibe/go-teach/pkg/teleop"
	"github.com/teslashibe/go-teach/pkg/transport"
	"github.com/teslashibe/go-teach/pkg/web"
)

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(2)
	}
	log.Init(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Error("teleop failed", "error", err)
		os.Exit(1)
	}
}

// parseFlags loads the config file and applies command line overrides.
func parseFlags() (*config.Config, error) {
	path := flag.String("config", "", "YAML config file")
	host := flag.String("host", "", "Robot host (overrides "+config.EnvHost+")")
	hz := flag.Float64("hz", 0, "Control frequency in Hz")
	record := flag.Bool("record", false, "Record the demonstration")
	recordDir := flag.String("record-dir", "", "Directory for recorded demonstrations")
	dashboard := flag.String("dashboard", "", "Serve the status dashboard on this address")
	level := flag.String("log-level", "", "Log level: debug, info, warn, error")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		return nil, err
	}
	if *host != "" {
		cfg.Host = *host
	}
	if *hz > 0 {
		cfg.Teleop.Hz = *hz
	}
	if *record {
		cfg.Record.Enabled = true
	}
	if *recordDir != "" {
		cfg.Record.Dir = *recordDir
	}
	if *dashboard != "" {
		cfg.Dashboard.Enabled, cfg.Dashboard.Addr = true, *dashboard
	}
	if *level != "" {
		cfg.LogLevel = *level
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := log.Component("teleop")

	tc, err := cfg.TeleopConfig()
	if err != nil {
		return err
	}

	st, err := relay.FetchStats(ctx, cfg.RelayHTTPURL())
	if err != nil {
		return err
	}
	logger.Info("relay reachable", "url", cfg.RelayURL(), "publishers", st.Publishers)

	period := time.Duration(float64(time.Second) / tc.Hz)
	subOpts := transport.Options{ReplyTimeout: period, Buffer: 1}

	controllerSub, err := transport.Subscribe(ctx, transport.SubURL(cfg.RelayURL(), cfg.Topics.Controller), subOpts)
	if err != nil {
		return fmt.Errorf("subscribe controller: %w", err)
	}
	controller := transport.NewControllerSubscriber(controllerSub)

	stateSub, err := transport.Subscribe(ctx, transport.SubURL(cfg.RelayURL(), cfg.Topics.RobotState), transport.Options{ReplyTimeout: cfg.ReplyTimeout, Buffer: 1})
	if err != nil {
		controller.Close()
		return fmt.Errorf("subscribe robot state: %w", err)
	}
	states := transport.NewStateSubscriber(stateSub)

	req, err := transport.DialRequester(ctx, cfg.ControlURL(), transport.Options{ReplyTimeout: cfg.ReplyTimeout})
	if err != nil {
		controller.Close()
		states.Close()
		return fmt.Errorf("connect control: %w", err)
	}
	actions := transport.NewActionClient(req, cfg.SensorKey)

	op, err := teleop.NewOperator(tc, actions, states, logger)
	if err != nil {
		controller.Close()
		states.Close()
		actions.Close()
		return err
	}

	var rec *teleop.Recorder
	if cfg.Record.Enabled {
		rec = teleop.NewRecorder()
		op.SetRecorder(rec)
	}

	if cfg.Dashboard.Enabled {
		srv := web.NewServer(cfg.Dashboard.Addr, op, logger)
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Warn("dashboard stopped", "error", err)
			}
		}()
		logger.Info("dashboard", "addr", cfg.Dashboard.Addr)
	}

	loop := teleop.NewLoop(op, controller, teleop.NewFrequencyTimer(tc.Hz, clock.New()), logger, controller, states, actions)
	runErr := loop.Run(ctx)

	if rec != nil && rec.Len() > 0 {
		saveDemonstration(rec, cfg.Record.Dir, logger)
	}
	return runErr
}

func saveDemonstration(rec *teleop.Recorder, dir string, logger *slog.Logger) {
	num := nextDemonstration(dir)
	sum, err := rec.Save(dir, num)
	if err != nil {
		logger.Error("save demonstration", "error", err)
		return
	}
	logger.Info("demonstration saved",
		"path", sum.Path,
		"steps", sum.Steps,
		"duration", sum.Duration.Round(time.Millisecond),
		"hz", fmt.Sprintf("%.1f", sum.Frequency))
}

// nextDemonstration returns the first unused demonstration number in dir.
func nextDemonstration(dir string) int {
	for n := 1; ; n++ {
		if _, err := os.Stat(filepath.Join(dir, fmt.Sprintf("demonstration_%d", n))); os.IsNotExist(err) {
			return n
		}
	}
}
