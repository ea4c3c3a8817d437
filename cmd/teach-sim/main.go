// teach-sim stands in for the robot host, and optionally the VR controller,
// so teach-teleop and teach-env can run without hardware.
//
// It serves the control endpoint on the configured control port and
// publishes robot state, tactile readings and camera frames to the relay.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-teach/internal/config"
	"github.com/teslashibe/go-teach/internal/log"
	"github.com/teslashibe/go-teach/pkg/relay"
	"github.com/teslashibe/go-teach/pkg/sim"
	"github.com/teslashibe/go-teach/pkg/transport"
)

type options struct {
	hz         float64
	controller bool
	radius     float64
	lap        time.Duration
}

func main() {
	path := flag.String("config", "", "YAML config file")
	level := flag.String("log-level", "", "Log level: debug, info, warn, error")
	var opts options
	flag.Float64Var(&opts.hz, "hz", 30, "Publish rate for state, tactile and camera topics")
	flag.BoolVar(&opts.controller, "controller", false, "Also publish a scripted VR controller")
	flag.Float64Var(&opts.radius, "radius", 0.05, "Scripted controller circle radius (m)")
	flag.DurationVar(&opts.lap, "lap", 8*time.Second, "Scripted controller lap time")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(2)
	}
	if *level != "" {
		cfg.LogLevel = *level
	}
	if opts.hz <= 0 {
		fmt.Fprintln(os.Stderr, "❌ -hz must be positive")
		os.Exit(2)
	}
	log.Init(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, opts); err != nil {
		log.Error("sim failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts options) (err error) {
	logger := log.Component("sim")

	st, err := relay.FetchStats(ctx, cfg.RelayHTTPURL())
	if err != nil {
		return err
	}
	logger.Info("relay reachable", "url", cfg.RelayURL(), "topics", st.Topics)

	hcfg := sim.HostConfig{
		Home:        sim.DefaultHostConfig().Home,
		SensorKey:   cfg.SensorKey,
		SensorWidth: cfg.Env.TactileWidth(),
		Cameras:     cfg.Cameras.Count,
		Width:       cfg.Env.Width,
		Height:      cfg.Env.Height,
	}
	host := sim.NewHost(hcfg, logger)

	out, err := openOutputs(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, out.Close()) }()

	mux := http.NewServeMux()
	mux.Handle(cfg.ControlPath, transport.ReplyHandler(host.Handle, logger))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ControlPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	var ctrlPub *transport.Publisher
	if opts.controller {
		if ctrlPub, err = transport.Publish(ctx, transport.PubURL(cfg.RelayURL(), cfg.Topics.Controller), transport.Options{}); err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, ctrlPub.Close()) }()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("control endpoint listening", "addr", srv.Addr, "path", cfg.ControlPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return host.Stream(gctx, opts.hz, out)
	})
	if ctrlPub != nil {
		ctrl := sim.NewController(opts.radius, opts.lap, nil)
		logger.Info("scripted controller publishing", "topic", cfg.Topics.Controller, "radius", opts.radius, "lap", opts.lap)
		g.Go(func() error {
			return ctrl.Stream(gctx, opts.hz, ctrlPub)
		})
	}

	err = g.Wait()
	logger.Info("sim stopped", "actions", host.Actions())
	return err
}

// openOutputs connects a publisher per streamed topic; on failure the ones
// already open are closed.
func openOutputs(ctx context.Context, cfg *config.Config) (sim.Outputs, error) {
	var out sim.Outputs
	open := func(topic string) (*transport.Publisher, error) {
		return transport.Publish(ctx, transport.PubURL(cfg.RelayURL(), topic), transport.Options{})
	}

	pub, err := open(cfg.Topics.RobotState)
	if err != nil {
		return out, err
	}
	out.State = pub

	if cfg.Env.Tactile {
		pub, err := open(cfg.Topics.Tactile)
		if err != nil {
			return out, multierr.Append(err, out.Close())
		}
		out.Tactile = pub
	}

	for i := 0; i < cfg.Cameras.Count; i++ {
		pub, err := open(cfg.Cameras.Topic(i))
		if err != nil {
			return out, multierr.Append(err, out.Close())
		}
		out.Cameras = append(out.Cameras, pub)
	}
	return out, nil
}
