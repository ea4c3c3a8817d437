// teach-env runs the observation env against the robot host, or without
// hardware with -dry-run, and prints the channels of every record.
//
// Actions come from a YAML list of [x, y, z, qx, qy, qz, qw, gripper] rows;
// without one the env holds the current pose for -steps steps.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/disintegration/imaging"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-teach/internal/config"
	"github.com/teslashibe/go-teach/internal/log"
	"github.com/teslashibe/go-teach/pkg/camera"
	"github.com/teslashibe/go-teach/pkg/camera/cvdecode"
	"github.com/teslashibe/go-teach/pkg/observe"
	"github.com/teslashibe/go-teach/pkg/relay"
	"github.com/teslashibe/go-teach/pkg/transport"
)

type options struct {
	actions string
	steps   int
	render  string
}

func main() {
	path := flag.String("config", "", "YAML config file")
	host := flag.String("host", "", "Robot host (overrides "+config.EnvHost+")")
	dryRun := flag.Bool("dry-run", false, "Run without hardware")
	noTactile := flag.Bool("no-tactile", false, "Disable tactile sensing")
	level := flag.String("log-level", "", "Log level: debug, info, warn, error")
	var opts options
	flag.StringVar(&opts.actions, "actions", "", "YAML file of actions to step through")
	flag.IntVar(&opts.steps, "steps", 10, "Steps to hold the current pose when no actions are given")
	flag.StringVar(&opts.render, "render", "", "Write the last camera mosaic to this image file")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(2)
	}
	if *host != "" {
		cfg.Host = *host
	}
	if *dryRun {
		cfg.Env.UseRobot = false
	}
	if *noTactile {
		cfg.Env.Tactile = false
	}
	if *level != "" {
		cfg.LogLevel = *level
	}
	log.Init(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, opts); err != nil {
		log.Error("env failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts options) (err error) {
	logger := log.Component("env")

	var hw *observe.Hardware
	if cfg.Env.UseRobot {
		if hw, err = connect(ctx, cfg, logger); err != nil {
			return err
		}
	}
	env, err := observe.New(cfg.Env, hw, logger)
	if err != nil {
		if hw != nil {
			err = multierr.Append(err, closeHardware(hw))
		}
		return err
	}
	defer func() { err = multierr.Append(err, env.Close()) }()

	actions, err := loadActions(opts.actions)
	if err != nil {
		return err
	}

	rec, err := env.Reset(ctx)
	if err != nil {
		return err
	}
	printRecord(0, rec)

	for i := 0; ctx.Err() == nil; i++ {
		var action observe.EnvAction
		switch {
		case actions != nil && i < len(actions):
			action = actions[i]
		case actions == nil && i < opts.steps:
			if action, err = holdAction(ctx, env); err != nil {
				return err
			}
		default:
			return render(env, cfg.Env, opts.render)
		}
		if rec, err = env.Step(ctx, action); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		printRecord(i+1, rec)
	}
	return nil
}

// connect opens every hardware source; on failure the ones already open are closed.
func connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*observe.Hardware, error) {
	st, err := relay.FetchStats(ctx, cfg.RelayHTTPURL())
	if err != nil {
		return nil, err
	}
	logger.Info("relay reachable", "url", cfg.RelayURL(), "publishers", st.Publishers)

	opts := transport.Options{ReplyTimeout: cfg.ReplyTimeout}
	req, err := transport.DialRequester(ctx, cfg.ControlURL(), opts)
	if err != nil {
		return nil, fmt.Errorf("connect control: %w", err)
	}
	hw := &observe.Hardware{Robot: transport.NewActionClient(req, cfg.SensorKey)}

	cams, err := camera.Open(ctx, cfg.RelayURL(), cfg.Cameras, transport.Options{ReplyTimeout: cfg.ReplyTimeout, Buffer: 1}, cvdecode.Decode)
	if err != nil {
		return nil, multierr.Append(err, hw.Robot.Close())
	}
	hw.Cameras = cams.Sources()

	if cfg.Env.Tactile {
		sub, err := transport.Subscribe(ctx, transport.SubURL(cfg.RelayURL(), cfg.Topics.Tactile), transport.Options{ReplyTimeout: cfg.ReplyTimeout, Buffer: 1})
		if err != nil {
			return nil, multierr.Combine(err, hw.Robot.Close(), cams.Close())
		}
		hw.Tactile = transport.NewTactileSubscriber(sub, cfg.SensorKey)
	}
	return hw, nil
}

// closeHardware releases sources opened by connect when the env could not
// take ownership of them.
func closeHardware(hw *observe.Hardware) error {
	err := hw.Robot.Close()
	for _, c := range hw.Cameras {
		if cl, ok := c.(io.Closer); ok {
			err = multierr.Append(err, cl.Close())
		}
	}
	if cl, ok := hw.Tactile.(io.Closer); ok {
		err = multierr.Append(err, cl.Close())
	}
	return err
}

// holdAction commands the current pose with the gripper unchanged.
func holdAction(ctx context.Context, env *observe.Env) (observe.EnvAction, error) {
	if !env.Hardware() {
		return observe.EnvAction{Gripper: 1}, nil
	}
	st, err := env.GetState(ctx)
	if err != nil {
		return observe.EnvAction{}, err
	}
	a := observe.EnvAction{Position: st.Position, Orientation: st.Orientation, Gripper: 1}
	if st.Gripper > 0 {
		a.Gripper = 0
	}
	return a, nil
}

func loadActions(path string) ([]observe.EnvAction, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read actions: %w", err)
	}
	var rows [][]float64
	if err := yaml.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse actions: %w", err)
	}
	out := make([]observe.EnvAction, 0, len(rows))
	for i, row := range rows {
		a, err := observe.ActionFromSlice(row)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i+1, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func printRecord(step int, rec *observe.Record) {
	features, _ := rec.Float64s(observe.ChannelFeatures)
	fmt.Printf("step %3d  pos=%.3f,%.3f,%.3f  quat=%.3f,%.3f,%.3f,%.3f  gripper=%+.0f",
		step, features[0], features[1], features[2],
		features[3], features[4], features[5], features[6], features[7])
	if absent := rec.Absent(); len(absent) > 0 {
		fmt.Printf("  absent=%v", absent)
	}
	fmt.Println()
}

func render(env *observe.Env, cfg observe.Config, path string) error {
	if path == "" {
		return nil
	}
	img, err := env.Render(cfg.Width*2, cfg.Height*2)
	if err != nil {
		return err
	}
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("save render: %w", err)
	}
	log.Info("render saved", "path", path)
	return nil
}
