// teach-relay fans controller, robot state, camera and tactile messages out
// to topic subscribers.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-teach/internal/config"
	"github.com/teslashibe/go-teach/internal/log"
	"github.com/teslashibe/go-teach/pkg/relay"
)

func main() {
	port := flag.Int("port", config.DefaultRelayPort, "Listen port")
	bind := flag.String("bind", "0.0.0.0", "Listen address")
	level := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	statsEvery := flag.Duration("stats", 30*time.Second, "Stats log interval (0 disables)")
	flag.Parse()

	log.Init(*level)
	logger := log.Component("relay")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	r := relay.New(logger)
	app := r.NewApp()

	addr := fmt.Sprintf("%s:%d", *bind, *port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Error("listen", "addr", addr, "error", err)
		os.Exit(1)
	}
	logger.Info("relay listening", "addr", addr)

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		app.Shutdown()
	}()
	if *statsEvery > 0 {
		go logStats(ctx, r, *statsEvery)
	}

	if err := app.Listener(ln); err != nil {
		log.Error("relay stopped", "error", err)
		os.Exit(1)
	}
}

func logStats(ctx context.Context, r *relay.Relay, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := r.Stats()
			log.Info("relay stats",
				"topics", st.Topics,
				"subscribers", st.Subscribers,
				"published", st.MessagesPublished,
				"dropped", st.MessagesDropped)
		}
	}
}
