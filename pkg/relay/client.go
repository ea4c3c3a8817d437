package relay

import (
	"context"
	"fmt"
	"strings"

	"github.com/teslashibe/go-teach/internal/httpc"
)

// FetchStats queries a running relay at base (http://host:port).
// Commands use it to check the relay is reachable before subscribing.
func FetchStats(ctx context.Context, base string) (Stats, error) {
	var st Stats
	if err := httpc.GetJSON(ctx, strings.TrimRight(base, "/")+"/api/stats", &st); err != nil {
		return Stats{}, fmt.Errorf("relay stats: %w", err)
	}
	return st, nil
}
