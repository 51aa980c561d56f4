package navigation

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/prontuario/proamp/internal/core/domain"
)

const defaultMaxHops = 8

// Guard decides on a single navigation.
type Guard interface {
	Navigate(ctx context.Context, intent domain.NavIntent) domain.Decision
}

// Result is where a navigation committed and how it got there.
type Result struct {
	Route    Route
	FullPath string
	// Trail lists every path visited, the requested one first.
	Trail []string
}

// Navigator follows static aliases and guard redirects until a route is
// allowed.
type Navigator struct {
	table   *Table
	guard   Guard
	log     zerolog.Logger
	maxHops int
}

func NewNavigator(table *Table, guard Guard, log zerolog.Logger) *Navigator {
	return &Navigator{table: table, guard: guard, log: log, maxHops: defaultMaxHops}
}

// Navigate resolves fullPath and returns the committed route.
func (n *Navigator) Navigate(ctx context.Context, fullPath string) (*Result, error) {
	res := &Result{}
	current := fullPath
	for hop := 0; hop <= n.maxHops; hop++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res.Trail = append(res.Trail, current)

		route, intent := n.table.Resolve(current)
		if route.Redirect != "" {
			current = route.Redirect
			continue
		}

		d := n.guard.Navigate(ctx, intent)
		if d.Allow {
			res.Route = route
			res.FullPath = current
			return res, nil
		}

		next, err := n.table.PathOf(d.Redirect, d.Query)
		if err != nil {
			return nil, fmt.Errorf("navigate %s: %w", fullPath, err)
		}
		n.log.Debug().Str("from", current).Str("to", next).Msg("navigation redirected")
		current = next
	}
	return nil, fmt.Errorf("navigate %s: %w after %v", fullPath, ErrRedirectLoop, res.Trail)
}
