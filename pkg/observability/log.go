package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/chainflow/pkg/chain"
	"github.com/aretw0/chainflow/pkg/domain"
)

// LogListener returns a chain.EventListener writing every event to logger.
// Node progress logs at debug, failures at error, the rest at info.
func LogListener(logger *slog.Logger) chain.EventListener {
	return func(ev domain.Event, _ *chain.Chain) {
		level := slog.LevelInfo
		switch ev.Kind {
		case domain.EventNodeStart, domain.EventNodeFinish, domain.EventRouteMatched, domain.EventRouteMissed:
			level = slog.LevelDebug
		case domain.EventNodeError, domain.EventChainError:
			level = slog.LevelError
		}
		if !logger.Enabled(context.Background(), level) {
			return
		}

		attrs := []any{"chain_id", ev.ChainID, "status", ev.Status}
		if ev.NodeID != "" {
			attrs = append(attrs, "node_id", ev.NodeID)
		}
		if len(ev.Parameters) > 0 {
			attrs = append(attrs, "waiting", domain.ParameterNames(ev.Parameters))
		}
		if ev.Err != nil {
			attrs = append(attrs, "err", ev.Err)
		}
		logger.Log(context.Background(), level, string(ev.Kind), attrs...)
	}
}
