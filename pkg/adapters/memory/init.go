package memory

import (
	"log/slog"

	"github.com/leapstack-labs/dbal/pkg/adapter"
)

func init() {
	adapter.Register("memory", func(logger *slog.Logger) adapter.Adapter { return New(WithLogger(logger)) })
}
