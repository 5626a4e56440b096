package usecase

import (
	"context"

	"BasisPulse/internal/domain/models"
	drepo "BasisPulse/internal/domain/repository"
	mid "BasisPulse/internal/middleware"
	"BasisPulse/internal/service/history"
	applogger "BasisPulse/pkg/logger"
)

// PriceCollector consumes the market stream and feeds the tick pipeline.
// On startup it seeds each symbol's history from the backfill source so
// indicators are computable before the live window fills.
type PriceCollector struct {
	stream   drepo.MarketStream
	proc     *TickProcessor
	pipe     *mid.TickPipeline
	history  *history.Store
	backfill drepo.BackfillSource
	symbols  []string
	capacity int
	metrics  drepo.Metrics
	logger   *applogger.Logger
}

// NewPriceCollector creates a new PriceCollector instance.
func NewPriceCollector(
	stream drepo.MarketStream,
	proc *TickProcessor,
	pipe *mid.TickPipeline,
	hist *history.Store,
	backfill drepo.BackfillSource,
	symbols []string,
	capacity int,
	metrics drepo.Metrics,
	log *applogger.Logger,
) *PriceCollector {
	if capacity <= 0 {
		capacity = history.DefaultCapacity
	}
	return &PriceCollector{
		stream:   stream,
		proc:     proc,
		pipe:     pipe,
		history:  hist,
		backfill: backfill,
		symbols:  symbols,
		capacity: capacity,
		metrics:  metrics,
		logger:   log,
	}
}

// IsConnected reports whether the market stream is connected.
func (c *PriceCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

// Start seeds history, connects the stream, and launches consumption.
func (c *PriceCollector) Start(ctx context.Context) error {
	c.seedHistory(ctx)

	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	tickCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, tickCh, errCh)
	return nil
}

// seedHistory backfills symbols that have no streaming samples yet.
// Backfill failures are logged and skipped: the window fills from the
// live stream either way.
func (c *PriceCollector) seedHistory(ctx context.Context) {
	if c.backfill == nil {
		return
	}
	for _, sym := range c.symbols {
		samples, err := c.backfill.RecentSamples(ctx, sym, c.capacity)
		if err != nil {
			c.logger.Warn("backfill skipped",
				applogger.String("symbol", sym), applogger.Error(err))
			continue
		}
		if c.history.SeedBackfill(sym, samples) {
			c.logger.Info("history seeded",
				applogger.String("symbol", sym), applogger.Int("samples", len(samples)))
		}
	}
}

// consume drains the stream's channels and pushes ticks downstream.
// The stream closes both channels when its connection dies, so any
// error or closure means the channels are spent: the loop reconnects,
// resubscribes, and swaps in the fresh channels from a new Read.
func (c *PriceCollector) consume(ctx context.Context, tickCh <-chan *models.Tick, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if ok && err != nil {
				c.metrics.RecordError("stream")
				c.logger.Warn("stream interrupted", applogger.Error(err))
			}
			if tickCh, errCh = c.reopen(ctx); errCh == nil {
				return
			}
		case t, ok := <-tickCh:
			if !ok {
				if tickCh, errCh = c.reopen(ctx); errCh == nil {
					return
				}
				continue
			}
			if t == nil {
				continue
			}
			if c.pipe != nil {
				_ = c.pipe.Process(ctx, t)
			} else {
				_ = c.proc.Process(ctx, t)
			}
		}
	}
}

// reopen reconnects and resubscribes the stream, then returns fresh
// read channels. It retries until it succeeds, paced by the stream's
// own reconnect delay, and returns nil channels once ctx ends.
func (c *PriceCollector) reopen(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	for {
		if ctx.Err() != nil {
			return nil, nil
		}
		if err := c.stream.Reconnect(ctx); err != nil {
			c.metrics.RecordError("reconnect")
			c.logger.Warn("stream reconnect failed", applogger.Error(err))
			continue
		}
		if err := c.stream.Subscribe(ctx); err != nil {
			c.metrics.RecordError("resubscribe")
			c.logger.Warn("stream resubscribe failed", applogger.Error(err))
			continue
		}
		c.logger.Info("stream reconnected")
		return c.stream.Read(ctx)
	}
}

// Shutdown stops the pipeline and closes the stream.
func (c *PriceCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Close()
}
