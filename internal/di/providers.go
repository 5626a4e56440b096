package di

import (
	"fmt"
	"sort"

	"BasisPulse/internal/domain/repository"
	"BasisPulse/internal/handler/api"
	mid "BasisPulse/internal/middleware"
	internalrepo "BasisPulse/internal/repository"
	icache "BasisPulse/internal/service/cache"
	"BasisPulse/internal/service/exchange"
	"BasisPulse/internal/service/feed"
	"BasisPulse/internal/service/history"
	"BasisPulse/internal/service/ratelimit"
	"BasisPulse/internal/stream"
	"BasisPulse/internal/usecase"
	pkgcache "BasisPulse/pkg/cache"
	pkgch "BasisPulse/pkg/clickhouse"
	"BasisPulse/pkg/config"
	apphttp "BasisPulse/pkg/http"
	pkgkafka "BasisPulse/pkg/kafka"
	applogger "BasisPulse/pkg/logger"
	"BasisPulse/pkg/metrics"
	"BasisPulse/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	level := cfg.Logging.Level
	if level == "" {
		level = "info"
	}
	format := cfg.Logging.Format
	if format == "" {
		format = "console"
	}
	output := cfg.Logging.Output
	if output == "" {
		output = "stdout"
	}
	return applogger.New(&applogger.Config{Level: level, Format: format, Output: output})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideHTTPClient creates the shared REST client for venue adapters.
func ProvideHTTPClient() *apphttp.Client {
	return apphttp.NewClient()
}

// ProvideGateway creates the rate-limited provider gateway with one
// reservoir per configured exchange.
func ProvideGateway(cfg *config.Config, m repository.Metrics) *ratelimit.Gateway {
	pcfgs := make([]ratelimit.ProviderConfig, 0, len(cfg.Exchanges))
	for name, ex := range cfg.Exchanges {
		pcfgs = append(pcfgs, ratelimit.ProviderConfig{
			Provider:       name,
			Quota:          ex.Quota,
			Interval:       ex.Interval,
			MaxConcurrent:  ex.MaxConcurrent,
			MaxQueueDepth:  ex.MaxQueueDepth,
			RequestTimeout: ex.RequestTimeout,
		})
	}
	return ratelimit.New(m, pcfgs...)
}

// ProvideCoalescer creates the fetch-coalescing cache.
func ProvideCoalescer() *icache.Coalescer {
	return icache.NewCoalescer()
}

// ProvideExchangeAdapters creates one adapter per configured venue.
// Unknown venue names in the config fail fast.
func ProvideExchangeAdapters(
	cfg *config.Config,
	gw *ratelimit.Gateway,
	co *icache.Coalescer,
	hc *apphttp.Client,
	log *applogger.Logger,
) ([]repository.ExchangeAdapter, error) {
	names := make([]string, 0, len(cfg.Exchanges))
	for name := range cfg.Exchanges {
		names = append(names, name)
	}
	sort.Strings(names)

	adapters := make([]repository.ExchangeAdapter, 0, len(names))
	for _, name := range names {
		acfg := adapterConfig(cfg.Exchanges[name])
		switch name {
		case "binance":
			adapters = append(adapters, exchange.NewBinance(acfg, gw, co, hc, log))
		case "okx":
			adapters = append(adapters, exchange.NewOKX(acfg, gw, co, hc, log))
		case "deribit":
			adapters = append(adapters, exchange.NewDeribit(acfg, gw, co, hc, log))
		default:
			return nil, fmt.Errorf("unknown exchange %q in config", name)
		}
	}
	return adapters, nil
}

func adapterConfig(ex config.ExchangeConfig) exchange.AdapterConfig {
	assets := make(map[string]exchange.AssetMapping, len(ex.Assets))
	for asset, sym := range ex.Assets {
		assets[asset] = exchange.AssetMapping{
			SpotSymbol:       sym.Spot,
			DerivativeSymbol: sym.Derivative,
		}
	}
	return exchange.AdapterConfig{
		BaseURL:         ex.BaseURL,
		DerivativeURL:   ex.DerivativeURL,
		ConfidencePrior: ex.ConfidencePrior,
		Assets:          assets,
	}
}

// ProvideStaticProducer creates the fallback composite producer.
func ProvideStaticProducer() *exchange.StaticProducer {
	return exchange.NewStaticProducer()
}

// ProvideHistoryStore creates the rolling price history store.
func ProvideHistoryStore(cfg *config.Config) *history.Store {
	return history.NewStore(cfg.History.Capacity)
}

// ProvideHub creates the stream broadcaster hub.
func ProvideHub(log *applogger.Logger, m repository.Metrics) *stream.Hub {
	return stream.NewHub(log, m)
}

// ProvideBroadcaster exposes the hub through the domain port.
func ProvideBroadcaster(hub *stream.Hub) repository.Broadcaster {
	return hub
}

// ProvideTickProcessor creates the pipeline's downstream processor.
func ProvideTickProcessor(hist *history.Store, hub repository.Broadcaster, m repository.Metrics) *usecase.TickProcessor {
	return usecase.NewTickProcessor(hist, hub, m)
}

// ProvideTickPipeline builds the validation/throttle/buffer stage
// between the feed and the processor.
func ProvideTickPipeline(proc *usecase.TickProcessor, m repository.Metrics, cfg *config.Config) *mid.TickPipeline {
	opts := []mid.PipelineOption{}
	if cfg.Feed.MaxRPS > 0 {
		opts = append(opts, mid.WithMaxRPS(cfg.Feed.MaxRPS))
	}
	if cfg.Feed.BufferSize > 0 {
		opts = append(opts, mid.WithBufferSize(cfg.Feed.BufferSize))
	}
	return mid.NewTickPipeline(proc, m, opts...)
}

// ProvideMarketStream creates the exchange WebSocket feed.
func ProvideMarketStream(cfg *config.Config, log *applogger.Logger) repository.MarketStream {
	return feed.New(
		cfg.Feed.WebSocketURL,
		cfg.Feed.Symbols,
		cfg.Feed.ReconnectDelay,
		cfg.Feed.PingInterval,
		log,
	)
}

// ProvideClickHouseClient creates a ClickHouse client for backfill reads,
// or nil when disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideBackfillSource creates the read-only history seeder, or nil
// when ClickHouse is disabled.
func ProvideBackfillSource(ch *pkgch.Client, cfg *config.Config, log *applogger.Logger) repository.BackfillSource {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHBackfillSource(ch, cfg.ClickHouse.BackfillTable, log)
}

// ProvidePriceCollector creates the feed consumer.
func ProvidePriceCollector(
	ms repository.MarketStream,
	proc *usecase.TickProcessor,
	pipe *mid.TickPipeline,
	hist *history.Store,
	backfill repository.BackfillSource,
	m repository.Metrics,
	log *applogger.Logger,
	cfg *config.Config,
) *usecase.PriceCollector {
	return usecase.NewPriceCollector(ms, proc, pipe, hist, backfill, cfg.Feed.Symbols, cfg.History.Capacity, m, log)
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideCompositeSink publishes composites to Kafka, or nowhere when
// Kafka is not configured.
func ProvideCompositeSink(producer *pkgkafka.Producer, cfg *config.Config) repository.CompositeSink {
	if producer == nil || cfg.Kafka.CompositeTopic == "" {
		return nil
	}
	return internalrepo.NewKafkaCompositeSink(producer, cfg.Kafka.CompositeTopic)
}

// ProvideKafkaConsumer creates a Kafka consumer for the alternative tick
// feed, or nil when not in kafka feed mode.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if cfg.Feed.Mode != "kafka" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideKafkaTicksHandler routes consumed tick messages into the
// pipeline.
func ProvideKafkaTicksHandler(pipe *mid.TickPipeline, m repository.Metrics, cfg *config.Config) *usecase.KafkaTicksHandler {
	return usecase.NewKafkaTicksHandler(cfg.Kafka.TicksTopic, pipe, m)
}

// ProvideIndicatorEngine creates the indicator recompute loops.
func ProvideIndicatorEngine(
	cfg *config.Config,
	hist *history.Store,
	hub repository.Broadcaster,
	m repository.Metrics,
	log *applogger.Logger,
) *usecase.IndicatorEngine {
	return usecase.NewIndicatorEngine(usecase.IndicatorConfig{
		Interval:          cfg.Indicators.Interval,
		RSIPeriods:        cfg.Indicators.RSIPeriods,
		MAPeriods:         cfg.Indicators.MAPeriods,
		RSIOverbought:     cfg.Indicators.RSIOverbought,
		RSIOversold:       cfg.Indicators.RSIOversold,
		RSIBroadcastDelta: cfg.Indicators.RSIBroadcastDelta,
		MABroadcastDelta:  cfg.Indicators.MABroadcastDelta,
	}, hist, hub, m, log, cfg.Feed.Symbols)
}

// ProvideBasisAggregator creates the cross-exchange aggregation loops.
func ProvideBasisAggregator(
	cfg *config.Config,
	adapters []repository.ExchangeAdapter,
	fallback *exchange.StaticProducer,
	hub repository.Broadcaster,
	sink repository.CompositeSink,
	m repository.Metrics,
	log *applogger.Logger,
) *usecase.BasisAggregator {
	return usecase.NewBasisAggregator(usecase.AggregatorConfig{
		Assets:          cfg.Aggregator.Assets,
		Interval:        cfg.Aggregator.Interval,
		PerpTenorFactor: cfg.Aggregator.PerpTenorFactor,
	}, adapters, fallback, hub, sink, m, log)
}

// ProvideResponseCache builds the REST response cache: layered over
// Redis when enabled, in-process memory otherwise.
func ProvideResponseCache(cfg *config.Config) (pkgcache.Service, error) {
	if !cfg.Redis.Enabled {
		return pkgcache.NewMemoryCache(), nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Redis.Host),
		pkgcache.WithRedisPort(cfg.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix("basispulse"),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return pkgcache.NewLayeredCache(rc), nil
}

// ProvideMarketHandler creates the REST read API.
func ProvideMarketHandler(
	log *applogger.Logger,
	agg *usecase.BasisAggregator,
	eng *usecase.IndicatorEngine,
	hist *history.Store,
	respCache pkgcache.Service,
) *api.MarketHandler {
	return api.NewMarketHandler(log, agg, eng, hist, respCache)
}

// ProvideStreamHandler creates the WebSocket endpoint. Clients may
// follow traded symbols and aggregated assets alike.
func ProvideStreamHandler(hub *stream.Hub, eng *usecase.IndicatorEngine, cfg *config.Config, log *applogger.Logger) *stream.Handler {
	supported := make([]string, 0, len(cfg.Feed.Symbols)+len(cfg.Aggregator.Assets))
	supported = append(supported, cfg.Feed.Symbols...)
	supported = append(supported, cfg.Aggregator.Assets...)
	return stream.NewHandler(hub, eng, supported, log)
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	collector *usecase.PriceCollector,
	indicators *usecase.IndicatorEngine,
	aggregator *usecase.BasisAggregator,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaTicksHandler,
	chClient *pkgch.Client,
	sink repository.CompositeSink,
	market *api.MarketHandler,
	ws *stream.Handler,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NoopHook{})
	}
	app := server.New(cfg, log, collector, indicators, aggregator, consumer, kh, chClient)
	app.AddHandler(market)
	app.AddHandler(ws)
	if sink != nil {
		app.SetSink(sink)
	}
	return app
}
