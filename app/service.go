package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/expeditorhq/expeditor/api/stations"
	"github.com/expeditorhq/expeditor/config"
	"github.com/expeditorhq/expeditor/core/adjustlog"
	"github.com/expeditorhq/expeditor/core/dispatch"
	"github.com/expeditorhq/expeditor/core/events"
	"github.com/expeditorhq/expeditor/core/fairness"
	coremetrics "github.com/expeditorhq/expeditor/core/metrics"
	"github.com/expeditorhq/expeditor/core/model"
	coremon "github.com/expeditorhq/expeditor/core/monitoring"
	coremqtt "github.com/expeditorhq/expeditor/core/mqtt"
	"github.com/expeditorhq/expeditor/core/priority"
	"github.com/expeditorhq/expeditor/core/routing"
	"github.com/expeditorhq/expeditor/infra/cache"
	"github.com/expeditorhq/expeditor/infra/logger"
	"github.com/expeditorhq/expeditor/infra/metrics"
	"github.com/expeditorhq/expeditor/infra/monitoring"
	"github.com/expeditorhq/expeditor/infra/mqtt"
	"github.com/expeditorhq/expeditor/internal/eventbus"
)

// Service orchestrates the dispatch manager, collectors and transports.
type Service struct {
	Manager   *dispatch.Manager
	Collector *fairness.Collector
	Store     adjustlog.Store

	bus    *eventbus.Bus
	cache  priority.Cache
	broker *mqtt.PahoClient
	orders chan model.OrderItem
	http   config.HTTPConfig
	token  string
	log    logger.Logger
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	topo, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	monitor, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(monitor)

	sink, err := coremetrics.NewSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	store, err := newAdjustStore(cfg.AdjustmentLog)
	if err != nil {
		return nil, fmt.Errorf("adjustment log: %w", err)
	}

	scoreCache, err := newScoreCache(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("score cache: %w", err)
	}

	bus := eventbus.NewWithBuffer(64)
	router, err := routing.NewRouter(topo.Stations, topo.Rules, logg)
	if err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}
	agg := priority.NewAggregator(scoreCache, priority.SystemClock{}, logg)
	manager, err := dispatch.NewManager(router, agg, topo.Profiles, topo.Queues, store, sink, bus, nil, logg)
	if err != nil {
		return nil, fmt.Errorf("dispatch manager: %w", err)
	}

	svc := &Service{
		Manager:   manager,
		Collector: fairness.NewCollector(store, manager, scoreCache, sink, nil, logg),
		Store:     store,
		bus:       bus,
		cache:     scoreCache,
		orders:    make(chan model.OrderItem, 128),
		http:      cfg.HTTP,
		token:     cfg.HTTP.AuthToken,
		log:       logg,
	}

	if cfg.MQTT.Broker != "" {
		broker, err := mqtt.NewPahoClient(cfg.MQTT, coremqtt.Handlers{
			Order: func(item model.OrderItem) { svc.orders <- item },
			Cancel: func(orderItemID string) {
				if err := manager.Machine().CancelOrder(orderItemID); err != nil {
					logg.Warnf("cancel order %s: %v", orderItemID, err)
				}
			},
		})
		if err != nil {
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
		svc.broker = broker
	}
	return svc, nil
}

func newAdjustStore(cfg config.AdjustmentLogConfig) (adjustlog.Store, error) {
	switch cfg.Backend {
	case "memory":
		return adjustlog.NewMemoryStore(), nil
	case "sqlite":
		return adjustlog.NewSQLiteStore(cfg.Path)
	default:
		return adjustlog.NewJSONLStore(cfg.Path)
	}
}

func newScoreCache(cfg config.CacheConfig) (priority.Cache, error) {
	if cfg.Backend == "redis" {
		return cache.NewRedisCache(cache.Config{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
	}
	return priority.NewMemoryCache(nil), nil
}

// Intake feeds one order item into the engine. It is the programmatic
// equivalent of the MQTT order topic.
func (s *Service) Intake(item model.OrderItem) { s.orders <- item }

// Run starts the service and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	go s.Manager.Run(ctx, s.orders)
	go s.Collector.Run(ctx, s.Manager.QueueIDs(), time.Minute)

	if s.http.PromAddr != "" {
		go func() {
			defer coremon.Recover()
			if err := metrics.StartPromServer(ctx, s.http.PromAddr); err != nil {
				s.log.Errorf("prom server: %v", err)
				coremon.CaptureException(err, map[string]string{"component": "prom"})
			}
		}()
	}
	if s.http.Addr != "" {
		go func() {
			defer coremon.Recover()
			if err := s.serveAPI(ctx); err != nil {
				s.log.Errorf("api server: %v", err)
				coremon.CaptureException(err, map[string]string{"component": "api"})
			}
		}()
	}
	if s.broker != nil {
		go s.publishFeeds(ctx)
	}

	<-ctx.Done()
	return nil
}

func (s *Service) serveAPI(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/api/stations/feed", stations.NewFeedHandler(s.Manager))
	mux.Handle("/api/items/action", stations.NewActionHandler(s.Manager.Machine()))
	mux.Handle("/api/queues/fairness", stations.NewFairnessHandler(s.Collector))
	mux.Handle("/api/queues/logs", stations.NewLogHandler(s.Store, s.token))
	srv := &http.Server{Addr: s.http.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("api server shutdown: %v", err)
		}
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// publishFeeds pushes the affected station's queue view to the displays
// whenever the queue changes.
func (s *Service) publishFeeds(ctx context.Context) {
	sub := s.bus.Subscribe()
	defer s.bus.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			var queueID string
			switch e := ev.(type) {
			case events.ItemQueuedEvent:
				queueID = e.QueueID
			case events.StateChangedEvent:
				queueID = e.QueueID
			case events.RebalanceEvent:
				queueID = e.QueueID
			case events.CapacityFreedEvent:
				queueID = e.StationID
			default:
				continue
			}
			if queueID == "" {
				continue
			}
			if err := s.broker.PublishFeed(queueID, s.Manager.Feed(queueID)); err != nil {
				s.log.Warnf("feed publish %s: %v", queueID, err)
				coremon.CaptureException(err, map[string]string{"component": "feed", "queue_id": queueID})
			}
		}
	}
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	defer coremon.Flush(2 * time.Second)
	if s.broker != nil {
		s.broker.Disconnect()
	}
	s.bus.Close()
	if c, ok := s.cache.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			return err
		}
	}
	return s.Store.Close()
}
