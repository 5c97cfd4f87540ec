// 程序入口：读取配置、按顺序初始化依赖并启动 HTTP 服务；业务路由在 internal/api
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scouter/internal/api"
	"scouter/internal/concept"
	"scouter/internal/config"
	"scouter/internal/geocode"
	"scouter/internal/ingest"
	"scouter/internal/logger"
	"scouter/internal/metrics"
	"scouter/internal/middleware"
	"scouter/internal/migrate"
	"scouter/internal/ontology"
	"scouter/internal/phrase"
	"scouter/internal/scoring"
	"scouter/internal/store"
	"scouter/internal/utils"
	"scouter/internal/version"
)

func main() {
	l := logger.Setup()
	cfg, err := config.Load()
	if err != nil {
		l.Error("config_error", "err", err)
		os.Exit(1)
	}
	l.Info("config_ok", "addr", cfg.Addr, "store", cfg.StoreDriver, "geo_filter", cfg.GeoFilter, "version", version.Commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 背景：权重表在服务就绪前一次性构建；本体不可读或格式错误时直接退出
	src, err := cfg.OntologySource()
	if err != nil {
		l.Error("ontology_source_error", "err", err)
		os.Exit(1)
	}
	octx, cancel := context.WithTimeout(ctx, 30*time.Second)
	table, err := ontology.Load(octx, src)
	cancel()
	if err != nil {
		os.Exit(1)
	}

	db, err := utils.OpenDB(cfg.StoreDriver, cfg.Postgres, cfg.SQLitePath)
	if err != nil {
		l.Error("db_open_error", "err", err)
		os.Exit(1)
	}
	if err := db.PingContext(ctx); err != nil {
		l.Error("db_ping_error", "err", err)
		os.Exit(1)
	}
	l.Info("db_open_ok", "driver", cfg.StoreDriver)
	if err := migrate.EnsureSchema(ctx, db.DB, cfg.StoreDriver); err != nil {
		l.Error("schema_error", "err", err)
		os.Exit(1)
	}

	rc := utils.OpenRedis(cfg.Redis)
	if rc == nil {
		l.Info("redis_disabled")
	} else if err := rc.Ping(ctx).Err(); err != nil {
		l.Error("redis_ping_error", "err", err)
	} else {
		l.Info("redis_ping_ok")
	}
	sinks := metrics.Multi{metrics.PromSink{}}
	var redisSink *metrics.RedisSink
	if rc != nil {
		redisSink = metrics.NewRedisSink(rc, 1024)
		sinks = append(sinks, redisSink)
	}

	st := store.Attach(db, store.Options{
		LocationText: cfg.LocationText,
		GeoFilter:    cfg.GeoFilter,
		WriteTimeout: cfg.StoreTimeout,
		Sink:         sinks,
	})

	phrases, err := phraseSource(cfg, table)
	if err != nil {
		l.Error("phrase_source_error", "err", err)
		os.Exit(1)
	}
	kind, err := scoring.ParseKind(cfg.ScoreProcessor)
	if err != nil {
		l.Error("score_processor_error", "err", err)
		os.Exit(1)
	}
	scorer, err := scoring.New(kind, scoring.Options{
		Table:      table,
		Phrases:    phrases,
		Max:        cfg.ScoreMax,
		Categories: cfg.Categories,
		Sink:       sinks,
	})
	if err != nil {
		l.Error("score_processor_error", "err", err)
		os.Exit(1)
	}
	l.Info("scorer_ready", "processor", kind, "terms", table.Len(), "max", cfg.ScoreMax)

	pipeline := ingest.NewPipeline(scorer, st, ingest.NewDedup(rc, cfg.DedupTTL), sinks)
	var submitter api.Submitter = pipeline
	var queue metrics.QueueStats
	var closers []func() error
	consumerDone := make(chan struct{})
	if cfg.AMQPURL != "" {
		consumer, err := ingest.DialConsumer(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, pipeline, sinks)
		if err != nil {
			l.Error("amqp_consumer_error", "err", err)
			os.Exit(1)
		}
		queue = consumer
		closers = append(closers, consumer.Close)
		go func() {
			defer close(consumerDone)
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				l.Error("amqp_consumer_stopped", "err", err)
			}
		}()
		pub, err := ingest.DialPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			l.Error("amqp_publisher_error", "err", err)
			os.Exit(1)
		}
		submitter = pub
		closers = append(closers, pub.Close)
	} else {
		close(consumerDone)
		l.Info("amqp_disabled", "ingest", "inline")
	}

	reporter := metrics.NewReporter(rc, st, queue, cfg.MetricsInterval)
	if redisSink != nil {
		reporter.WatchDropped(redisSink)
	}
	go reporter.Run(ctx)

	resolver, err := buildResolver(cfg)
	if err != nil {
		l.Error("geocoder_error", "err", err)
		os.Exit(1)
	}
	gw := api.NewGateway(resolver, st, api.GatewayOptions{
		Limit:          cfg.QueryLimit,
		GeocodeTimeout: cfg.GeocodeTimeout,
		StoreTimeout:   cfg.StoreTimeout,
	})
	routes := api.BuildRoutes(api.Deps{
		Base:    cfg.APIBase,
		Gateway: gw,
		Metrics: metrics.NewReader(rc),
		Events:  submitter,
	})

	var handler http.Handler = routes
	handler = middleware.RateLimit(cfg.RateLimitEnabled, cfg.RateLimitQPS, handler)
	handler = middleware.CORS(cfg.CORSOrigin, handler)
	handler = logger.AccessMiddleware(l)(handler)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		var err error
		if cfg.TLSEnabled {
			if err := utils.EnsureSelfSignedCert(cfg.TLSCertPath, cfg.TLSKeyPath, "scouter.local"); err != nil {
				l.Error("tls_cert_error", "err", err)
				stop()
				return
			}
			l.Info("listening_tls", "addr", cfg.Addr, "cert", cfg.TLSCertPath)
			err = srv.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			l.Info("listening", "addr", cfg.Addr)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("listen_error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	l.Info("shutdown_begin")
	sctx, scancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer scancel()
	if err := srv.Shutdown(sctx); err != nil {
		l.Error("shutdown_error", "err", err)
	}
	// 消费循环退出后再关闭流水线：正在投递的消息完成 Handle，晚到的消息得到 ErrClosed
	select {
	case <-consumerDone:
	case <-sctx.Done():
		l.Warn("amqp_consumer_drain_timeout")
	}
	pipeline.Close()
	for _, c := range closers {
		_ = c()
	}
	if err := st.Close(); err != nil {
		l.Error("db_close_error", "err", err)
	}
	if redisSink != nil {
		redisSink.Close()
	}
	if rc != nil {
		_ = rc.Close()
	}
	l.Info("shutdown_done")
}

func phraseSource(cfg config.Config, table *concept.Table) (phrase.Source, error) {
	kind, err := phrase.ParseKind(cfg.PhraseSource)
	if err != nil {
		return nil, err
	}
	if kind == phrase.KindHTTP {
		return phrase.NewHTTPSource(cfg.PhraseEndpoint, cfg.PhraseTimeout), nil
	}
	return phrase.NewLexicon(table), nil
}

// buildResolver：Photon 为默认；配置 GeoLite2 库时 IP 字面量走本地库；最外层为进程内缓存
func buildResolver(cfg config.Config) (geocode.Resolver, error) {
	chain := geocode.Chain{Default: geocode.NewPhoton(cfg.GeocoderURL, cfg.GeocodeTimeout)}
	if cfg.GeoIPPath != "" {
		g, err := geocode.OpenGeoIP(cfg.GeoIPPath)
		if err != nil {
			return nil, err
		}
		chain.IP = g
		logger.L().Info("geoip_ready", "path", cfg.GeoIPPath)
	}
	return geocode.NewCached(chain, cfg.GeocodeCacheSize, cfg.GeocodeCacheTTL), nil
}
