package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	config "github.com/davicafu/hexaledger/internal/config"

	catalogApp "github.com/davicafu/hexaledger/internal/catalog/application"
	catalogDomain "github.com/davicafu/hexaledger/internal/catalog/domain"
	catalogEvents "github.com/davicafu/hexaledger/internal/catalog/infra/inbound/events"
	catalogHttp "github.com/davicafu/hexaledger/internal/catalog/infra/inbound/http"
	catalogAnalytics "github.com/davicafu/hexaledger/internal/catalog/infra/outbound/analytics/clickhouse"
	viewCache "github.com/davicafu/hexaledger/internal/catalog/infra/outbound/readmodel/cache"
	viewMongo "github.com/davicafu/hexaledger/internal/catalog/infra/outbound/readmodel/mongodb"

	sharedDomain "github.com/davicafu/hexaledger/internal/shared/domain"
	"github.com/davicafu/hexaledger/internal/shared/infra/batcher"
	infraEvents "github.com/davicafu/hexaledger/internal/shared/infra/events"
	"github.com/davicafu/hexaledger/internal/shared/infra/persistence"
	sharedBus "github.com/davicafu/hexaledger/internal/shared/infra/platform/bus"
	sharedCache "github.com/davicafu/hexaledger/internal/shared/infra/platform/cache"
	platformdb "github.com/davicafu/hexaledger/internal/shared/infra/platform/db"
	"github.com/davicafu/hexaledger/internal/shared/infra/relayer"
	"github.com/davicafu/hexaledger/internal/shared/infra/uow"
	"github.com/davicafu/hexaledger/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// ---------------- Main ----------------
func main() {
	cfg := config.LoadConfig()

	logger.Init(cfg.LogLevel) // inicializa zap
	log := logger.Logger()
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---------------- DB ----------------
	dialect, err := platformdb.ParseDialect(cfg.DBDriver)
	if err != nil {
		log.Fatal("invalid DB driver", zap.Error(err))
	}
	// la espera por el lock de SQLite nunca supera el límite de un flush
	db, err := platformdb.Open(ctx, dialect, cfg.DSN(), platformdb.WithBusyTimeout(cfg.FlushTimeout))
	if err != nil {
		log.Fatal("failed to open database", zap.String("driver", string(dialect)), zap.Error(err))
	}
	defer db.Close()
	log.Info("✅ Base de datos lista", zap.String("driver", string(dialect)))

	// ---------------- Batcher ----------------
	writes := batcher.NewBatcher(db, batcher.Config{
		FlushInterval: cfg.FlushInterval,
		BatchSize:     cfg.BatchSize,
		MaxQueueDepth: cfg.MaxQueueDepth,
		FlushTimeout:  cfg.FlushTimeout,
	}, log)
	writes.Start()

	// ---------------- Cache ----------------
	var cacheInstance sharedCache.Cache
	if cfg.UseRedis {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("⚠️ Redis no disponible, cache en memoria:", zap.Error(err))
		} else {
			cacheInstance = sharedCache.NewRedisCache(rdb, cfg.CacheTTL)
			log.Info("✅ Redis conectado, cache habilitado")
		}
	}
	if cacheInstance == nil {
		memCache := sharedCache.NewInMemoryCache(cfg.CacheTTL, 3*cfg.CacheTTL)
		defer memCache.Stop()
		cacheInstance = memCache
	}

	// ---------------- Read model ----------------
	var views catalogDomain.ProductViewStore = viewCache.NewProductViewStore(cacheInstance)
	if cfg.MongoURI != "" {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatal("failed to connect to MongoDB", zap.Error(err))
		}
		defer client.Disconnect(context.Background())

		mongoViews, err := viewMongo.NewProductViewStore(ctx, client, cfg.MongoDatabase)
		if err != nil {
			log.Warn("⚠️ MongoDB no disponible, vistas en cache", zap.Error(err))
		} else {
			views = mongoViews
			log.Info("✅ MongoDB conectado, vistas de producto persistentes")
		}
	}

	projections := []sharedDomain.ProjectionService{catalogApp.NewProductProjection(views, log)}
	var activity catalogDomain.ActivityReader
	if cfg.ClickHouseAddr != "" {
		eventLog, err := catalogAnalytics.NewEventLogRepo(ctx, cfg.ClickHouseAddr, cfg.ClickHouseDatabase)
		if err != nil {
			log.Warn("⚠️ ClickHouse no disponible, sin log analítico", zap.Error(err))
		} else {
			defer eventLog.Close()
			projections = append(projections, catalogApp.NewAnalyticsProjection(eventLog))
			activity = eventLog
			log.Info("✅ ClickHouse conectado, log analítico habilitado")
		}
	}

	// --------------- Servicio --------------
	unitOfWork := uow.NewUnitOfWork(writes, db, dialect, log, projections...)
	snapshots := persistence.NewSnapshotRepo(writes, db, dialect)
	productService := catalogApp.NewProductService(unitOfWork, snapshots, views, log)

	// ---------------- Events ---------------
	var publisher sharedBus.EventBus
	consumer := catalogEvents.NewProductConsumer(cacheInstance, log)

	if cfg.UseKafka {
		log.Info("🚀 Usando Kafka como bus de eventos")

		writer := &kafka.Writer{
			Addr:         kafka.TCP(cfg.KafkaBrokers...),
			Topic:        cfg.KafkaTopic,
			Balancer:     &kafka.Hash{}, // misma clave, misma partición
			RequiredAcks: kafka.RequireAll,
		}
		defer writer.Close()
		publisher = infraEvents.NewKafkaPublisher(writer, log)

		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.KafkaBrokers,
			Topic:    cfg.KafkaTopic,
			GroupID:  "hexaledger-catalog",
			MinBytes: 10e3, // 10KB
			MaxBytes: 10e6, // 10MB
		})
		defer reader.Close()
		infraEvents.NewConsumerAdapter(reader, consumer, log).Start(ctx)
	} else {
		log.Info("⚡️Usando bus de eventos en memoria (canales de Go)")

		bus := infraEvents.NewInMemoryEventBus(cfg.KafkaTopic)
		publisher = bus
		infraEvents.ConsumeChan(ctx, bus.Subscribe(100), consumer, log)
	}

	// ------------ Outbox Worker ------------
	relayRepo := persistence.NewOutboxRelayRepo(db, writes, dialect, cfg.OutboxLease)
	worker := relayer.NewOutboxWorker(relayRepo, publisher, cfg.OutboxPeriod, cfg.OutboxLimit, cfg.OutboxMaxRetries, log)
	go worker.Start(ctx)

	// ---------------- HTTP ----------------
	handler := catalogHttp.NewProductHandler(productService, relayRepo, writes, activity, cfg.CommitWait, log)
	router := gin.Default()
	catalogHttp.RegisterProductRoutes(router, handler)

	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: router}
	go func() {
		log.Info("🚀 Server running", zap.String("url", "http://localhost:"+cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("🛑 Apagando...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// primero HTTP, luego vaciar la cola y por último las proyecciones pendientes
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("⚠️ Error al cerrar HTTP", zap.Error(err))
	}
	if err := writes.Stop(shutdownCtx); err != nil {
		log.Error("Error al vaciar el batcher", zap.Error(err))
	}
	if err := unitOfWork.Close(shutdownCtx); err != nil {
		log.Warn("⚠️ Proyecciones sin despachar", zap.Error(err))
	}
	log.Info("👋 Bye", zap.Any("consumer", consumer.Stats()))
}
