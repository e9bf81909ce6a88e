package relayer

import (
	"context"
	"fmt"
	"time"

	sharedDomain "github.com/davicafu/hexaledger/internal/shared/domain"
	sharedEvents "github.com/davicafu/hexaledger/internal/shared/events"
	sharedBus "github.com/davicafu/hexaledger/internal/shared/infra/platform/bus"
	"github.com/davicafu/hexaledger/internal/shared/infra/utils"
	"go.uber.org/zap"
)

const (
	BaseBackoff       = time.Second
	MaxBackoff        = 5 * time.Minute
	DefaultMaxRetries = 8
)

// Worker publica las filas vencidas del outbox y registra el resultado de cada intento.
type Worker struct {
	repo       sharedDomain.OutboxRelayRepository
	publisher  sharedBus.EventBus
	interval   time.Duration
	batchSize  int
	maxRetries int
	log        *zap.Logger
	now        func() time.Time
}

func NewOutboxWorker(
	repo sharedDomain.OutboxRelayRepository,
	publisher sharedBus.EventBus,
	interval time.Duration,
	batchSize int,
	maxRetries int,
	log *zap.Logger,
) *Worker {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Worker{
		repo:       repo,
		publisher:  publisher,
		interval:   interval,
		batchSize:  batchSize,
		maxRetries: maxRetries,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Start inicia el bucle de polling del worker. Bloquea hasta que ctx termina.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("🚀 Outbox worker iniciado", zap.Duration("interval", w.interval), zap.Int("max_retries", w.maxRetries))

	for {
		select {
		case <-ctx.Done():
			w.log.Info("🛑 Outbox worker detenido.")
			return
		case <-ticker.C:
			w.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch reclama hasta batchSize filas y las publica. Devuelve cuántas se enviaron.
func (w *Worker) ProcessBatch(ctx context.Context) int {
	events, err := w.repo.ClaimDue(ctx, w.now(), w.batchSize)
	if err != nil {
		w.log.Warn("⚠️ Error al reclamar eventos pendientes", zap.Error(err))
		return 0
	}
	if len(events) > 0 {
		w.log.Info(fmt.Sprintf("📬 %d eventos encontrados para procesar", len(events)))
	}

	sent := 0
	for _, evt := range events {
		if w.publishAndMark(ctx, evt) {
			sent++
		}
	}
	return sent
}

func (w *Worker) publishAndMark(ctx context.Context, evt sharedDomain.OutboxEvent) bool {
	if err := w.publisher.Publish(ctx, sharedEvents.FromOutbox(evt)); err != nil {
		w.scheduleRetry(ctx, evt, err)
		return false
	}

	if err := w.repo.MarkSent(ctx, evt.ID, w.now()); err != nil {
		// se volverá a publicar cuando caduque el claim; el consumidor deduplica
		w.log.Warn("⚠️ No se pudo marcar evento como enviado",
			zap.String("event_id", evt.ID.String()),
			zap.Error(err),
		)
		return false
	}

	w.log.Info("✅ Evento publicado y marcado",
		zap.String("event_id", evt.ID.String()),
		zap.String("idempotency_key", evt.IdempotencyKey),
	)
	return true
}

func (w *Worker) scheduleRetry(ctx context.Context, evt sharedDomain.OutboxEvent, cause error) {
	now := w.now()
	attempt := evt.RetryCount + 1
	exhausted := attempt >= w.maxRetries
	status := utils.Ternary(exhausted, sharedDomain.OutboxFailed, sharedDomain.OutboxPending)
	next := now.Add(utils.Backoff(attempt, BaseBackoff, MaxBackoff))

	w.log.Warn("⚠️ No se pudo publicar evento",
		zap.String("event_id", evt.ID.String()),
		zap.Int("attempt", attempt),
		zap.String("status", string(status)),
		zap.Time("next_retry_at", next),
		zap.Error(cause),
	)

	if err := w.repo.MarkRetry(ctx, evt.ID, now, attempt, next, status, cause.Error()); err != nil {
		w.log.Warn("⚠️ No se pudo registrar el reintento",
			zap.String("event_id", evt.ID.String()),
			zap.Error(err),
		)
	}
}
