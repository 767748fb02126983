package db

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5"

	"API-BEANSORT/internal/models"
)

const (
	archiveBatchSize     = 50
	archiveFlushInterval = 1 * time.Second
)

// EventArchive persiste los eventos terminales del pipeline en PostgreSQL.
// Consume el canal de eventos del tracker y escribe en batch: el camino
// caliente del sorter nunca espera por la base de datos.
type EventArchive struct {
	manager *PostgresManager
	events  <-chan models.ItemEvent
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewEventArchive(manager *PostgresManager, events <-chan models.ItemEvent) *EventArchive {
	ctx, cancel := context.WithCancel(context.Background())
	return &EventArchive{
		manager: manager,
		events:  events,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// EnsureSchema crea la tabla de eventos si no existe
func (a *EventArchive) EnsureSchema(ctx context.Context) error {
	_, err := a.manager.Exec(ctx, CREATE_ITEM_EVENT_TABLE_INTERNAL_DB)
	return err
}

// Start inicia el escritor en su propia goroutine
func (a *EventArchive) Start() {
	go a.writeLoop()
}

// Stop detiene el escritor y espera el flush final
func (a *EventArchive) Stop() {
	a.cancel()
	<-a.done
}

// writeLoop acumula eventos y los escribe por batch, por tamaño o por
// intervalo, lo que ocurra primero
func (a *EventArchive) writeLoop() {
	defer close(a.done)

	log.Println("🗄️  [EventArchive] Escritor de eventos iniciado")

	ticker := time.NewTicker(archiveFlushInterval)
	defer ticker.Stop()

	batch := make([]models.ItemEvent, 0, archiveBatchSize)

	for {
		select {
		case <-a.ctx.Done():
			a.flush(batch)
			log.Println("🛑 [EventArchive] Escritor de eventos detenido")
			return

		case event, ok := <-a.events:
			if !ok {
				a.flush(batch)
				log.Println("🛑 [EventArchive] Canal de eventos cerrado")
				return
			}
			batch = append(batch, event)
			if len(batch) >= archiveBatchSize {
				a.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				a.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

// flush escribe un batch de eventos. Los errores se loguean y el batch se
// descarta: el archivo es best-effort, el pipeline no depende de él.
func (a *EventArchive) flush(events []models.ItemEvent) {
	if len(events) == 0 {
		return
	}

	pgBatch := &pgx.Batch{}
	for _, e := range events {
		var channelID any
		if e.ChannelID != 0 {
			channelID = e.ChannelID
		}
		var firedAt any
		if !e.FiredAt.IsZero() {
			firedAt = e.FiredAt
		}
		var reason any
		if e.Reason != "" {
			reason = string(e.Reason)
		}

		pgBatch.Queue(INSERT_ITEM_EVENT_INTERNAL_DB,
			int64(e.ItemID),
			e.Lane,
			channelID,
			e.FrameRef,
			e.Classification.String(),
			e.Confidence,
			e.Status.String(),
			reason,
			e.DetectedAt,
			e.Deadline,
			firedAt,
		)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results := a.manager.Pool().SendBatch(ctx, pgBatch)
	defer results.Close()

	for range events {
		if _, err := results.Exec(); err != nil {
			log.Printf("❌ [EventArchive] Error escribiendo batch de %d eventos: %v", len(events), err)
			return
		}
	}
}

// RecentEvents retorna los últimos eventos archivados, para el historial del
// frontend
func (a *EventArchive) RecentEvents(ctx context.Context, limit int) ([]models.ItemEvent, error) {
	rows, err := a.manager.Query(ctx, SELECT_RECENT_ITEM_EVENTS_INTERNAL_DB, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.ItemEvent
	for rows.Next() {
		var e models.ItemEvent
		var itemID int64
		var channelID *int
		var reason *string
		var firedAt *time.Time
		var classification, status string

		if err := rows.Scan(&itemID, &e.Lane, &channelID, &e.FrameRef, &classification,
			&e.Confidence, &status, &reason, &e.DetectedAt, &e.Deadline, &firedAt); err != nil {
			return nil, err
		}

		e.ItemID = uint64(itemID)
		if e.Classification, err = models.ParseClassification(classification); err != nil {
			return nil, err
		}
		if e.Status, err = models.ParseItemStatus(status); err != nil {
			return nil, err
		}
		if channelID != nil {
			e.ChannelID = *channelID
		}
		if reason != nil {
			e.Reason = models.SuppressReason(*reason)
		}
		if firedAt != nil {
			e.FiredAt = *firedAt
		}

		events = append(events, e)
	}

	return events, rows.Err()
}
