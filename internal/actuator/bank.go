package actuator

import (
	"context"
	"fmt"
	"log"
	"time"

	"API-BEANSORT/internal/config"
	"API-BEANSORT/internal/models"
)

// Backend es el sustrato físico que energiza un eyector. El protocolo
// GPIO/bus queda fuera de alcance: el backend solo recibe el canal y debe
// producir un pulso de ch.PulseDuration.
type Backend interface {
	Name() string
	Pulse(ctx context.Context, ch *Channel) error
}

// Bank agrupa todos los canales de eyector y el backend físico.
// Fire(channel_id, at_time) es el contrato del driver: un pulso cuyo jitter
// de arranque respecto de at_time queda acotado por la tolerancia
// configurada (el ejecutor realtime es quien garantiza llegar a tiempo).
type Bank struct {
	channels        map[int]*Channel
	byLane          map[int]*Channel
	backend         Backend
	jitterTolerance time.Duration
}

// NewBank construye el banco de eyectores desde la configuración
func NewBank(cfgChannels []config.EjectorChannel, backend Backend, jitterTolerance time.Duration) (*Bank, error) {
	if len(cfgChannels) == 0 {
		return nil, fmt.Errorf("%w: banco de eyectores vacío", models.ErrInvalidConfiguration)
	}

	b := &Bank{
		channels:        make(map[int]*Channel, len(cfgChannels)),
		byLane:          make(map[int]*Channel, len(cfgChannels)),
		backend:         backend,
		jitterTolerance: jitterTolerance,
	}

	for _, cfg := range cfgChannels {
		ch := newChannel(cfg)
		b.channels[ch.ID] = ch
		b.byLane[ch.Lane] = ch
	}

	log.Printf("🔫 Banco de eyectores inicializado: %d canal(es), backend=%s, tolerancia jitter=%v",
		len(b.channels), backend.Name(), jitterTolerance)

	return b, nil
}

// Channel retorna el canal por ID
func (b *Bank) Channel(id int) (*Channel, bool) {
	ch, ok := b.channels[id]
	return ch, ok
}

// ChannelForLane retorna el canal asignado a una lane
func (b *Bank) ChannelForLane(lane int) (*Channel, bool) {
	ch, ok := b.byLane[lane]
	return ch, ok
}

// Fire ejecuta el pulso físico del canal. El llamador (ejecutor realtime) ya
// durmió hasta at; acá solo se mide el jitter real, se valida consistencia y
// se pide el pulso al backend.
//
// ErrChannelBusy acá es una falla de consistencia interna (el scheduler debió
// prevenirla vía tie-break): se loguea como fatal para ese evento, nunca se
// reintenta. ErrHardwareFault incrementa el contador del canal y puede
// degradarlo, pero el pipeline continúa.
func (b *Bank) Fire(ctx context.Context, channelID int, at time.Time) error {
	ch, ok := b.channels[channelID]
	if !ok {
		return fmt.Errorf("%w: channel_id=%d", models.ErrUnknownChannel, channelID)
	}

	// Consistencia: la reserva del scheduler dejó un token para este at.
	// Si no existe, hubo un dispatch duplicado o un disparo sin reserva.
	// Consumir el token en vez de comparar lastFiredAt permite que varias
	// reservas legítimas convivan en vuelo sobre el mismo canal.
	if !ch.takeReservation(at) {
		log.Printf("🚨 [Canal %d] INCONSISTENCIA: Fire sin reserva válida (at=%s)",
			ch.ID, at.Format("15:04:05.000"))
		return fmt.Errorf("%w: disparo sin reserva en canal %d", models.ErrChannelBusy, ch.ID)
	}

	jitter := time.Since(at)
	if jitter < 0 {
		jitter = -jitter
	}
	if jitter > b.jitterTolerance {
		log.Printf("⚠️  [Canal %d] Jitter de disparo %v excede tolerancia %v", ch.ID, jitter, b.jitterTolerance)
	}

	if err := b.backend.Pulse(ctx, ch); err != nil {
		degraded := ch.RecordFault()
		if degraded {
			log.Printf("🚨 [Canal %d] Canal DEGRADADO tras fallas consecutivas de hardware", ch.ID)
		}
		return fmt.Errorf("%w: canal %d: %v", models.ErrHardwareFault, ch.ID, err)
	}

	ch.RecordFire()
	log.Printf("✅ [Canal %d] Pulso de %v completado (jitter %v)", ch.ID, ch.PulseDuration, jitter)
	return nil
}

// Snapshot retorna el estado de todos los canales para el API de estado
func (b *Bank) Snapshot() []ChannelSnapshot {
	result := make([]ChannelSnapshot, 0, len(b.channels))
	for _, ch := range b.channels {
		result = append(result, ch.Snapshot())
	}
	return result
}
