package actuator

import (
	"fmt"
	"sync"
	"time"

	"API-BEANSORT/internal/config"
	"API-BEANSORT/internal/models"
)

// faultsToDegrade es la cantidad de fallas de hardware consecutivas tras la
// cual un canal se marca degradado y deja de recibir disparos
const faultsToDegrade = 3

// Channel es el estado de runtime de un eyector físico. La configuración es
// de solo lectura durante la operación; el estado de reservas y cooldown es
// lo único mutable compartido entre goroutines y exige exclusión mutua entre
// intentos de disparo concurrentes.
type Channel struct {
	ID                int
	Lane              int
	PulseDuration     time.Duration
	MinRefireInterval time.Duration
	CalibrationOffset time.Duration
	FirmataPin        uint8

	mu                sync.Mutex
	lastFiredAt       time.Time
	reservations      map[int64]struct{} // reservas comprometidas aún sin pulso, por UnixNano del at
	degraded          bool
	faultCount        uint64
	consecutiveFaults int
	fireCount         uint64
}

// ChannelSnapshot es una copia de solo lectura para el API de estado
type ChannelSnapshot struct {
	ID                int       `json:"id"`
	Lane              int       `json:"lane"`
	PulseDurationMs   float64   `json:"pulse_duration_ms"`
	MinRefireMs       float64   `json:"min_refire_ms"`
	CalibrationMs     float64   `json:"calibration_ms"`
	LastFiredAt       time.Time `json:"last_fired_at"`
	Degraded          bool      `json:"degraded"`
	FaultCount        uint64    `json:"fault_count"`
	FireCount         uint64    `json:"fire_count"`
}

func newChannel(cfg config.EjectorChannel) *Channel {
	return &Channel{
		ID:                cfg.ID,
		Lane:              cfg.Lane,
		PulseDuration:     cfg.GetPulseDuration(),
		MinRefireInterval: cfg.GetMinRefireInterval(),
		CalibrationOffset: cfg.GetCalibrationOffset(),
		FirmataPin:        cfg.FirmataPin,
		reservations:      make(map[int64]struct{}),
	}
}

// TryReserve intenta reservar el canal para un disparo en el instante at.
// Es el punto donde se resuelve el tie-break: dos items con deadlines más
// cercanos que MinRefireInterval sobre el mismo canal ⇒ el más temprano ya
// reservó y el segundo recibe ErrChannelBusy. La reserva fija lastFiredAt
// antes del pulso físico para que el cooldown valga desde la decisión; cada
// reserva aceptada se anota como token propio, porque una segunda reserva
// legítima puede comprometerse antes de que el pulso de la primera ejecute.
func (c *Channel) TryReserve(at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.degraded {
		return fmt.Errorf("%w: canal %d", models.ErrChannelDegraded, c.ID)
	}
	if !c.lastFiredAt.IsZero() && at.Sub(c.lastFiredAt) < c.MinRefireInterval {
		return fmt.Errorf("%w: canal %d (último disparo %s, intento %s)",
			models.ErrChannelBusy, c.ID,
			c.lastFiredAt.Format("15:04:05.000"), at.Format("15:04:05.000"))
	}

	// Reservas huérfanas (comandos perdidos en la cola del ejecutor) se
	// purgan acá para que el mapa quede acotado
	for ns := range c.reservations {
		if at.Sub(time.Unix(0, ns)) > time.Minute {
			delete(c.reservations, ns)
		}
	}

	c.lastFiredAt = at
	c.reservations[at.UnixNano()] = struct{}{}
	return nil
}

// takeReservation consume el token de la reserva hecha para el instante at.
// Retorna false si no existe: dispatch duplicado o disparo sin reserva.
func (c *Channel) takeReservation(at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.reservations[at.UnixNano()]; !ok {
		return false
	}
	delete(c.reservations, at.UnixNano())
	return true
}

// LastFiredAt retorna el instante del último disparo (o reserva) del canal
func (c *Channel) LastFiredAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastFiredAt
}

// RecordFire contabiliza un pulso físico completado
func (c *Channel) RecordFire() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fireCount++
	c.consecutiveFaults = 0
}

// RecordFault contabiliza una falla de hardware. Tras faultsToDegrade fallas
// consecutivas el canal queda degradado; el pipeline continúa con el resto.
func (c *Channel) RecordFault() (degraded bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.faultCount++
	c.consecutiveFaults++
	if c.consecutiveFaults >= faultsToDegrade && !c.degraded {
		c.degraded = true
	}
	return c.degraded
}

// Degraded indica si el canal está fuera de servicio
func (c *Channel) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

// SetDegraded fuerza el estado degradado del canal (operador vía API)
func (c *Channel) SetDegraded(degraded bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.degraded = degraded
	if !degraded {
		c.consecutiveFaults = 0
	}
}

// Snapshot retorna una copia del estado para el API de estado
func (c *Channel) Snapshot() ChannelSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return ChannelSnapshot{
		ID:              c.ID,
		Lane:            c.Lane,
		PulseDurationMs: float64(c.PulseDuration) / float64(time.Millisecond),
		MinRefireMs:     float64(c.MinRefireInterval) / float64(time.Millisecond),
		CalibrationMs:   float64(c.CalibrationOffset) / float64(time.Millisecond),
		LastFiredAt:     c.lastFiredAt,
		Degraded:        c.degraded,
		FaultCount:      c.faultCount,
		FireCount:       c.fireCount,
	}
}
