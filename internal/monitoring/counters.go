package monitoring

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"API-BEANSORT/internal/models"
)

// PipelineCounters son los contadores operador-visibles del pipeline. Las
// anomalías por item se cuentan acá en lugar de abortar el procesamiento:
// el sistema sigue eyectando items bien clasificados mientras los contadores
// acumulan la señal de observabilidad.
type PipelineCounters struct {
	Detected           atomic.Uint64
	Actuated           atomic.Uint64
	Expired            atomic.Uint64
	SuppressedBusy     atomic.Uint64
	SuppressedPass     atomic.Uint64
	SuppressedDegraded atomic.Uint64
	ClassifierTimeouts atomic.Uint64
	MissedSorts        atomic.Uint64 // BAD tardío para un item ya terminal
	HardwareFaults     atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc

	// Ventana deslizante de detecciones por lane para throughput
	flowMu      sync.RWMutex
	flowRecords []flowRecord
	lastFlow    map[int]float64 // lane → items/s en la última ventana
}

type flowRecord struct {
	Lane      int
	Timestamp time.Time
}

// CountersSnapshot es la vista JSON para el API de estado
type CountersSnapshot struct {
	Detected           uint64             `json:"detected"`
	Actuated           uint64             `json:"actuated"`
	Expired            uint64             `json:"expired"`
	SuppressedBusy     uint64             `json:"suppressed_channel_busy"`
	SuppressedPass     uint64             `json:"suppressed_fail_safe_pass"`
	SuppressedDegraded uint64             `json:"suppressed_channel_degraded"`
	ClassifierTimeouts uint64             `json:"classifier_timeouts"`
	MissedSorts        uint64             `json:"missed_sorts"`
	HardwareFaults     uint64             `json:"hardware_faults"`
	FlowPerLane        map[int]float64    `json:"flow_items_per_second"`
	Timestamp          time.Time          `json:"timestamp"`
}

func NewPipelineCounters() *PipelineCounters {
	ctx, cancel := context.WithCancel(context.Background())
	return &PipelineCounters{
		ctx:      ctx,
		cancel:   cancel,
		lastFlow: make(map[int]float64),
	}
}

// CountSuppressed incrementa el contador que corresponde a la razón
func (c *PipelineCounters) CountSuppressed(reason models.SuppressReason) {
	switch reason {
	case models.ReasonChannelBusy:
		c.SuppressedBusy.Add(1)
	case models.ReasonFailSafePass:
		c.SuppressedPass.Add(1)
	case models.ReasonChannelDegraded:
		c.SuppressedDegraded.Add(1)
	}
}

// RecordDetection registra una detección en la ventana deslizante
func (c *PipelineCounters) RecordDetection(lane int) {
	c.Detected.Add(1)

	c.flowMu.Lock()
	defer c.flowMu.Unlock()
	c.flowRecords = append(c.flowRecords, flowRecord{Lane: lane, Timestamp: time.Now()})
}

// StartFlowStatistics inicia el cálculo periódico de throughput por lane
func (c *PipelineCounters) StartFlowStatistics(calculationInterval, windowDuration time.Duration) {
	log.Printf("📊 Iniciando estadísticas de flujo (intervalo: %v, ventana: %v)",
		calculationInterval, windowDuration)

	ticker := time.NewTicker(calculationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			log.Println("🛑 Deteniendo estadísticas de flujo")
			return

		case <-ticker.C:
			c.limpiarVentana(windowDuration)
			c.calcularFlujo(windowDuration)
		}
	}
}

// Stop detiene el loop de estadísticas
func (c *PipelineCounters) Stop() {
	c.cancel()
}

// limpiarVentana elimina detecciones fuera de la ventana de tiempo
func (c *PipelineCounters) limpiarVentana(windowDuration time.Duration) {
	c.flowMu.Lock()
	defer c.flowMu.Unlock()

	cutoff := time.Now().Add(-windowDuration)

	validIdx := len(c.flowRecords)
	for i, record := range c.flowRecords {
		if record.Timestamp.After(cutoff) {
			validIdx = i
			break
		}
	}

	if validIdx > 0 {
		c.flowRecords = c.flowRecords[validIdx:]
	}
}

// calcularFlujo calcula items/s por lane dentro de la ventana
func (c *PipelineCounters) calcularFlujo(windowDuration time.Duration) {
	c.flowMu.Lock()
	defer c.flowMu.Unlock()

	cutoff := time.Now().Add(-windowDuration)
	counts := make(map[int]int)
	for _, record := range c.flowRecords {
		if record.Timestamp.After(cutoff) {
			counts[record.Lane]++
		}
	}

	c.lastFlow = make(map[int]float64, len(counts))
	for lane, count := range counts {
		c.lastFlow[lane] = float64(count) / windowDuration.Seconds()
	}
}

// Snapshot retorna la vista actual de todos los contadores
func (c *PipelineCounters) Snapshot() CountersSnapshot {
	c.flowMu.RLock()
	flow := make(map[int]float64, len(c.lastFlow))
	for lane, rate := range c.lastFlow {
		flow[lane] = rate
	}
	c.flowMu.RUnlock()

	return CountersSnapshot{
		Detected:           c.Detected.Load(),
		Actuated:           c.Actuated.Load(),
		Expired:            c.Expired.Load(),
		SuppressedBusy:     c.SuppressedBusy.Load(),
		SuppressedPass:     c.SuppressedPass.Load(),
		SuppressedDegraded: c.SuppressedDegraded.Load(),
		ClassifierTimeouts: c.ClassifierTimeouts.Load(),
		MissedSorts:        c.MissedSorts.Load(),
		HardwareFaults:     c.HardwareFaults.Load(),
		FlowPerLane:        flow,
		Timestamp:          time.Now(),
	}
}
