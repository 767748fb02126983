package monitoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"API-BEANSORT/internal/models"
)

func TestCountSuppressedPorRazon(t *testing.T) {
	c := NewPipelineCounters()
	defer c.Stop()

	c.CountSuppressed(models.ReasonChannelBusy)
	c.CountSuppressed(models.ReasonFailSafePass)
	c.CountSuppressed(models.ReasonFailSafePass)
	c.CountSuppressed(models.ReasonChannelDegraded)
	c.CountSuppressed(models.ReasonNone) // no cuenta en ningún bucket

	snap := c.Snapshot()
	assert.Equal(t, uint64(1), snap.SuppressedBusy)
	assert.Equal(t, uint64(2), snap.SuppressedPass)
	assert.Equal(t, uint64(1), snap.SuppressedDegraded)
}

func TestFlujoPorLaneEnVentana(t *testing.T) {
	c := NewPipelineCounters()
	defer c.Stop()

	c.RecordDetection(1)
	c.RecordDetection(1)
	c.RecordDetection(1)
	c.RecordDetection(2)

	window := 10 * time.Second
	c.limpiarVentana(window)
	c.calcularFlujo(window)

	snap := c.Snapshot()
	assert.Equal(t, uint64(4), snap.Detected)
	assert.InDelta(t, 0.3, snap.FlowPerLane[1], 0.001)
	assert.InDelta(t, 0.1, snap.FlowPerLane[2], 0.001)
}

func TestLimpiarVentanaDescartaDeteccionesViejas(t *testing.T) {
	c := NewPipelineCounters()
	defer c.Stop()

	// Detección artificialmente vieja, fuera de cualquier ventana razonable
	c.flowMu.Lock()
	c.flowRecords = append(c.flowRecords, flowRecord{Lane: 1, Timestamp: time.Now().Add(-5 * time.Minute)})
	c.flowMu.Unlock()

	c.RecordDetection(1)

	window := 60 * time.Second
	c.limpiarVentana(window)
	c.calcularFlujo(window)

	snap := c.Snapshot()
	assert.InDelta(t, 1.0/60.0, snap.FlowPerLane[1], 0.001,
		"solo la detección dentro de la ventana cuenta para el flujo")
}
