package timing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"API-BEANSORT/internal/models"
)

func TestComputeDeadlineBasico(t *testing.T) {
	// Escenario de referencia: 1.0 m/s, 0.5 m, sin margen → deadline t+0.5s
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := LaneProfile{Lane: 1, SpeedMPS: 1.0, SensorToEjectorDistance: 0.5}

	deadline, err := ComputeDeadline(t0, p)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(500*time.Millisecond), deadline)
}

func TestComputeDeadlineConMargen(t *testing.T) {
	// El margen centra la ventana: medio margen de recorrido extra
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := LaneProfile{Lane: 1, SpeedMPS: 1.0, SensorToEjectorDistance: 0.5, ItemWidthMargin: 0.02}

	deadline, err := ComputeDeadline(t0, p)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(510*time.Millisecond), deadline)
}

func TestComputeDeadlineMonotonia(t *testing.T) {
	t0 := time.Now()
	lento := LaneProfile{Lane: 1, SpeedMPS: 1.0, SensorToEjectorDistance: 0.5}
	rapido := LaneProfile{Lane: 1, SpeedMPS: 2.0, SensorToEjectorDistance: 0.5}
	lejano := LaneProfile{Lane: 1, SpeedMPS: 1.0, SensorToEjectorDistance: 0.8}

	dLento, err := ComputeDeadline(t0, lento)
	require.NoError(t, err)
	dRapido, err := ComputeDeadline(t0, rapido)
	require.NoError(t, err)
	dLejano, err := ComputeDeadline(t0, lejano)
	require.NoError(t, err)

	// Más velocidad ⇒ deadline más temprano; más distancia ⇒ más tarde
	assert.True(t, dRapido.Before(dLento))
	assert.True(t, dLejano.After(dLento))
}

func TestComputeDeadlineConfiguracionInvalida(t *testing.T) {
	t0 := time.Now()

	casos := []struct {
		nombre string
		perfil LaneProfile
	}{
		{"velocidad cero", LaneProfile{Lane: 1, SpeedMPS: 0, SensorToEjectorDistance: 0.5}},
		{"velocidad negativa", LaneProfile{Lane: 1, SpeedMPS: -1.0, SensorToEjectorDistance: 0.5}},
		{"distancia cero", LaneProfile{Lane: 1, SpeedMPS: 1.0, SensorToEjectorDistance: 0}},
		{"margen negativo", LaneProfile{Lane: 1, SpeedMPS: 1.0, SensorToEjectorDistance: 0.5, ItemWidthMargin: -0.01}},
	}

	for _, c := range casos {
		t.Run(c.nombre, func(t *testing.T) {
			_, err := ComputeDeadline(t0, c.perfil)
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
		})
	}
}
