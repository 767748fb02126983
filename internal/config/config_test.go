package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"API-BEANSORT/internal/models"
)

const configValida = `
http:
  host: "0.0.0.0"
  port: 8080
classifier:
  mode: "tcp"
  host: "127.0.0.1"
  port: 9100
  max_budget: "400ms"
scheduler:
  lead_time: "30ms"
  reap_interval: "50ms"
  jitter_tolerance: "2ms"
actuator:
  backend: "mock"
lanes:
  - id: 1
    speed_mps: 1.0
    sensor_to_ejector_m: 0.5
    item_width_margin_m: 0.01
    channel: 1
channels:
  - id: 1
    lane: 1
    pulse_duration: "25ms"
    min_refire_interval: "100ms"
    calibration_offset: "-2ms"
    firmata_pin: 7
`

func escribirConfig(t *testing.T, contenido string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contenido), 0o644))
	return path
}

func TestLoadConfigValida(t *testing.T) {
	cfg, err := LoadConfig(escribirConfig(t, configValida))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Len(t, cfg.Lanes, 1)
	assert.Len(t, cfg.Channels, 1)
	assert.Equal(t, "25ms", cfg.Channels[0].PulseDuration)
	assert.Equal(t, uint8(7), cfg.Channels[0].FirmataPin)
}

func TestDurationHelpers(t *testing.T) {
	cfg, err := LoadConfig(escribirConfig(t, configValida))
	require.NoError(t, err)

	assert.Equal(t, "30ms", cfg.Scheduler.LeadTime)
	assert.Equal(t, float64(0.03), cfg.Scheduler.GetLeadTime().Seconds())
	assert.Equal(t, float64(0.025), cfg.Channels[0].GetPulseDuration().Seconds())
	assert.Equal(t, float64(0.1), cfg.Channels[0].GetMinRefireInterval().Seconds())
	assert.Equal(t, float64(-0.002), cfg.Channels[0].GetCalibrationOffset().Seconds())

	// Valores ilegibles caen al default, no rompen el arranque
	malo := &SchedulerConfig{LeadTime: "treinta"}
	assert.Equal(t, float64(0.03), malo.GetLeadTime().Seconds())
}

func TestApplyRecipeActualizaLanesYBudget(t *testing.T) {
	cfg, err := LoadConfig(escribirConfig(t, configValida))
	require.NoError(t, err)

	err = cfg.ApplyRecipe(models.Recipe{
		Product:          "poroto-negro",
		LaneSpeedMPS:     2.5,
		ItemWidthMarginM: 0.006,
		BudgetMs:         250,
	})
	require.NoError(t, err)

	assert.Equal(t, 2.5, cfg.Lanes[0].SpeedMPS)
	assert.Equal(t, 0.006, cfg.Lanes[0].ItemWidthMarginM)
	assert.Equal(t, "250ms", cfg.Classifier.MaxBudget)
	assert.Equal(t, float64(0.25), cfg.Classifier.GetMaxBudget().Seconds())
}

func TestApplyRecipeInvalidaRechazada(t *testing.T) {
	cfg, err := LoadConfig(escribirConfig(t, configValida))
	require.NoError(t, err)

	// Una receta con velocidad negativa no debe dejar la configuración en un
	// estado que arranque el pipeline
	err = cfg.ApplyRecipe(models.Recipe{Product: "roto", LaneSpeedMPS: -1})
	require.NoError(t, err) // valores no positivos se ignoran, el YAML manda
	assert.Equal(t, 1.0, cfg.Lanes[0].SpeedMPS)
}

func TestLoadConfigInvalida(t *testing.T) {
	casos := []struct {
		nombre string
		mutar  func(string) string
	}{
		{"velocidad cero", func(s string) string {
			return strings.Replace(s, "speed_mps: 1.0", "speed_mps: 0", 1)
		}},
		{"distancia negativa", func(s string) string {
			return strings.Replace(s, "sensor_to_ejector_m: 0.5", "sensor_to_ejector_m: -0.5", 1)
		}},
		{"canal inexistente", func(s string) string {
			return strings.Replace(s, "channel: 1", "channel: 99", 1)
		}},
		{"cooldown menor al pulso", func(s string) string {
			return strings.Replace(s, `min_refire_interval: "100ms"`, `min_refire_interval: "10ms"`, 1)
		}},
	}

	for _, c := range casos {
		t.Run(c.nombre, func(t *testing.T) {
			_, err := LoadConfig(escribirConfig(t, c.mutar(configValida)))
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
		})
	}
}
