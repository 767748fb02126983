package listeners

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTriggerValido(t *testing.T) {
	frameRef := uuid.New()
	detectedAt := time.Date(2026, 3, 14, 10, 30, 0, 123456789, time.UTC)

	line := fmt.Sprintf("TRIG;2;%s;%d\r\n", frameRef, detectedAt.UnixNano())

	event, err := ParseTrigger(line)
	require.NoError(t, err)
	assert.Equal(t, 2, event.Lane)
	assert.Equal(t, frameRef, event.FrameRef)
	assert.True(t, event.DetectedAt.Equal(detectedAt))
}

func TestParseTriggerInvalido(t *testing.T) {
	frameRef := uuid.New().String()

	casos := []struct {
		nombre string
		linea  string
	}{
		{"partes insuficientes", "TRIG;1;" + frameRef + "\r\n"},
		{"prefijo desconocido", "TRIGGER;1;" + frameRef + ";123456\r\n"},
		{"lane no numérica", "TRIG;uno;" + frameRef + ";123456\r\n"},
		{"frame_ref inválido", "TRIG;1;no-es-uuid;123456\r\n"},
		{"timestamp inválido", "TRIG;1;" + frameRef + ";ayer\r\n"},
		{"línea vacía", "\r\n"},
	}

	for _, caso := range casos {
		t.Run(caso.nombre, func(t *testing.T) {
			_, err := ParseTrigger(caso.linea)
			assert.Error(t, err)
		})
	}
}
