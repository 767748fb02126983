package actuator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/kraman/go-firmata"

	"API-BEANSORT/internal/config"
)

// FirmataBackend dispara los solenoides a través de un puente Arduino con
// firmware Firmata: pin alto → pulse_duration → pin bajo
type FirmataBackend struct {
	client *firmata.FirmataClient
	port   string
}

// NewFirmataBackend abre el puerto serial del puente y configura los pines
// de todos los canales como salida
func NewFirmataBackend(port string, baud int, channels []config.EjectorChannel) (*FirmataBackend, error) {
	if baud == 0 {
		baud = 57600
	}

	client, err := firmata.NewClient(port, baud)
	if err != nil {
		return nil, fmt.Errorf("error conectando al puente firmata en %s: %w", port, err)
	}

	for _, ch := range channels {
		if err := client.SetPinMode(ch.FirmataPin, firmata.Output); err != nil {
			return nil, fmt.Errorf("error configurando pin %d (canal %d): %w", ch.FirmataPin, ch.ID, err)
		}
		// Asegurar estado bajo al arranque
		if err := client.DigitalWrite(ch.FirmataPin, false); err != nil {
			return nil, fmt.Errorf("error inicializando pin %d (canal %d): %w", ch.FirmataPin, ch.ID, err)
		}
	}

	log.Printf("✅ Puente firmata conectado en %s (%d baud), %d pin(es) configurados", port, baud, len(channels))
	return &FirmataBackend{client: client, port: port}, nil
}

func (f *FirmataBackend) Name() string { return "firmata" }

// Pulse energiza el solenoide del canal durante PulseDuration
func (f *FirmataBackend) Pulse(_ context.Context, ch *Channel) error {
	if err := f.client.DigitalWrite(ch.FirmataPin, true); err != nil {
		return fmt.Errorf("escritura alta en pin %d: %w", ch.FirmataPin, err)
	}

	time.Sleep(ch.PulseDuration)

	if err := f.client.DigitalWrite(ch.FirmataPin, false); err != nil {
		// El solenoide puede haber quedado energizado: esto es una falla
		// seria de hardware, no solo un pulso perdido
		return fmt.Errorf("escritura baja en pin %d (solenoide posiblemente energizado): %w", ch.FirmataPin, err)
	}

	return nil
}

// Close cierra el puerto serial del puente
func (f *FirmataBackend) Close() {
	if f.client != nil {
		f.client.Close()
	}
}
