package actuator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"
)

// OPCUABackend dispara los eyectores a través de un método OPC UA expuesto
// por el PLC del banco de válvulas: FireEjector(channel int16, pulse_ms int16)
type OPCUABackend struct {
	endpoint string
	objectID string
	methodID string
	client   *opcua.Client
}

// NewOPCUABackend crea el backend sin conectar
func NewOPCUABackend(endpoint, objectID, methodID string) *OPCUABackend {
	return &OPCUABackend{
		endpoint: endpoint,
		objectID: objectID,
		methodID: methodID,
	}
}

// Connect establece la conexión con el servidor OPC UA del PLC
func (o *OPCUABackend) Connect(ctx context.Context) error {
	opts := []opcua.Option{
		opcua.SecurityMode(ua.MessageSecurityModeNone),
		opcua.SecurityPolicy(ua.SecurityPolicyURINone),
		opcua.AutoReconnect(true),
	}

	client, err := opcua.NewClient(o.endpoint, opts...)
	if err != nil {
		return fmt.Errorf("error creando cliente para %s: %w", o.endpoint, err)
	}

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("error al conectar a %s: %w", o.endpoint, err)
	}

	o.client = client
	log.Printf("✅ Conexión establecida al banco de válvulas en %s", o.endpoint)
	return nil
}

// Close cierra la conexión con el servidor OPC UA
func (o *OPCUABackend) Close(ctx context.Context) error {
	if o.client != nil {
		return o.client.Close(ctx)
	}
	return nil
}

func (o *OPCUABackend) Name() string { return "opcua" }

// Pulse ejecuta el método de disparo en el PLC. El PLC temporiza el pulso
// localmente: acá solo se entrega canal y duración en milisegundos.
func (o *OPCUABackend) Pulse(ctx context.Context, ch *Channel) error {
	if o.client == nil {
		return fmt.Errorf("cliente no conectado")
	}

	objID, err := ua.ParseNodeID(o.objectID)
	if err != nil {
		return fmt.Errorf("objectID inválido '%s': %w", o.objectID, err)
	}

	methID, err := ua.ParseNodeID(o.methodID)
	if err != nil {
		return fmt.Errorf("methodID inválido '%s': %w", o.methodID, err)
	}

	pulseMs := int16(ch.PulseDuration / time.Millisecond)

	chArg, err := ua.NewVariant(int16(ch.ID))
	if err != nil {
		return fmt.Errorf("argumento de canal inválido: %w", err)
	}
	pulseArg, err := ua.NewVariant(pulseMs)
	if err != nil {
		return fmt.Errorf("argumento de pulso inválido: %w", err)
	}

	req := &ua.CallMethodRequest{
		ObjectID:       objID,
		MethodID:       methID,
		InputArguments: []*ua.Variant{chArg, pulseArg},
	}

	result, err := o.client.Call(ctx, req)
	if err != nil {
		return fmt.Errorf("error en llamada a método de disparo: %w", err)
	}

	if result.StatusCode != ua.StatusOK {
		return fmt.Errorf("método de disparo retornó status: %s", result.StatusCode)
	}

	return nil
}
