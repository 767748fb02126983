// Package listeners contiene los servidores de entrada de la línea: el
// listener TCP del sensor de barrera y el hub WebSocket hacia el frontend.
package listeners

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"API-BEANSORT/internal/models"
)

// TriggerListener es el servidor TCP que recibe los eventos del sensor de
// barrera (beam-break). El bridge del sensor envía una línea por detección:
//
//	TRIG;<lane>;<frame-uuid>;<unix-nanos>\r\n
//
// y espera ACK o NACK. Cada evento válido se publica en el canal de triggers
// para que el tracker registre el item.
type TriggerListener struct {
	host     string
	port     int
	listener net.Listener
	triggers chan<- models.TriggerEvent
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewTriggerListener(host string, port int, triggers chan<- models.TriggerEvent) *TriggerListener {
	ctx, cancel := context.WithCancel(context.Background())
	return &TriggerListener{
		host:     host,
		port:     port,
		triggers: triggers,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// String implementa la interfaz fmt.Stringer
func (t *TriggerListener) String() string {
	return fmt.Sprintf("TriggerListener{host: %s, port: %d}", t.host, t.port)
}

// Start inicia el servidor TCP para escuchar el bridge del sensor
func (t *TriggerListener) Start() error {
	address := fmt.Sprintf("%s:%d", t.host, t.port)

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("error al crear listener: %w", err)
	}

	t.listener = listener
	log.Printf("✓ TriggerListener escuchando en %s\n", address)

	// Aceptar conexiones en una goroutine
	go t.acceptConnections()

	return nil
}

// acceptConnections acepta nuevas conexiones del bridge del sensor
func (t *TriggerListener) acceptConnections() {
	for {
		select {
		case <-t.ctx.Done():
			log.Println("TriggerListener: deteniendo aceptación de conexiones")
			return
		default:
			// Establecer timeout para Accept
			t.listener.(*net.TCPListener).SetDeadline(time.Now().Add(1 * time.Second))

			conn, err := t.listener.Accept()
			if err != nil {
				// Si es timeout, continuar el loop
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				log.Printf("Error al aceptar conexión: %v\n", err)
				continue
			}

			log.Printf("✓ Nueva conexión desde: %s\n", conn.RemoteAddr().String())

			// Manejar cada conexión en su propia goroutine
			go t.handleConnection(conn)
		}
	}
}

// handleConnection maneja los eventos de una conexión del bridge
func (t *TriggerListener) handleConnection(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)

	for {
		select {
		case <-t.ctx.Done():
			log.Printf("Cerrando conexión con %s\n", conn.RemoteAddr().String())
			return
		default:
			// Establecer timeout de lectura
			conn.SetReadDeadline(time.Now().Add(30 * time.Second))

			// Leer evento (el bridge termina líneas con \r\n)
			message, err := reader.ReadString('\n')
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				log.Printf("Conexión cerrada o error de lectura: %v\n", err)
				return
			}

			// Procesar el evento recibido
			t.processMessage(message, conn)
		}
	}
}

// processMessage valida un evento del sensor y lo publica
func (t *TriggerListener) processMessage(message string, conn net.Conn) {
	event, err := ParseTrigger(message)
	if err != nil {
		log.Printf("❌ Evento de trigger inválido: %q | Error: %v", strings.TrimSpace(message), err)
		conn.Write([]byte("NACK\r\n"))
		return
	}

	// Publicar sin bloquear: si el canal está lleno la línea corre más
	// rápido de lo que el pipeline consume y el evento se descarta
	select {
	case t.triggers <- event:
		log.Printf("📦 %s", event)
	default:
		log.Printf("⚠️  Canal de triggers lleno, evento descartado: %s", event)
		conn.Write([]byte("NACK\r\n"))
		return
	}

	// Enviar confirmación (ACK)
	if _, err := conn.Write([]byte("ACK\r\n")); err != nil {
		log.Printf("Error al enviar respuesta: %v\n", err)
	}
}

// ParseTrigger parsea una línea TRIG;<lane>;<frame-uuid>;<unix-nanos>
func ParseTrigger(message string) (models.TriggerEvent, error) {
	parts := strings.Split(strings.TrimSpace(message), ";")
	if len(parts) != 4 {
		return models.TriggerEvent{}, fmt.Errorf("formato inválido: se esperan 4 partes, hay %d", len(parts))
	}

	if parts[0] != "TRIG" {
		return models.TriggerEvent{}, fmt.Errorf("prefijo desconocido: %q", parts[0])
	}

	lane, err := strconv.Atoi(parts[1])
	if err != nil {
		return models.TriggerEvent{}, fmt.Errorf("lane inválida %q: %w", parts[1], err)
	}

	frameRef, err := uuid.Parse(parts[2])
	if err != nil {
		return models.TriggerEvent{}, fmt.Errorf("frame_ref inválido %q: %w", parts[2], err)
	}

	nanos, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return models.TriggerEvent{}, fmt.Errorf("timestamp inválido %q: %w", parts[3], err)
	}

	return models.TriggerEvent{
		Lane:       lane,
		FrameRef:   frameRef,
		DetectedAt: time.Unix(0, nanos),
	}, nil
}

// Stop detiene el listener
func (t *TriggerListener) Stop() error {
	log.Println("Deteniendo TriggerListener...")
	t.cancel()

	if t.listener != nil {
		return t.listener.Close()
	}
	return nil
}
