package classify

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"API-BEANSORT/internal/models"
)

// TCPGateway habla con el servicio de clasificación por una conexión TCP
// persistente con protocolo de líneas:
//
//	request:  CLASSIFY;<frame-uuid>;<budget-ms>\r\n
//	response: <frame-uuid>;<GOOD|BAD>;<confidence>\r\n
//
// Las respuestas pueden llegar fuera de orden respecto de los requests; el
// frame-uuid correlaciona cada respuesta con su item.
type TCPGateway struct {
	host        string
	port        int
	dialTimeout time.Duration
	results     chan<- models.ClassificationResult

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	conn      net.Conn
	connected bool
	pending   map[uuid.UUID]*time.Timer
}

// NewTCPGateway crea el gateway sin conectar. Los resultados se entregan por
// el canal results (típicamente el del ChannelManager compartido).
func NewTCPGateway(host string, port int, dialTimeout time.Duration, results chan<- models.ClassificationResult) *TCPGateway {
	ctx, cancel := context.WithCancel(context.Background())
	return &TCPGateway{
		host:        host,
		port:        port,
		dialTimeout: dialTimeout,
		results:     results,
		ctx:         ctx,
		cancel:      cancel,
		pending:     make(map[uuid.UUID]*time.Timer),
	}
}

// Start lanza el loop de conexión con reconexión automática
func (g *TCPGateway) Start() error {
	go g.connectLoop()
	return nil
}

// connectLoop mantiene la conexión viva; mientras no haya conexión todos los
// Classify degradan a UNKNOWN de inmediato
func (g *TCPGateway) connectLoop() {
	backoff := time.Second

	for {
		select {
		case <-g.ctx.Done():
			return
		default:
		}

		address := net.JoinHostPort(g.host, strconv.Itoa(g.port))
		conn, err := net.DialTimeout("tcp", address, g.dialTimeout)
		if err != nil {
			log.Printf("⚠️  [Clasificador] No alcanzable en %s: %v (reintento en %v)", address, err, backoff)
			select {
			case <-g.ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 10*time.Second {
				backoff *= 2
			}
			continue
		}

		backoff = time.Second
		g.mu.Lock()
		g.conn = conn
		g.connected = true
		g.mu.Unlock()
		log.Printf("✅ [Clasificador] Conectado a %s", address)

		g.readLoop(conn)

		// Conexión caída: degradar todos los requests en vuelo a UNKNOWN
		g.mu.Lock()
		g.connected = false
		g.conn = nil
		caidos := len(g.pending)
		for frameRef, timer := range g.pending {
			timer.Stop()
			delete(g.pending, frameRef)
			g.deliverLocked(models.ClassificationResult{
				FrameRef:   frameRef,
				Label:      models.ClassUnknown,
				ReceivedAt: time.Now(),
			})
		}
		g.mu.Unlock()

		if caidos > 0 {
			log.Printf("⚠️  [Clasificador] Conexión caída: %d request(s) en vuelo degradados a UNKNOWN", caidos)
		}
	}
}

// Classify emite el request para el frame. Nunca bloquea: sin conexión o con
// errores de escritura el resultado UNKNOWN se entrega de inmediato.
func (g *TCPGateway) Classify(frameRef uuid.UUID, budget time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.connected || budget <= 0 {
		g.deliverLocked(models.ClassificationResult{
			FrameRef:   frameRef,
			Label:      models.ClassUnknown,
			ReceivedAt: time.Now(),
		})
		return
	}

	// El timer del budget corre desde ya; si vence, el item queda UNKNOWN y
	// una respuesta tardía se descarta en el tracker
	g.pending[frameRef] = time.AfterFunc(budget, func() { g.expire(frameRef) })

	request := fmt.Sprintf("CLASSIFY;%s;%d\r\n", frameRef, budget.Milliseconds())
	if _, err := g.conn.Write([]byte(request)); err != nil {
		log.Printf("❌ [Clasificador] Error enviando request para frame %s: %v", frameRef, err)
		if timer, ok := g.pending[frameRef]; ok {
			timer.Stop()
			delete(g.pending, frameRef)
		}
		g.deliverLocked(models.ClassificationResult{
			FrameRef:   frameRef,
			Label:      models.ClassUnknown,
			ReceivedAt: time.Now(),
		})
	}
}

// expire vence el budget de un request: entrega UNKNOWN
func (g *TCPGateway) expire(frameRef uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.pending[frameRef]; !ok {
		return // la respuesta llegó justo antes
	}
	delete(g.pending, frameRef)

	g.deliverLocked(models.ClassificationResult{
		FrameRef:   frameRef,
		Label:      models.ClassUnknown,
		ReceivedAt: time.Now(),
	})
}

// readLoop lee respuestas hasta que la conexión se cae
func (g *TCPGateway) readLoop(conn net.Conn) {
	reader := bufio.NewReader(conn)

	for {
		select {
		case <-g.ctx.Done():
			conn.Close()
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		line, err := reader.ReadString('\n')
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			log.Printf("⚠️  [Clasificador] Conexión cerrada o error de lectura: %v", err)
			conn.Close()
			return
		}

		g.processResponse(line)
	}
}

// processResponse parsea una línea de respuesta y la entrega si el request
// sigue en vuelo
func (g *TCPGateway) processResponse(line string) {
	frameRef, label, confidence, err := ParseResponse(line)
	if err != nil {
		log.Printf("❌ [Clasificador] Respuesta inválida: %q (%v)", strings.TrimSpace(line), err)
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if timer, ok := g.pending[frameRef]; ok {
		timer.Stop()
		delete(g.pending, frameRef)
	} else {
		// El budget ya venció y el item quedó UNKNOWN, pero la respuesta se
		// entrega igual: el tracker la descarta sobre el item terminal y
		// contabiliza el missed-sort si era BAD
		log.Printf("⚠️  [Clasificador] Respuesta tardía para frame %s (%s)", frameRef, label)
	}

	g.deliverLocked(models.ClassificationResult{
		FrameRef:   frameRef,
		Label:      label,
		Confidence: confidence,
		ReceivedAt: time.Now(),
	})
}

// deliverLocked entrega un resultado sin bloquear; si el canal está lleno el
// resultado se pierde y el item expira solo (fail-safe)
func (g *TCPGateway) deliverLocked(result models.ClassificationResult) {
	select {
	case g.results <- result:
	default:
		log.Printf("⚠️  [Clasificador] Canal de resultados lleno, resultado para frame %s descartado", result.FrameRef)
	}
}

// Stop cierra la conexión y detiene el gateway
func (g *TCPGateway) Stop() error {
	g.cancel()

	g.mu.Lock()
	defer g.mu.Unlock()

	for frameRef, timer := range g.pending {
		timer.Stop()
		delete(g.pending, frameRef)
	}
	if g.conn != nil {
		return g.conn.Close()
	}
	return nil
}

// ParseResponse parsea una línea "<frame-uuid>;<GOOD|BAD>;<confidence>"
func ParseResponse(line string) (uuid.UUID, models.Classification, float64, error) {
	parts := strings.Split(strings.TrimSpace(line), ";")
	if len(parts) != 3 {
		return uuid.Nil, models.ClassUnknown, 0, fmt.Errorf("se esperaban 3 partes, hay %d", len(parts))
	}

	frameRef, err := uuid.Parse(strings.TrimSpace(parts[0]))
	if err != nil {
		return uuid.Nil, models.ClassUnknown, 0, fmt.Errorf("frame-uuid inválido: %w", err)
	}

	var label models.Classification
	switch strings.ToUpper(strings.TrimSpace(parts[1])) {
	case "GOOD":
		label = models.ClassGood
	case "BAD":
		label = models.ClassBad
	default:
		return uuid.Nil, models.ClassUnknown, 0, fmt.Errorf("label desconocido %q", parts[1])
	}

	confidence, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil {
		return uuid.Nil, models.ClassUnknown, 0, fmt.Errorf("confidence inválida: %w", err)
	}

	return frameRef, label, confidence, nil
}
