package main

import (
	"fmt"
	"log"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// simular_deteccion emite eventos de barrera como lo haría el bridge del
// sensor: TRIG;<lane>;<frame-uuid>;<unix-nanos>\r\n sobre TCP
func simular_deteccion(host string, lanes int, intervaloMs int) {
	// Esperar a que el listener esté listo
	time.Sleep(2 * time.Second)

	log.Printf("📡 Conectando a %s...", host)
	conn, err := net.Dial("tcp", host)
	if err != nil {
		log.Fatalf("❌ Error al conectar: %v", err)
	}
	defer conn.Close()

	log.Printf("✅ Conectado al TriggerListener en %s", host)
	log.Printf("⚙️  Lanes: %d | Intervalo: %dms", lanes, intervaloMs)
	log.Println("🚀 Iniciando simulación de detecciones...")
	log.Println("")

	ticker := time.NewTicker(time.Duration(intervaloMs) * time.Millisecond)
	defer ticker.Stop()

	// Canal para detectar Ctrl+C
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	contador := 1

	for {
		select {
		case <-sigChan:
			log.Println("")
			log.Println("🛑 Deteniendo simulador...")
			return

		case <-ticker.C:
			lane := rand.Intn(lanes) + 1
			frameRef := uuid.New()
			detectedAt := time.Now()

			message := fmt.Sprintf("TRIG;%d;%s;%d\r\n", lane, frameRef, detectedAt.UnixNano())
			log.Printf("📤 #%-4d → lane %d frame %s", contador, lane, frameRef)

			_, err := conn.Write([]byte(message))
			if err != nil {
				log.Printf("❌ Error al enviar: %v", err)
				log.Println("🔄 Intentando reconectar...")
				time.Sleep(2 * time.Second)

				conn, err = net.Dial("tcp", host)
				if err != nil {
					log.Fatalf("❌ No se pudo reconectar: %v", err)
				}
				log.Printf("✅ Reconectado a %s", host)
				continue
			}

			// Leer respuesta (ACK/NACK) con timeout
			buffer := make([]byte, 1024)
			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			n, err := conn.Read(buffer)
			if err != nil {
				log.Printf("      ⚠️  No se recibió respuesta (timeout o error): %v", err)
			} else {
				response := strings.TrimSpace(string(buffer[:n]))
				if response == "NACK" {
					log.Printf("      📥 ❌ NACK (evento rechazado)")
				} else {
					log.Printf("      📥 ✅ %s", response)
				}
			}

			contador++
		}
	}
}

func main() {
	// Configuración
	host := "localhost:9100"
	lanes := 2
	intervaloMs := 250 // Milisegundos entre detecciones

	// Parsear argumentos (opcional)
	if len(os.Args) > 1 {
		host = os.Args[1]
	}
	if len(os.Args) > 2 {
		if n, err := strconv.Atoi(os.Args[2]); err == nil && n > 0 {
			lanes = n
		}
	}
	if len(os.Args) > 3 {
		if n, err := strconv.Atoi(os.Args[3]); err == nil && n > 0 {
			intervaloMs = n
		}
	}

	// Banner
	log.Println("")
	log.Println("╔═══════════════════════════════════════════════╗")
	log.Println("║   🎯 SIMULADOR DE SENSOR - API BEANSORT       ║")
	log.Println("╚═══════════════════════════════════════════════╝")
	log.Println("")

	simular_deteccion(host, lanes, intervaloMs)
}
