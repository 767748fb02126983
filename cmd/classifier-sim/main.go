package main

import (
	"bufio"
	"fmt"
	"log"
	"math/rand"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Simulador del clasificador de visión: acepta la conexión del gateway,
// recibe requests CLASSIFY;<frame-uuid>;<budget-ms> y responde
// <frame-uuid>;<GOOD|BAD>;<confidence> tras una latencia simulada.
// Un porcentaje configurable de requests se responde tarde a propósito,
// para ejercitar el fail-safe pass-through del sorter.

func atender_conexion(conn net.Conn, badPercentage, slowPercentage int) {
	defer conn.Close()
	log.Printf("✅ Gateway conectado desde %s", conn.RemoteAddr())

	reader := bufio.NewReader(conn)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			log.Printf("Conexión cerrada: %v", err)
			return
		}

		parts := strings.Split(strings.TrimSpace(line), ";")
		if len(parts) != 3 || parts[0] != "CLASSIFY" {
			log.Printf("❌ Request inválido: %q", strings.TrimSpace(line))
			continue
		}

		frameRef := parts[1]
		budgetMs, err := strconv.Atoi(parts[2])
		if err != nil {
			log.Printf("❌ Budget inválido: %q", parts[2])
			continue
		}

		// Responder en goroutine propia: el clasificador real procesa
		// frames en paralelo y responde fuera de orden
		go func() {
			// Latencia simulada: normalmente bien dentro del budget
			latency := time.Duration(rand.Intn(budgetMs*2/3)+5) * time.Millisecond
			if rand.Intn(100) < slowPercentage {
				// Respuesta tardía a propósito: llega después del budget
				latency = time.Duration(budgetMs+50+rand.Intn(100)) * time.Millisecond
			}
			time.Sleep(latency)

			label := "GOOD"
			if rand.Intn(100) < badPercentage {
				label = "BAD"
			}
			confidence := 0.70 + rand.Float64()*0.29

			response := fmt.Sprintf("%s;%s;%.2f\r\n", frameRef, label, confidence)
			if _, err := conn.Write([]byte(response)); err != nil {
				log.Printf("❌ Error respondiendo frame %s: %v", frameRef, err)
				return
			}

			tardio := ""
			if latency > time.Duration(budgetMs)*time.Millisecond {
				tardio = " (TARDÍO, será descartado)"
			}
			log.Printf("📤 %s → %s %.2f tras %v%s", frameRef, label, confidence, latency, tardio)
		}()
	}
}

func main() {
	addr := ":9200"
	badPercentage := 30  // porcentaje de items BAD
	slowPercentage := 10 // porcentaje de respuestas fuera de budget

	if len(os.Args) > 1 {
		addr = os.Args[1]
	}
	if len(os.Args) > 2 {
		if n, err := strconv.Atoi(os.Args[2]); err == nil && n >= 0 && n <= 100 {
			badPercentage = n
		}
	}
	if len(os.Args) > 3 {
		if n, err := strconv.Atoi(os.Args[3]); err == nil && n >= 0 && n <= 100 {
			slowPercentage = n
		}
	}

	log.Println("")
	log.Println("╔═══════════════════════════════════════════════╗")
	log.Println("║   🔬 SIMULADOR CLASIFICADOR - API BEANSORT    ║")
	log.Println("╚═══════════════════════════════════════════════╝")
	log.Println("")

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("❌ Error al crear listener: %v", err)
	}

	log.Printf("✓ Clasificador simulado escuchando en %s (BAD: %d%%, tardíos: %d%%)",
		addr, badPercentage, slowPercentage)

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Printf("Error al aceptar conexión: %v", err)
			continue
		}
		go atender_conexion(conn, badPercentage, slowPercentage)
	}
}
