package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"API-BEANSORT/internal/actuator"
	"API-BEANSORT/internal/classify"
	"API-BEANSORT/internal/config"
	"API-BEANSORT/internal/db"
	"API-BEANSORT/internal/listeners"
	"API-BEANSORT/internal/models"
	"API-BEANSORT/internal/monitoring"
	"API-BEANSORT/internal/scheduler"
	"API-BEANSORT/internal/shared"
	"API-BEANSORT/internal/tracker"
	"API-BEANSORT/internal/web"
)

func main() {
	// Configurar logger
	log.SetOutput(os.Stdout)
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	log.Println("🚀 Iniciando línea de selección - API Beansort")

	// 1. Variables de entorno y configuración YAML
	if err := godotenv.Load(); err != nil {
		log.Println("No se ha encontrado archivo .env, usando únicamente variables de entorno del sistema")
	}

	configPath := getEnv("BEANSORT_CONFIG", "config.yaml")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("❌ Error al cargar configuración: %v", err)
	}
	log.Printf("✅ Configuración cargada desde %s (%d lanes, %d canales)",
		configPath, len(cfg.Lanes), len(cfg.Channels))

	// 2. Recetas del MES: se aplican sobre la configuración ANTES de armar el
	// pipeline (solo entre corridas, nunca con items en vuelo)
	if cfg.Database.SQLServer.Host != "" {
		applyRecipes(context.Background(), cfg)
	}

	// 3. Contadores del pipeline y estadísticas de flujo
	counters := monitoring.NewPipelineCounters()
	go counters.StartFlowStatistics(
		cfg.Statistics.GetFlowCalculationInterval(),
		cfg.Statistics.GetFlowWindowDuration(),
	)

	// 4. Canales compartidos del pipeline. Los eventos terminales del tracker
	// se reparten a dos consumidores: el hub WebSocket y el archivo Postgres
	channelMgr := shared.GetChannelManager()
	triggerChan := channelMgr.GetTriggerChannel()
	resultChan := channelMgr.GetResultChannel()
	eventChan := channelMgr.GetItemEventChannel()

	hubEvents := make(chan models.ItemEvent, 64)
	archiveEvents := make(chan models.ItemEvent, 64)
	go teeItemEvents(eventChan, hubEvents, archiveEvents)

	// 5. Backend de actuación según configuración
	backend, err := buildBackend(cfg)
	if err != nil {
		log.Fatalf("❌ Error al inicializar backend de actuación: %v", err)
	}
	log.Printf("✅ Backend de actuación: %s", backend.Name())

	// 6. Banco de eyectores
	bank, err := actuator.NewBank(cfg.Channels, backend, cfg.Scheduler.GetJitterTolerance())
	if err != nil {
		log.Fatalf("❌ Error al crear banco de eyectores: %v", err)
	}

	// 7. Tracker de items en vuelo
	trk, err := tracker.New(cfg.Lanes, counters, eventChan)
	if err != nil {
		log.Fatalf("❌ Error al crear tracker: %v", err)
	}

	// 8. Ejecutor realtime + scheduler, conectados en ambos sentidos con el
	// tracker (el tracker registra deadlines, el scheduler consulta items)
	executor := scheduler.NewRealtimeExecutor(bank, counters)
	sched := scheduler.New(trk, bank, executor, cfg.Scheduler.GetLeadTime())
	trk.SetQueue(sched)

	go executor.Run()
	go sched.Run()

	// 9. Gateway del clasificador
	gateway, err := buildGateway(cfg, resultChan)
	if err != nil {
		log.Fatalf("❌ Error al inicializar gateway del clasificador: %v", err)
	}

	// 10. Bomba de triggers: detección → registro → request de clasificación
	go runTriggerPump(trk, gateway, counters, triggerChan,
		cfg.Classifier.GetMaxBudget(), cfg.Scheduler.GetLeadTime())

	// 11. Bomba de resultados: clasificador → tracker → wake del scheduler
	go func() {
		for result := range resultChan {
			trk.OnClassification(result)
		}
	}()

	// 12. Barrido periódico de items expirados que el scheduler no alcanzó
	go runReaper(trk, cfg.Scheduler.GetReapInterval())

	// 13. Listener TCP del sensor de barrera
	triggerListener := listeners.NewTriggerListener(cfg.Trigger.Host, cfg.Trigger.Port, triggerChan)
	if err := triggerListener.Start(); err != nil {
		log.Fatalf("❌ Error al iniciar TriggerListener: %v", err)
	}

	// 14. Archivo de eventos en PostgreSQL (best-effort: sin DB el sorter
	// sigue operando, solo sin historial)
	ctx := context.Background()
	var archive *db.EventArchive
	if cfg.Database.Postgres.URL != "" {
		archive = startArchive(ctx, cfg, archiveEvents)
	} else {
		log.Println("⚠️  PostgreSQL no configurado, archivo de eventos deshabilitado")
		// Drenar el destino para que el tee nunca acumule
		go func() {
			for range archiveEvents {
			}
		}()
	}

	// 15. Monitor de dispositivos externos
	var deviceMonitor *monitoring.DeviceMonitor
	if len(cfg.Monitoring.Devices) > 0 {
		deviceMonitor = monitoring.NewDeviceMonitor(
			cfg.Monitoring.GetHeartbeatInterval(),
			cfg.Monitoring.GetTimeout(),
		)
		for _, dev := range cfg.Monitoring.Devices {
			deviceMonitor.RegisterDevice(&models.DeviceStatus{
				ID:         dev.ID,
				DeviceName: dev.Name,
				IP:         dev.Host,
				Port:       dev.Port,
			})
		}
		deviceMonitor.Start()
	}

	// 16. Frontend HTTP + WebSocket
	frontend := web.NewHTTPFrontend(fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port))
	frontend.SetTracker(trk)
	frontend.SetBank(bank)
	frontend.SetScheduler(sched)
	frontend.SetCounters(counters)
	frontend.SetDeviceMonitor(deviceMonitor)

	hub := frontend.GetWebSocketHub()
	laneIDs := make([]int, 0, len(cfg.Lanes))
	for _, lane := range cfg.Lanes {
		laneIDs = append(laneIDs, lane.ID)
	}
	hub.CreateRoomsForLanes(laneIDs)
	hub.SubscribeToItemEvents(hubEvents)

	// Snapshot periódico de contadores hacia la room "counters"
	go func() {
		ticker := time.NewTicker(cfg.Statistics.GetFlowCalculationInterval())
		defer ticker.Stop()
		for range ticker.C {
			hub.NotifyCounters(counters.Snapshot())
		}
	}()

	go func() {
		if err := frontend.Start(); err != nil {
			log.Fatalf("❌ Error en servidor HTTP: %v", err)
		}
	}()

	log.Println("✅ Línea de selección iniciada correctamente")
	log.Println("Presiona Ctrl+C para detener...")

	// Esperar señal de término
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("🛑 Señal de término recibida, deteniendo...")

	triggerListener.Stop()
	gateway.Stop()
	sched.Stop()
	executor.Stop()
	counters.Stop()
	if deviceMonitor != nil {
		deviceMonitor.Stop()
	}
	if archive != nil {
		channelMgr.CloseAll()
		archive.Stop()
	}

	log.Println("👋 Sistema detenido")
}

// runTriggerPump consume los eventos del sensor, registra cada item y emite
// el request de clasificación con el budget que el deadline permite
func runTriggerPump(trk *tracker.Tracker, gateway classify.Gateway,
	counters *monitoring.PipelineCounters, triggers <-chan models.TriggerEvent,
	maxBudget, leadTime time.Duration) {

	for event := range triggers {
		item, err := trk.Create(event.DetectedAt, event.FrameRef, event.Lane)
		if err != nil {
			log.Printf("❌ [Pipeline] Trigger descartado: %v", err)
			continue
		}

		// El budget real es lo que queda hasta la ventana de decisión,
		// acotado por el tope de configuración
		budget := time.Until(item.Deadline.Add(-leadTime))
		if budget > maxBudget {
			budget = maxBudget
		}
		if budget <= 0 {
			// El item ya está demasiado cerca del eyector: ni vale la pena
			// preguntar, quedará UNKNOWN y pasará
			counters.ClassifierTimeouts.Add(1)
			continue
		}

		gateway.Classify(item.FrameRef, budget)
	}
}

// runReaper barre periódicamente los items cuyo deadline pasó sin decisión.
// El tracker ya loguea cada barrido con expirados.
func runReaper(trk *tracker.Tracker, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		trk.ReapExpired(time.Now())
	}
}

// teeItemEvents reparte cada evento terminal a todos los destinos sin
// bloquear; al cerrarse la fuente cierra los destinos para que los
// consumidores terminen ordenadamente
func teeItemEvents(src <-chan models.ItemEvent, dsts ...chan models.ItemEvent) {
	for event := range src {
		for _, dst := range dsts {
			select {
			case dst <- event:
			default:
			}
		}
	}
	for _, dst := range dsts {
		close(dst)
	}
}

func buildBackend(cfg *config.Config) (actuator.Backend, error) {
	switch cfg.Actuator.Backend {
	case "firmata":
		return actuator.NewFirmataBackend(cfg.Actuator.SerialPort, cfg.Actuator.SerialBaud, cfg.Channels)

	case "opcua":
		backend := actuator.NewOPCUABackend(cfg.Actuator.OPCUAEndpoint,
			cfg.Actuator.OPCUAObjectID, cfg.Actuator.OPCUAMethodID)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := backend.Connect(ctx); err != nil {
			return nil, err
		}
		return backend, nil

	case "mock", "":
		log.Println("⚠️  Backend de actuación MOCK: sin hardware real")
		return actuator.NewMockBackend(), nil

	default:
		return nil, fmt.Errorf("backend de actuación desconocido: %q", cfg.Actuator.Backend)
	}
}

func buildGateway(cfg *config.Config, results chan<- models.ClassificationResult) (classify.Gateway, error) {
	switch cfg.Classifier.Mode {
	case "tcp", "":
		gateway := classify.NewTCPGateway(cfg.Classifier.Host, cfg.Classifier.Port,
			cfg.Classifier.GetDialTimeout(), results)
		if err := gateway.Start(); err != nil {
			return nil, err
		}
		return gateway, nil

	case "fake":
		log.Println("⚠️  Gateway de clasificación FAKE: resultados simulados")
		return classify.NewFakeGateway(50*time.Millisecond, results), nil

	default:
		return nil, fmt.Errorf("modo de clasificador desconocido: %q", cfg.Classifier.Mode)
	}
}

func startArchive(ctx context.Context, cfg *config.Config, events <-chan models.ItemEvent) *db.EventArchive {
	connectTimeout, err := cfg.Database.Postgres.GetConnectTimeoutDuration()
	if err != nil {
		connectTimeout = 10 * time.Second
	}
	healthcheck, err := cfg.Database.Postgres.GetHealthcheckIntervalDuration()
	if err != nil {
		healthcheck = 30 * time.Second
	}

	manager, err := db.GetPostgresManagerWithURL(ctx, cfg.Database.Postgres.URL,
		int32(cfg.Database.Postgres.MinConns), int32(cfg.Database.Postgres.MaxConns),
		connectTimeout, healthcheck)
	if err != nil {
		log.Printf("⚠️  PostgreSQL no disponible, archivo de eventos deshabilitado: %v", err)
		go func() {
			for range events {
			}
		}()
		return nil
	}

	archive := db.NewEventArchive(manager, events)
	if err := archive.EnsureSchema(ctx); err != nil {
		log.Printf("⚠️  No fue posible preparar el esquema del archivo: %v", err)
	}
	archive.Start()
	log.Println("✅ Archivo de eventos PostgreSQL iniciado")
	return archive
}

// applyRecipes sincroniza las recetas del MES y aplica la del producto activo
// (BEANSORT_PRODUCT, o la primera) sobre la configuración cargada. Con el MES
// caído el YAML manda y el sistema arranca igual.
func applyRecipes(ctx context.Context, cfg *config.Config) {
	manager, err := db.GetManagerWithConfig(ctx, cfg.Database.SQLServer)
	if err != nil {
		log.Printf("⚠️  SQL Server del MES no disponible, recetas no sincronizadas: %v", err)
		return
	}
	defer manager.Close()

	recipes, err := manager.SyncRecipes(ctx)
	if err != nil {
		log.Printf("⚠️  Error sincronizando recetas: %v", err)
		return
	}
	if len(recipes) == 0 {
		log.Println("⚠️  El MES no tiene recetas, configuración YAML sin cambios")
		return
	}

	producto := getEnv("BEANSORT_PRODUCT", recipes[0].Product)
	for _, r := range recipes {
		if r.Product != producto {
			continue
		}
		if err := cfg.ApplyRecipe(r); err != nil {
			log.Fatalf("❌ Receta %q inválida: %v", r.Product, err)
		}
		log.Printf("📋 Receta %q aplicada: velocidad %.2f m/s, margen %.3f m, budget %d ms, confianza mínima %.2f",
			r.Product, r.LaneSpeedMPS, r.ItemWidthMarginM, r.BudgetMs, r.MinConfidence)
		return
	}

	log.Printf("⚠️  Receta %q no encontrada en el MES, configuración YAML sin cambios", producto)
}

// getEnv obtiene una variable de entorno o devuelve un valor por defecto
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
