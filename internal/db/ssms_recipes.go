package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/microsoft/go-mssqldb"

	"API-BEANSORT/internal/config"
	"API-BEANSORT/internal/models"
)

// Manager encapsula un pool de conexiones al SQL Server de planta (MES) y
// expone helpers seguros para ejecutar consultas dentro del proyecto.
type Manager struct {
	db          *sql.DB
	recipeTable string
	closeOnce   sync.Once
}

var (
	managerOnce     sync.Once
	managerInstance *Manager
	managerErr      error
)

// GetManager devuelve una instancia singleton del gestor de base de datos.
// La primera invocación crea el pool utilizando la configuración proveniente
// de variables de entorno.
func GetManager(ctx context.Context) (*Manager, error) {
	managerOnce.Do(func() {
		var mgr *Manager
		mgr, managerErr = newManager(ctx)
		if managerErr == nil {
			managerInstance = mgr
		}
	})

	if managerErr != nil {
		return nil, managerErr
	}
	return managerInstance, nil
}

// GetManagerWithConfig devuelve una instancia del gestor usando configuración YAML.
// No usa singleton, crea una nueva instancia cada vez.
func GetManagerWithConfig(ctx context.Context, cfg config.SQLServerConfig) (*Manager, error) {
	// Construir URL con encoding apropiado para caracteres especiales
	query := url.Values{}
	if cfg.Database != "" {
		query.Add("database", cfg.Database)
	}
	query.Add("encrypt", cfg.Encrypt)
	query.Add("TrustServerCertificate", fmt.Sprintf("%t", cfg.TrustCert))
	query.Add("app name", cfg.AppName)
	query.Add("connection timeout", fmt.Sprintf("%d", cfg.ConnectTimeout))

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		RawQuery: query.Encode(),
	}

	db, err := sql.Open("sqlserver", u.String())
	if err != nil {
		return nil, fmt.Errorf("db: no fue posible crear el pool de conexiones: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MinConns)

	// Validar conexión
	pingCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.ConnectTimeout)*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db: no fue posible conectarse a SQL Server: %w", err)
	}

	log.Printf(
		"✅ SQL Server inicializado (host=%s:%d user=%s database=%s)",
		cfg.Host, cfg.Port, cfg.User, visibleDatabase(cfg.Database),
	)

	recipeTable := cfg.RecipeTable
	if recipeTable == "" {
		recipeTable = DEFAULT_MES_RECIPE_TABLE
	}

	return &Manager{db: db, recipeTable: recipeTable}, nil
}

func newManager(ctx context.Context) (*Manager, error) {
	// Cargamos variables de entorno (no es grave si falla; puede que ya se hayan cargado).
	if err := godotenv.Load(); err != nil {
		log.Println("db: no se ha encontrado archivo .env, usando únicamente variables de entorno del sistema")
	}

	port, _ := strconv.Atoi(getEnv("BEANSORT_SSMS_PORT", "1433"))
	timeout, _ := strconv.Atoi(getEnv("BEANSORT_SSMS_CONNECT_TIMEOUT", "15"))

	cfg := config.SQLServerConfig{
		Host:           getEnv("BEANSORT_SSMS_HOST", "localhost"),
		Port:           port,
		User:           getEnv("BEANSORT_SSMS_DB_USER", "sa"),
		Password:       os.Getenv("BEANSORT_SSMS_DB_PASSWORD"),
		Database:       os.Getenv("BEANSORT_SSMS_DB_NAME"),
		Encrypt:        getEnv("BEANSORT_SSMS_DB_ENCRYPT", "disable"),
		TrustCert:      getEnv("BEANSORT_SSMS_DB_TRUST_CERT", "true") == "true",
		AppName:        getEnv("BEANSORT_SSMS_APP_NAME", "API-Beansort"),
		ConnectTimeout: timeout,
		MinConns:       getIntEnv("DB_MIN_CONNS", 5),
		MaxConns:       getIntEnv("DB_MAX_CONNS", 10),
		RecipeTable:    os.Getenv("BEANSORT_SSMS_RECIPE_TABLE"),
	}

	return GetManagerWithConfig(ctx, cfg)
}

// Close cierra el pool de conexiones de manera segura; es idempotente.
func (m *Manager) Close() {
	if m == nil {
		return
	}

	m.closeOnce.Do(func() {
		m.db.Close()
	})
}

// DB devuelve el manejador subyacente *sql.DB.
func (m *Manager) DB() *sql.DB {
	return m.db
}

// QueryContext ejecuta una consulta que devuelve filas, típicamente un SELECT.
func (m *Manager) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return m.db.QueryContext(ctx, query, args...)
}

// QueryRow ejecuta una consulta que espera exactamente una fila de resultado.
func (m *Manager) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return m.db.QueryRowContext(ctx, query, args...)
}

// SyncRecipes lee las recetas de producto desde el MES. Las recetas solo se
// aplican entre corridas, nunca con items en vuelo.
func (m *Manager) SyncRecipes(ctx context.Context) ([]models.Recipe, error) {
	rows, err := m.QueryContext(ctx, m.recipesQuery())
	if err != nil {
		return nil, fmt.Errorf("db: error consultando recetas del MES: %w", err)
	}
	defer rows.Close()

	var recipes []models.Recipe
	for rows.Next() {
		var r models.Recipe
		if err := rows.Scan(&r.Product, &r.LaneSpeedMPS, &r.ItemWidthMarginM,
			&r.BudgetMs, &r.MinConfidence); err != nil {
			return nil, fmt.Errorf("db: error leyendo receta: %w", err)
		}
		recipes = append(recipes, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: error iterando recetas: %w", err)
	}

	log.Printf("✅ %d receta(s) sincronizadas desde el MES", len(recipes))
	return recipes, nil
}

// recipesQuery arma el SELECT sobre la tabla de recetas configurada
func (m *Manager) recipesQuery() string {
	table := m.recipeTable
	if table == "" {
		table = DEFAULT_MES_RECIPE_TABLE
	}
	return fmt.Sprintf(SELECT_MES_RECIPES, table)
}

// Helpers de entorno compartidos por los managers

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDurationEnv(key, fallback string) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		value = fallback
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}
