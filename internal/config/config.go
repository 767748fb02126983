package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"API-BEANSORT/internal/models"
)

type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Actuator   ActuatorConfig   `yaml:"actuator"`
	Trigger    TriggerConfig    `yaml:"trigger"`
	Lanes      []Lane           `yaml:"lanes"`
	Channels   []EjectorChannel `yaml:"channels"`
	Database   DatabaseConfig   `yaml:"database"`
	Statistics StatisticsConfig `yaml:"statistics"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type ClassifierConfig struct {
	Mode        string `yaml:"mode"` // "tcp" o "fake" (simulador en proceso)
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	DialTimeout string `yaml:"dial_timeout"` // ej: "2s"
	MaxBudget   string `yaml:"max_budget"`   // tope superior del budget por item, ej: "400ms"
}

func (c *ClassifierConfig) GetDialTimeout() time.Duration {
	d, err := time.ParseDuration(c.DialTimeout)
	if err != nil {
		return 2 * time.Second // default
	}
	return d
}

func (c *ClassifierConfig) GetMaxBudget() time.Duration {
	d, err := time.ParseDuration(c.MaxBudget)
	if err != nil {
		return 400 * time.Millisecond // default
	}
	return d
}

type SchedulerConfig struct {
	LeadTime        string `yaml:"lead_time"`        // tiempo mínimo entre decisión y pulso físico, ej: "30ms"
	ReapInterval    string `yaml:"reap_interval"`    // barrido de items expirados, ej: "50ms"
	JitterTolerance string `yaml:"jitter_tolerance"` // jitter máximo tolerado del pulso, ej: "2ms"
}

func (s *SchedulerConfig) GetLeadTime() time.Duration {
	d, err := time.ParseDuration(s.LeadTime)
	if err != nil {
		return 30 * time.Millisecond // default
	}
	return d
}

func (s *SchedulerConfig) GetReapInterval() time.Duration {
	d, err := time.ParseDuration(s.ReapInterval)
	if err != nil {
		return 50 * time.Millisecond // default
	}
	return d
}

func (s *SchedulerConfig) GetJitterTolerance() time.Duration {
	d, err := time.ParseDuration(s.JitterTolerance)
	if err != nil {
		return 2 * time.Millisecond // default
	}
	return d
}

type ActuatorConfig struct {
	Backend       string `yaml:"backend"`        // "mock", "firmata" o "opcua"
	SerialPort    string `yaml:"serial_port"`    // puente firmata, ej: "/dev/ttyACM0"
	SerialBaud    int    `yaml:"serial_baud"`    // ej: 57600
	OPCUAEndpoint string `yaml:"opcua_endpoint"` // ej: "opc.tcp://192.168.120.100:4840"
	OPCUAObjectID string `yaml:"opcua_object_id"`
	OPCUAMethodID string `yaml:"opcua_method_id"`
}

type TriggerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type Lane struct {
	ID               int     `yaml:"id"`
	SpeedMPS         float64 `yaml:"speed_mps"`
	SensorToEjectorM float64 `yaml:"sensor_to_ejector_m"`
	ItemWidthMarginM float64 `yaml:"item_width_margin_m"`
	Channel          int     `yaml:"channel"` // channel_id del eyector asignado a esta lane
}

type EjectorChannel struct {
	ID                int    `yaml:"id"`
	Lane              int    `yaml:"lane"`
	PulseDuration     string `yaml:"pulse_duration"`      // ej: "25ms"
	MinRefireInterval string `yaml:"min_refire_interval"` // ej: "100ms"
	CalibrationOffset string `yaml:"calibration_offset"`  // corrección sistemática del commissioning, ej: "-2ms"
	FirmataPin        uint8  `yaml:"firmata_pin"`
}

func (c *EjectorChannel) GetPulseDuration() time.Duration {
	d, err := time.ParseDuration(c.PulseDuration)
	if err != nil {
		return 25 * time.Millisecond // default
	}
	return d
}

func (c *EjectorChannel) GetMinRefireInterval() time.Duration {
	d, err := time.ParseDuration(c.MinRefireInterval)
	if err != nil {
		return 100 * time.Millisecond // default
	}
	return d
}

func (c *EjectorChannel) GetCalibrationOffset() time.Duration {
	d, err := time.ParseDuration(c.CalibrationOffset)
	if err != nil {
		return 0
	}
	return d
}

type DatabaseConfig struct {
	Postgres  PostgresConfig  `yaml:"postgres"`
	SQLServer SQLServerConfig `yaml:"sqlserver"`
}

type PostgresConfig struct {
	URL                 string `yaml:"url"`
	MinConns            int    `yaml:"min_conns"`
	MaxConns            int    `yaml:"max_conns"`
	ConnectTimeout      string `yaml:"connect_timeout"`
	HealthcheckInterval string `yaml:"healthcheck_interval"`
}

func (p PostgresConfig) GetConnectTimeoutDuration() (time.Duration, error) {
	return time.ParseDuration(p.ConnectTimeout)
}

func (p PostgresConfig) GetHealthcheckIntervalDuration() (time.Duration, error) {
	return time.ParseDuration(p.HealthcheckInterval)
}

type SQLServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	Database       string `yaml:"database"`
	Encrypt        string `yaml:"encrypt"`
	TrustCert      bool   `yaml:"trust_cert"`
	AppName        string `yaml:"app_name"`
	ConnectTimeout int    `yaml:"connect_timeout"`
	MinConns       int    `yaml:"min_conns"`
	MaxConns       int    `yaml:"max_conns"`
	RecipeTable    string `yaml:"recipe_table"`
}

type StatisticsConfig struct {
	FlowCalculationInterval string `yaml:"flow_calculation_interval"` // ej: "10s"
	FlowWindowDuration      string `yaml:"flow_window_duration"`      // ej: "60s"
}

func (s *StatisticsConfig) GetFlowCalculationInterval() time.Duration {
	duration, err := time.ParseDuration(s.FlowCalculationInterval)
	if err != nil {
		return 10 * time.Second // default
	}
	return duration
}

func (s *StatisticsConfig) GetFlowWindowDuration() time.Duration {
	duration, err := time.ParseDuration(s.FlowWindowDuration)
	if err != nil {
		return 60 * time.Second // default
	}
	return duration
}

type MonitoringConfig struct {
	HeartbeatInterval string            `yaml:"heartbeat_interval"` // ej: "5s"
	Timeout           string            `yaml:"timeout"`            // ej: "2s"
	Devices           []MonitoredDevice `yaml:"devices"`
}

type MonitoredDevice struct {
	ID   int    `yaml:"id"`
	Name string `yaml:"name"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (m *MonitoringConfig) GetHeartbeatInterval() time.Duration {
	d, err := time.ParseDuration(m.HeartbeatInterval)
	if err != nil {
		return 5 * time.Second // default
	}
	return d
}

func (m *MonitoringConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(m.Timeout)
	if err != nil {
		return 2 * time.Second // default
	}
	return d
}

// LoadConfig carga la configuración desde el archivo YAML y la valida.
// La configuración se carga una sola vez al arranque: cambiarla con items
// en vuelo es indefinido, solo se aplica entre corridas.
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error leyendo archivo de configuración: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parseando YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// ApplyRecipe sobreescribe la configuración con los parámetros de la receta
// de producto del MES: velocidad y margen de cada lane y el budget máximo del
// clasificador. Se aplica solo entre corridas, antes de armar el pipeline, y
// la configuración resultante se vuelve a validar.
func (c *Config) ApplyRecipe(r models.Recipe) error {
	for i := range c.Lanes {
		if r.LaneSpeedMPS > 0 {
			c.Lanes[i].SpeedMPS = r.LaneSpeedMPS
		}
		if r.ItemWidthMarginM > 0 {
			c.Lanes[i].ItemWidthMarginM = r.ItemWidthMarginM
		}
	}
	if r.BudgetMs > 0 {
		c.Classifier.MaxBudget = fmt.Sprintf("%dms", r.BudgetMs)
	}
	return c.Validate()
}

// Validate verifica las invariantes de arranque. Cualquier error acá es
// ErrInvalidConfiguration y el sistema no debe arrancar.
func (c *Config) Validate() error {
	if len(c.Lanes) == 0 {
		return fmt.Errorf("%w: no hay lanes configuradas", models.ErrInvalidConfiguration)
	}
	if len(c.Channels) == 0 {
		return fmt.Errorf("%w: no hay canales de eyector configurados", models.ErrInvalidConfiguration)
	}

	channelIDs := make(map[int]bool, len(c.Channels))
	for _, ch := range c.Channels {
		if channelIDs[ch.ID] {
			return fmt.Errorf("%w: channel_id %d duplicado", models.ErrInvalidConfiguration, ch.ID)
		}
		channelIDs[ch.ID] = true

		if ch.GetPulseDuration() <= 0 {
			return fmt.Errorf("%w: canal %d con pulse_duration no positivo", models.ErrInvalidConfiguration, ch.ID)
		}
		if ch.GetMinRefireInterval() <= 0 {
			return fmt.Errorf("%w: canal %d con min_refire_interval no positivo", models.ErrInvalidConfiguration, ch.ID)
		}
		// Dos pulsos sobre el mismo canal nunca deben solaparse: el cooldown
		// tiene que cubrir al menos la duración del pulso
		if ch.GetMinRefireInterval() < ch.GetPulseDuration() {
			return fmt.Errorf("%w: canal %d con min_refire_interval %v menor que pulse_duration %v",
				models.ErrInvalidConfiguration, ch.ID, ch.GetMinRefireInterval(), ch.GetPulseDuration())
		}
	}

	laneIDs := make(map[int]bool, len(c.Lanes))
	for _, lane := range c.Lanes {
		if laneIDs[lane.ID] {
			return fmt.Errorf("%w: lane %d duplicada", models.ErrInvalidConfiguration, lane.ID)
		}
		laneIDs[lane.ID] = true

		if lane.SpeedMPS <= 0 {
			return fmt.Errorf("%w: lane %d con speed_mps=%.4f (debe ser > 0)",
				models.ErrInvalidConfiguration, lane.ID, lane.SpeedMPS)
		}
		if lane.SensorToEjectorM <= 0 {
			return fmt.Errorf("%w: lane %d con sensor_to_ejector_m=%.4f (debe ser > 0)",
				models.ErrInvalidConfiguration, lane.ID, lane.SensorToEjectorM)
		}
		if !channelIDs[lane.Channel] {
			return fmt.Errorf("%w: lane %d apunta al canal %d que no existe",
				models.ErrInvalidConfiguration, lane.ID, lane.Channel)
		}
	}

	return nil
}
