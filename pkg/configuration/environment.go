package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/iota-uz/utils/fs"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/iota-electoral/pkg/logging"
)

const Production = "production"

var singleton = sync.OnceValue(func() *Configuration {
	c, err := Load([]string{".env", ".env.local"})
	if err != nil {
		panic(err)
	}
	return c
})

// LoadEnv loads the env files that exist, looked up in the working directory
// first and then in the nearest parent holding a go.mod.
func LoadEnv(envFiles []string) (int, error) {
	existing := existingFiles(envFiles, "")
	if len(existing) == 0 {
		if root, ok := goModRoot(); ok {
			existing = existingFiles(envFiles, root)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

func existingFiles(envFiles []string, dir string) []string {
	out := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		path := file
		if dir != "" && !filepath.IsAbs(file) {
			path = filepath.Join(dir, file)
		}
		if fs.FileExists(path) {
			out = append(out, path)
		}
	}
	return out
}

func goModRoot() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		if fs.FileExists(filepath.Join(dir, "go.mod")) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"iota_electoral"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type RedisOptions struct {
	URL          string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	CacheEnabled bool          `env:"CACHE_ENABLED" envDefault:"false"`
	CacheTTL     time.Duration `env:"CACHE_TTL" envDefault:"24h"`
}

func (r *RedisOptions) Validate() error {
	if !r.CacheEnabled {
		return nil
	}
	if strings.TrimSpace(r.URL) == "" {
		return fmt.Errorf("REDIS_URL is required when CACHE_ENABLED is set")
	}
	if r.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive, got %s", r.CacheTTL)
	}
	return nil
}

type SimulationOptions struct {
	// Workers defaults to GOMAXPROCS when zero.
	Workers int   `env:"SIMULATION_WORKERS" envDefault:"0"`
	Trials  int   `env:"SIMULATION_TRIALS" envDefault:"10000"`
	Seed    int64 `env:"SIMULATION_SEED" envDefault:"1"`
}

func (s *SimulationOptions) Validate() error {
	if s.Workers < 0 {
		return fmt.Errorf("SIMULATION_WORKERS must be non-negative, got %d", s.Workers)
	}
	if s.Trials < 1 {
		return fmt.Errorf("SIMULATION_TRIALS must be >= 1, got %d", s.Trials)
	}
	return nil
}

func (s *SimulationOptions) WorkerCount() int {
	if s.Workers > 0 {
		return s.Workers
	}
	return runtime.GOMAXPROCS(0)
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	TempoURL    string `env:"OTEL_TEMPO_URL" envDefault:"localhost:4318"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"electoral"`
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Addr    string `env:"PROMETHEUS_METRICS_ADDR" envDefault:"localhost:9464"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/debug/prometheus"`
}

type Configuration struct {
	Database      DatabaseOptions
	Redis         RedisOptions
	Simulation    SimulationOptions
	OpenTelemetry OpenTelemetryOptions
	Prometheus    PrometheusOptions

	MigrationsDir    string `env:"MIGRATIONS_DIR" envDefault:"migrations/electoral"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`
	LogPath          string `env:"LOG_PATH" envDefault:""`

	logFile *os.File
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func Use() *Configuration {
	return singleton()
}

// Load builds a configuration from envFiles and the process environment.
// Callers own the result and must Unload it.
func Load(envFiles []string) (*Configuration, error) {
	c := &Configuration{}
	if err := c.load(envFiles); err != nil {
		c.Unload()
		return nil, err
	}
	return c, nil
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}

	if c.LogPath != "" {
		f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
		if err != nil {
			return err
		}
		c.logFile = f
		c.logger = logger
	} else {
		c.logger = logging.ConsoleLogger(c.LogrusLogLevel())
	}

	c.Database.Opts = c.Database.ConnectionString()
	return nil
}

func (c *Configuration) Validate() error {
	if err := c.Simulation.Validate(); err != nil {
		return fmt.Errorf("simulation configuration error: %w", err)
	}
	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("redis configuration error: %w", err)
	}
	switch c.LogLevel {
	case "silent", "error", "warn", "info", "debug":
	default:
		return fmt.Errorf("invalid LOG_LEVEL=%q (expected silent|error|warn|info|debug)", c.LogLevel)
	}
	return nil
}

// Unload closes the log file, if any.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
		c.logFile = nil
	}
}
