package config

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	StorageWAL      = "wal"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"

	DefaultWALDir           = "./wal/tally"
	DefaultQueueDir         = "./wal/reportqueue"
	DefaultPollInterval     = 30 * time.Second
	DefaultMaxRetries       = 3
	DefaultRetryInterval    = time.Second
	DefaultMaxRetryInterval = 30 * time.Second
)

type Config struct {
	Storage       string
	WALDir        string
	DSN           string
	QueueDir      string
	PollInterval  time.Duration
	MaxRetries    int
	RetryInterval time.Duration
	// MaxRetryInterval caps the growing wait between retries.
	MaxRetryInterval time.Duration
	LogLevel         zapcore.Level

	// Import is a yaml file of exchanges and report snapshots to load before
	// exiting. Empty runs the report worker instead.
	Import string

	// Setup asks for the interactive wizard before anything else runs.
	Setup bool
	// Path is the yaml file the config came from, empty for flags.
	Path string
}

// ConfigTmp is the yaml form of Config.
type ConfigTmp struct {
	Storage          string        `yaml:"storage"`
	WALDir           string        `yaml:"wal_dir,omitempty"`
	DSN              string        `yaml:"dsn,omitempty"`
	QueueDir         string        `yaml:"queue_dir,omitempty"`
	PollInterval     time.Duration `yaml:"poll_interval,omitempty"`
	MaxRetriesStr    string        `yaml:"max_retries,omitempty"`
	RetryInterval    time.Duration `yaml:"retry_interval,omitempty"`
	MaxRetryInterval time.Duration `yaml:"max_retry_interval,omitempty"`
	LogLevel         string        `yaml:"log_level,omitempty"`
}

// Get reads the config from the yaml file passed with --config, or from the
// remaining flags when no file is given.
func Get(args []string) (Config, error) {
	fs := flag.NewFlagSet("tally", flag.ContinueOnError)
	path := fs.String("config", "", "path to yaml config")
	setup := fs.Bool("setup", false, "run the interactive config wizard")
	storage := fs.String("storage", StorageWAL, "storage driver: wal, sqlite or postgres")
	walDir := fs.String("waldir", DefaultWALDir, "ledger WAL directory (wal storage)")
	dsn := fs.String("dsn", "", "database DSN (sqlite and postgres storage)")
	queueDir := fs.String("queuedir", DefaultQueueDir, "report queue WAL directory")
	poll := fs.Duration("pollinterval", DefaultPollInterval, "report queue poll interval")
	retries := fs.Int("maxretries", DefaultMaxRetries, "report generation retries per queue entry")
	retryInterval := fs.Duration("retryinterval", DefaultRetryInterval, "initial wait between report generation retries")
	maxRetryInterval := fs.Duration("maxretryinterval", DefaultMaxRetryInterval, "longest wait between report generation retries")
	importPath := fs.String("import", "", "yaml file of exchanges and report snapshots to import, then exit")
	logLevel := fs.String("loglevel", "info", "log level: debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if *setup {
		return Config{Setup: true, Path: *path}, nil
	}

	if *path != "" {
		c, err := FromFile(*path)
		if err != nil {
			return Config{}, err
		}
		c.Import = *importPath
		return c, nil
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if !set["maxretryinterval"] {
		*maxRetryInterval = defaultMaxRetryInterval(*retryInterval)
	}

	level, err := zapcore.ParseLevel(*logLevel)
	if err != nil {
		return Config{}, errors.Errorf("invalid --loglevel provided, --loglevel=%s", *logLevel)
	}

	c := Config{
		Storage:          *storage,
		WALDir:           *walDir,
		DSN:              *dsn,
		QueueDir:         *queueDir,
		PollInterval:     *poll,
		MaxRetries:       *retries,
		RetryInterval:    *retryInterval,
		MaxRetryInterval: *maxRetryInterval,
		LogLevel:         level,
		Import:           *importPath,
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}

// FromFile reads and validates a yaml config.
func FromFile(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}

	var tmp ConfigTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, errors.Wrapf(err, "parse config %s", path)
	}

	c, err := tmp.toConfig()
	if err != nil {
		return Config{}, err
	}
	c.Path = path

	return c, nil
}

func (c ConfigTmp) toConfig() (Config, error) {
	cfg := Config{
		Storage:          c.Storage,
		WALDir:           c.WALDir,
		DSN:              c.DSN,
		QueueDir:         c.QueueDir,
		PollInterval:     c.PollInterval,
		MaxRetries:       DefaultMaxRetries,
		RetryInterval:    c.RetryInterval,
		MaxRetryInterval: c.MaxRetryInterval,
		LogLevel:         zapcore.InfoLevel,
	}

	if cfg.Storage == "" {
		cfg.Storage = StorageWAL
	}
	if cfg.WALDir == "" {
		cfg.WALDir = DefaultWALDir
	}
	if cfg.QueueDir == "" {
		cfg.QueueDir = DefaultQueueDir
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.MaxRetryInterval == 0 {
		cfg.MaxRetryInterval = defaultMaxRetryInterval(cfg.RetryInterval)
	}

	if c.MaxRetriesStr != "" {
		retries, err := strconv.Atoi(c.MaxRetriesStr)
		if err != nil {
			return Config{}, errors.Wrap(err, "incorrect 'max_retries' param in yaml config (must be an integer)")
		}
		cfg.MaxRetries = retries
	}

	if c.LogLevel != "" {
		level, err := zapcore.ParseLevel(c.LogLevel)
		if err != nil {
			return Config{}, errors.Wrapf(err, "incorrect 'log_level' param in yaml config: %s", c.LogLevel)
		}
		cfg.LogLevel = level
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Tmp converts c back to its yaml form.
func (c Config) Tmp() ConfigTmp {
	return ConfigTmp{
		Storage:          c.Storage,
		WALDir:           c.WALDir,
		DSN:              c.DSN,
		QueueDir:         c.QueueDir,
		PollInterval:     c.PollInterval,
		MaxRetriesStr:    strconv.Itoa(c.MaxRetries),
		RetryInterval:    c.RetryInterval,
		MaxRetryInterval: c.MaxRetryInterval,
		LogLevel:         c.LogLevel.String(),
	}
}

// defaultMaxRetryInterval never caps below the initial retry interval.
func defaultMaxRetryInterval(retryInterval time.Duration) time.Duration {
	if retryInterval > DefaultMaxRetryInterval {
		return retryInterval
	}
	return DefaultMaxRetryInterval
}

func (c Config) validate() error {
	switch c.Storage {
	case StorageWAL:
		if c.WALDir == "" {
			return errors.New("wal storage requires a WAL directory")
		}
	case StorageSQLite, StoragePostgres:
		if c.DSN == "" {
			return errors.Errorf("%s storage requires a DSN", c.Storage)
		}
	default:
		return errors.Errorf("unsupported storage %q, use wal, sqlite or postgres", c.Storage)
	}

	if c.QueueDir == "" {
		return errors.New("queue directory is required")
	}
	if c.PollInterval <= 0 {
		return errors.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.MaxRetries < 0 {
		return errors.Errorf("max retries must not be negative, got %d", c.MaxRetries)
	}
	if c.RetryInterval <= 0 {
		return errors.Errorf("retry interval must be positive, got %s", c.RetryInterval)
	}
	if c.MaxRetryInterval < c.RetryInterval {
		return errors.Errorf("max retry interval %s is shorter than retry interval %s", c.MaxRetryInterval, c.RetryInterval)
	}

	return nil
}
