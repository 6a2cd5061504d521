// Package config loads the project and connections files that describe an
// export run.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/block/spooler/pkg/compress"
	"github.com/block/spooler/pkg/destinations"
	"github.com/block/spooler/pkg/query"
	"github.com/block/spooler/pkg/writer"
	"github.com/spf13/viper"
)

// Static errors for configuration validation
var (
	ErrSourceRequired       = errors.New("project source connection is required")
	ErrSourceUnknown        = errors.New("project source is not defined in the connections file")
	ErrConnectionType       = errors.New("connection type must be one of: oracle, mysql")
	ErrHostRequired         = errors.New("connection host is required")
	ErrUserRequired         = errors.New("connection user is required")
	ErrPortInvalid          = errors.New("connection port must be between 1 and 65535")
	ErrTargetDirRequired    = errors.New("project target_dir is required")
	ErrDelimiterInvalid     = errors.New("delimiter must be a single character other than a quote or line break")
	ErrTablesRequired       = errors.New("project has no tables")
	ErrTableNameInvalid     = errors.New("table must be written as SCHEMA.TABLE")
	ErrReplicationMethod    = errors.New("replication_method must be one of: FULL_TABLE, INCREMENTAL")
	ErrReplicationKey       = errors.New("incremental tables need a replication_key")
	ErrParallelLoadsInvalid = errors.New("table_parallel_loads must be at least 1")
	ErrBatchSizeInvalid     = errors.New("table_parallel_batch_size must be at least 1")
	ErrDestinationPath      = errors.New("s3 destination needs destination_path")
)

const (
	FullTable   = "FULL_TABLE"
	Incremental = "INCREMENTAL"

	defaultConnectionsFile = ".spooler/connections.yml"
)

type Config struct {
	Project    Project
	Connection Connection
}

type Project struct {
	ID               string        `mapstructure:"id"`
	Source           string        `mapstructure:"source"`
	TargetDir        string        `mapstructure:"target_dir"`
	Delimiter        string        `mapstructure:"delimiter"`
	Compression      string        `mapstructure:"compression"`
	CompressionLevel int           `mapstructure:"compression_level"`
	Destination      string        `mapstructure:"destination"`
	DestinationPath  string        `mapstructure:"destination_path"`
	WorkerTimeout    time.Duration `mapstructure:"worker_timeout"`
	Tables           []Table       `mapstructure:"tables"`
}

type Table struct {
	Name               string `mapstructure:"table"`
	ParallelizationKey string `mapstructure:"parallelization_key"`
	ReplicationMethod  string `mapstructure:"replication_method"`
	ReplicationKey     string `mapstructure:"replication_key"`
	// Watermark is the last replicated value of ReplicationKey.
	Watermark string `mapstructure:"watermark"`
	Where     string `mapstructure:"table_where_clause"`
}

// SchemaTable splits the configured SCHEMA.TABLE name.
func (t Table) SchemaTable() (string, string, error) {
	schema, name, ok := strings.Cut(t.Name, ".")
	if !ok || schema == "" || name == "" {
		return "", "", fmt.Errorf("%w: %q", ErrTableNameInvalid, t.Name)
	}

	return schema, name, nil
}

func (t Table) Incremental() bool {
	return strings.EqualFold(t.ReplicationMethod, Incremental)
}

type Connection struct {
	Type        string      `mapstructure:"type"`
	Credentials Credentials `mapstructure:"credentials"`
}

type Credentials struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	// Database is the Oracle service name or the MySQL schema.
	Database string `mapstructure:"database"`
	SID      string `mapstructure:"sid"`
	TNSAlias string `mapstructure:"tns_alias"`

	LimitRows              int64         `mapstructure:"limit_rows"`
	TableParallelLoads     int           `mapstructure:"table_parallel_loads"`
	TableParallelBatchSize int64         `mapstructure:"table_parallel_batch_size"`
	FetchSize              int           `mapstructure:"fetch_size"`
	LockWaitTimeout        time.Duration `mapstructure:"lock_wait_timeout"`
	NLSLang                string        `mapstructure:"nls_lang"`
	SQLPlus                string        `mapstructure:"sqlplus"`
}

// Load reads the project file and the connection it names. An empty
// connectionsPath means ~/.spooler/connections.yml.
func Load(projectPath, connectionsPath string) (*Config, error) {
	pv := viper.New()
	pv.SetConfigFile(projectPath)
	pv.SetDefault("delimiter", ",")
	pv.SetDefault("compression", "none")
	pv.SetDefault("destination", destinations.LocalFile.String())
	if err := pv.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read project %s: %w", projectPath, err)
	}
	var cfg Config
	if err := pv.Unmarshal(&cfg.Project); err != nil {
		return nil, fmt.Errorf("failed to parse project %s: %w", projectPath, err)
	}
	if cfg.Project.ID == "" {
		cfg.Project.ID = strings.TrimSuffix(filepath.Base(projectPath), filepath.Ext(projectPath))
	}
	if cfg.Project.Source == "" {
		return nil, ErrSourceRequired
	}

	if connectionsPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		connectionsPath = filepath.Join(home, defaultConnectionsFile)
	}
	cv := viper.New()
	cv.SetConfigFile(connectionsPath)
	if err := cv.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read connections %s: %w", connectionsPath, err)
	}
	if !cv.IsSet(cfg.Project.Source) {
		return nil, fmt.Errorf("%w: %s", ErrSourceUnknown, cfg.Project.Source)
	}
	conn := cv.Sub(cfg.Project.Source)
	conn.SetDefault("credentials.table_parallel_loads", 10)
	conn.SetDefault("credentials.table_parallel_batch_size", 1_000_000)
	conn.SetDefault("credentials.fetch_size", 5000)
	if err := conn.Unmarshal(&cfg.Connection); err != nil {
		return nil, fmt.Errorf("failed to parse connection %s: %w", cfg.Project.Source, err)
	}
	expandCredentials(&cfg.Connection.Credentials)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} references. Bare $ is left alone so secrets may
// contain it.
func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		return os.Getenv(envRef.FindStringSubmatch(ref)[1])
	})
}

func expandCredentials(c *Credentials) {
	for _, f := range []*string{&c.Host, &c.User, &c.Password, &c.Database, &c.SID, &c.TNSAlias} {
		*f = expandEnv(*f)
	}
}

func (c *Config) Validate() error {
	conn := c.Connection
	if _, err := query.ParseDialect(conn.Type); err != nil {
		return fmt.Errorf("%w: %q", ErrConnectionType, conn.Type)
	}
	cr := conn.Credentials
	if cr.Host == "" && cr.TNSAlias == "" {
		return ErrHostRequired
	}
	if cr.User == "" {
		return ErrUserRequired
	}
	if cr.Port < 0 || cr.Port > 65535 {
		return ErrPortInvalid
	}
	if cr.TableParallelLoads < 1 {
		return ErrParallelLoadsInvalid
	}
	if cr.TableParallelBatchSize < 1 {
		return ErrBatchSizeInvalid
	}

	p := c.Project
	if p.TargetDir == "" {
		return ErrTargetDirRequired
	}
	if _, err := p.DelimiterRune(); err != nil {
		return err
	}
	if _, err := compress.Get(p.Compression); err != nil {
		return err
	}
	dst, err := destinations.Parse(p.Destination)
	if err != nil {
		return err
	}
	if dst == destinations.S3File && p.DestinationPath == "" {
		return ErrDestinationPath
	}
	if len(p.Tables) == 0 {
		return ErrTablesRequired
	}
	for _, t := range p.Tables {
		if _, _, err := t.SchemaTable(); err != nil {
			return err
		}
		switch strings.ToUpper(t.ReplicationMethod) {
		case "", FullTable:
		case Incremental:
			if t.ReplicationKey == "" {
				return fmt.Errorf("%s: %w", t.Name, ErrReplicationKey)
			}
		default:
			return fmt.Errorf("%s: %w", t.Name, ErrReplicationMethod)
		}
	}

	return nil
}

// DelimiterRune returns the configured delimiter as a single rune.
func (p Project) DelimiterRune() (rune, error) {
	if utf8.RuneCountInString(p.Delimiter) != 1 {
		return 0, fmt.Errorf("%w: %q", ErrDelimiterInvalid, p.Delimiter)
	}
	r, _ := utf8.DecodeRuneInString(p.Delimiter)
	if err := writer.ValidDelimiter(r); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrDelimiterInvalid, p.Delimiter)
	}

	return r, nil
}
