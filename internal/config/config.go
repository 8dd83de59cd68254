package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"yqhp/perf-gate/pkg/logger"
)

// Config represents the complete configuration for perf-gate.
type Config struct {
	ThresholdsFile string          `yaml:"thresholds_file" env:"THRESHOLDS_FILE"`
	Logging        logger.Config   `yaml:"logging"`
	Store          StoreConfig     `yaml:"store"`
	History        HistoryConfig   `yaml:"history"`
	Reporters      ReportersConfig `yaml:"reporters"`
	Profiling      ProfilingConfig `yaml:"profiling"`
	Validator      ValidatorConfig `yaml:"validator"`
}

// StoreConfig selects where finalized worker counter sets are published.
type StoreConfig struct {
	Type  string      `yaml:"type" env:"STORE_TYPE"` // file, redis, memory
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig holds the Redis connection used by the redis store.
type RedisConfig struct {
	Host      string        `yaml:"host" env:"REDIS_HOST"`
	Port      int           `yaml:"port" env:"REDIS_PORT"`
	Password  string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB        int           `yaml:"db" env:"REDIS_DB"`
	KeyPrefix string        `yaml:"key_prefix" env:"REDIS_KEY_PREFIX"`
	TTL       time.Duration `yaml:"ttl" env:"REDIS_TTL"`
}

// HistoryConfig holds the verdict history database.
type HistoryConfig struct {
	Enabled         bool   `yaml:"enabled" env:"HISTORY_ENABLED"`
	Driver          string `yaml:"driver" env:"HISTORY_DRIVER"` // mysql, postgres
	Host            string `yaml:"host" env:"HISTORY_HOST"`
	Port            int    `yaml:"port" env:"HISTORY_PORT"`
	Username        string `yaml:"username" env:"HISTORY_USERNAME"`
	Password        string `yaml:"password" env:"HISTORY_PASSWORD"`
	Database        string `yaml:"database" env:"HISTORY_DATABASE"`
	Charset         string `yaml:"charset"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // seconds
}

// ReportersConfig selects the verdict reporters.
type ReportersConfig struct {
	Console     bool             `yaml:"console" env:"REPORT_CONSOLE"`
	Color       bool             `yaml:"color" env:"REPORT_COLOR"`
	ReportFile  string           `yaml:"report_file" env:"REPORT_FILE"`
	VerdictFile string           `yaml:"verdict_file" env:"REPORT_VERDICT_FILE"`
	Prometheus  PrometheusConfig `yaml:"prometheus"`
}

// PrometheusConfig holds the Pushgateway reporter settings.
type PrometheusConfig struct {
	Enabled bool          `yaml:"enabled" env:"PROMETHEUS_ENABLED"`
	PushURL string        `yaml:"push_url" env:"PROMETHEUS_PUSH_URL"`
	Job     string        `yaml:"job" env:"PROMETHEUS_JOB"`
	Timeout time.Duration `yaml:"timeout"`
}

// ProfilingConfig holds the profiling artifact checks.
type ProfilingConfig struct {
	Sentinels  []string `yaml:"sentinels" env:"PROFILING_SENTINELS"`
	Extensions []string `yaml:"extensions"`
}

// ValidatorConfig holds the batch validator settings.
type ValidatorConfig struct {
	Concurrency int `yaml:"concurrency" env:"VALIDATOR_CONCURRENCY"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		ThresholdsFile: "thresholds.yaml",
		Logging:        *logger.DefaultConfig(),
		Store: StoreConfig{
			Type: "file",
			Redis: RedisConfig{
				Host:      "localhost",
				Port:      6379,
				KeyPrefix: "perfgate",
				TTL:       24 * time.Hour,
			},
		},
		History: HistoryConfig{
			Enabled:         false,
			Driver:          "mysql",
			Host:            "localhost",
			Port:            3306,
			Charset:         "utf8mb4",
			MaxIdleConns:    2,
			MaxOpenConns:    5,
			ConnMaxLifetime: 300,
		},
		Reporters: ReportersConfig{
			Console: true,
			Color:   true,
			Prometheus: PrometheusConfig{
				Job:     "perf-gate",
				Timeout: 10 * time.Second,
			},
		},
		Profiling: ProfilingConfig{
			Sentinels: []string{
				"ERROR",
				"Permission denied",
				"No such file",
				"not found",
				"failed to open",
			},
			Extensions: []string{".folded", ".collapsed", ".txt", ".svg"},
		},
		Validator: ValidatorConfig{
			Concurrency: 8,
		},
	}
}

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	envPrefix  string
	cmdArgs    map[string]string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix: "PG_",
		cmdArgs:   make(map[string]string),
	}
}

// WithConfigPath sets the path to the YAML configuration file.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the prefix for environment variables.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithCmdArgs sets command-line arguments for configuration override.
func (l *Loader) WithCmdArgs(args map[string]string) *Loader {
	l.cmdArgs = args
	return l
}

// Load loads configuration from all sources with proper precedence:
// defaults < YAML file < environment variables < command-line flags
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("从文件加载配置失败: %w", err)
		}
	}

	if err := l.applyEnvToStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("应用环境变量覆盖失败: %w", err)
	}

	for key, value := range l.cmdArgs {
		if err := setConfigValue(cfg, key, value); err != nil {
			return nil, fmt.Errorf("设置配置值 %s 失败: %w", key, err)
		}
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file.
// A missing file leaves the defaults in place.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("解析配置文件失败: %w", err)
	}
	return nil
}

// applyEnvToStruct recursively applies prefixed environment variables to struct fields.
func (l *Loader) applyEnvToStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct {
			if err := l.applyEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}

		name := l.envPrefix + envTag
		envValue := os.Getenv(name)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("从环境变量 %s 设置字段 %s 失败: %w", name, fieldType.Name, err)
		}
	}

	return nil
}

// setConfigValue sets a configuration value by its dot-notation yaml path,
// e.g. "store.redis.host".
func setConfigValue(cfg *Config, path, value string) error {
	parts := strings.Split(path, ".")
	v := reflect.ValueOf(cfg).Elem()

	for i, part := range parts {
		field, ok := fieldByYAMLName(v, part)
		if !ok {
			return fmt.Errorf("未知的配置路径: %s", path)
		}

		if i == len(parts)-1 {
			return setFieldValue(field, value)
		}

		if field.Kind() != reflect.Struct {
			return fmt.Errorf("期望 %s 是结构体，实际是 %s", part, field.Kind())
		}
		v = field
	}

	return nil
}

// fieldByYAMLName finds the struct field whose yaml tag (or name) matches.
func fieldByYAMLName(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := strings.Split(t.Field(i).Tag.Get("yaml"), ",")[0]
		if tag == name || strings.EqualFold(t.Field(i).Name, strings.ReplaceAll(name, "_", "")) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// setFieldValue sets a reflect.Value from a string value.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("无法设置字段")
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("无效的时间格式: %w", err)
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("无效的整数: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("无效的浮点数: %w", err)
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("无效的布尔值: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("不支持的切片类型: %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))

	default:
		return fmt.Errorf("不支持的字段类型: %s", field.Kind())
	}

	return nil
}

// Serialize serializes the configuration to YAML bytes.
func (c *Config) Serialize() ([]byte, error) {
	return yaml.Marshal(c)
}

// ParseConfig parses a YAML configuration from bytes.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file path.
func LoadFromFile(path string) (*Config, error) {
	return NewLoader().WithConfigPath(path).Load()
}
