package config

import (
	"fmt"
	"os"
	"time"

	"guard/internal/logging"
	"guard/pkg/models"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// 事件输出方式
const (
	SinkNone  = "none"
	SinkLog   = "log"
	SinkFile  = "file"
	SinkKafka = "kafka"
)

// Config 主配置
type Config struct {
	Program *ProgramConfig     `mapstructure:"program"`
	Store   *StoreConfig       `mapstructure:"store"`
	Events  *EventsConfig      `mapstructure:"events"`
	API     *APIConfig         `mapstructure:"api"`
	Logging *logging.LogConfig `mapstructure:"logging"`
}

// ProgramConfig 程序配置
type ProgramConfig struct {
	ID           string `mapstructure:"id"`
	AutoCreate   bool   `mapstructure:"auto_create"`
	DefaultSpace int    `mapstructure:"default_space"`
}

// StoreConfig 账户存储配置
type StoreConfig struct {
	Path    string `mapstructure:"path"`
	Timeout string `mapstructure:"timeout"`
}

// EventsConfig 事件输出配置
type EventsConfig struct {
	Sink     string       `mapstructure:"sink"`
	FilePath string       `mapstructure:"file_path"`
	Kafka    *KafkaConfig `mapstructure:"kafka"`
}

// KafkaConfig Kafka配置
type KafkaConfig struct {
	Brokers []string          `mapstructure:"brokers"`
	Topics  map[string]string `mapstructure:"topics"`
}

// APIConfig HTTP服务配置
type APIConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// ProgramID 解析程序ID
func (p *ProgramConfig) ProgramID() (models.Pubkey, error) {
	id, err := models.ParsePubkey(p.ID)
	if err != nil {
		return models.Pubkey{}, fmt.Errorf("program.id 无效: %w", err)
	}
	return id, nil
}

// TimeoutDuration 解析存储打开超时
func (s *StoreConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(s.Timeout)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

// Validate 检查配置
func (c *Config) Validate() error {
	if c.Program == nil || c.Store == nil || c.Events == nil || c.API == nil || c.Logging == nil {
		return fmt.Errorf("配置不完整")
	}
	if _, err := c.Program.ProgramID(); err != nil {
		return err
	}
	if c.Program.DefaultSpace < 0 {
		return fmt.Errorf("program.default_space 不能为负数: %d", c.Program.DefaultSpace)
	}
	switch c.Events.Sink {
	case SinkNone, SinkLog:
	case SinkFile:
		if c.Events.FilePath == "" {
			return fmt.Errorf("events.file_path 未配置")
		}
	case SinkKafka:
		if c.Events.Kafka == nil || len(c.Events.Kafka.Brokers) == 0 {
			return fmt.Errorf("events.kafka.brokers 未配置")
		}
	default:
		return fmt.Errorf("不支持的事件输出方式: %s", c.Events.Sink)
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port 无效: %d", c.API.Port)
	}
	return nil
}

// LoadConfig 加载配置，设置了 GUARD_DB_DSN 时从数据库读取
func LoadConfig(configPath string) (*Config, error) {
	if dbDSN := os.Getenv("GUARD_DB_DSN"); dbDSN != "" {
		logger := logrus.New()
		dbConfig, err := NewDatabaseConfig(dbDSN, logger)
		if err != nil {
			return nil, fmt.Errorf("连接数据库失败: %w", err)
		}
		defer dbConfig.Close()

		config, err := dbConfig.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("从数据库加载配置失败: %w", err)
		}

		logger.Info("已从数据库加载配置")
		return config, nil
	}

	if configPath == "" {
		return GetDefaultConfig(), nil
	}
	return LoadConfigFromFile(configPath)
}

// LoadConfigFromFile 从文件加载配置，未配置的项使用默认值
func LoadConfigFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	return &config, nil
}

// setDefaults 将默认配置注册到viper
func setDefaults(v *viper.Viper) {
	d := GetDefaultConfig()
	v.SetDefault("program.id", d.Program.ID)
	v.SetDefault("program.auto_create", d.Program.AutoCreate)
	v.SetDefault("program.default_space", d.Program.DefaultSpace)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.timeout", d.Store.Timeout)
	v.SetDefault("events.sink", d.Events.Sink)
	v.SetDefault("events.file_path", d.Events.FilePath)
	v.SetDefault("events.kafka.brokers", d.Events.Kafka.Brokers)
	v.SetDefault("events.kafka.topics", d.Events.Kafka.Topics)
	v.SetDefault("api.port", d.API.Port)
	v.SetDefault("api.mode", d.API.Mode)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
}

// DefaultProgramID 默认程序ID
const DefaultProgramID = "0x4775617264536563757269747950726f6772616d000000000000000000000001"

// GetDefaultConfig 获取默认配置
func GetDefaultConfig() *Config {
	return &Config{
		Program: &ProgramConfig{
			ID:           DefaultProgramID,
			AutoCreate:   true,
			DefaultSpace: models.MetricsSpace,
		},
		Store: &StoreConfig{
			Path:    "./data/guard.db",
			Timeout: "1s",
		},
		Events: &EventsConfig{
			Sink:     SinkLog,
			FilePath: "./outputs/events.jsonl",
			Kafka: &KafkaConfig{
				Brokers: []string{"localhost:9092"},
				Topics: map[string]string{
					"analysis_completed":    "guard_analysis_completed",
					"metrics_recorded":      "guard_metrics_recorded",
					"network_stats_updated": "guard_network_stats_updated",
				},
			},
		},
		API: &APIConfig{
			Port: 8080,
			Mode: "release",
		},
		Logging: &logging.LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}
