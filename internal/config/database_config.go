package config

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// 数据库中的配置类型
const (
	ConfigTypeProgram = "program"
	ConfigTypeStore   = "store"
	ConfigTypeEvents  = "events"
	ConfigTypeAPI     = "api"
	ConfigTypeLogging = "logging"
)

// ErrUnknownSetting 不支持的配置项
var ErrUnknownSetting = errors.New("不支持的配置项")

// DatabaseConfig 数据库配置管理器
type DatabaseConfig struct {
	DB     *sql.DB
	logger *logrus.Logger
}

// NewDatabaseConfig 创建数据库配置管理器
func NewDatabaseConfig(dsn string, logger *logrus.Logger) (*DatabaseConfig, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	return NewDatabaseConfigWithDB(db, logger), nil
}

// NewDatabaseConfigWithDB 使用已有连接创建配置管理器
func NewDatabaseConfigWithDB(db *sql.DB, logger *logrus.Logger) *DatabaseConfig {
	return &DatabaseConfig{
		DB:     db,
		logger: logger,
	}
}

// LoadConfig 从数据库加载配置，未配置的项使用默认值
func (dc *DatabaseConfig) LoadConfig() (*Config, error) {
	config := GetDefaultConfig()

	query := `SELECT config_type, config_key, config_value FROM guard_config WHERE is_active = true`
	rows, err := dc.DB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("查询配置失败: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var configType, key, value string
		if err := rows.Scan(&configType, &key, &value); err != nil {
			return nil, err
		}
		if !applySetting(config, configType, key, value) {
			dc.logger.Warnf("忽略未知配置项: %s.%s", configType, key)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if config.Events.Sink == SinkKafka {
		topics, err := dc.loadKafkaTopics()
		if err != nil {
			return nil, fmt.Errorf("加载Kafka主题配置失败: %w", err)
		}
		for eventType, topic := range topics {
			config.Events.Kafka.Topics[eventType] = topic
		}
	}

	return config, nil
}

// applySetting 写入单个配置项，返回是否识别
func applySetting(config *Config, configType, key, value string) bool {
	switch configType {
	case ConfigTypeProgram:
		switch key {
		case "id":
			config.Program.ID = value
		case "auto_create":
			config.Program.AutoCreate = strings.ToLower(value) == "true"
		case "default_space":
			if v, err := strconv.Atoi(value); err == nil {
				config.Program.DefaultSpace = v
			}
		default:
			return false
		}
	case ConfigTypeStore:
		switch key {
		case "path":
			config.Store.Path = value
		case "timeout":
			config.Store.Timeout = value
		default:
			return false
		}
	case ConfigTypeEvents:
		switch key {
		case "sink":
			config.Events.Sink = value
		case "file_path":
			config.Events.FilePath = value
		case "kafka_brokers":
			var brokers []string
			if err := json.Unmarshal([]byte(value), &brokers); err == nil {
				config.Events.Kafka.Brokers = brokers
			}
		default:
			return false
		}
	case ConfigTypeAPI:
		switch key {
		case "port":
			if v, err := strconv.Atoi(value); err == nil {
				config.API.Port = v
			}
		case "mode":
			config.API.Mode = value
		default:
			return false
		}
	case ConfigTypeLogging:
		switch key {
		case "level":
			config.Logging.Level = value
		case "format":
			config.Logging.Format = value
		case "output":
			config.Logging.Output = value
		default:
			return false
		}
	default:
		return false
	}
	return true
}

// loadKafkaTopics 加载Kafka主题配置
func (dc *DatabaseConfig) loadKafkaTopics() (map[string]string, error) {
	query := `SELECT event_type, topic_name FROM kafka_topics WHERE is_active = true`
	rows, err := dc.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	topics := make(map[string]string)
	for rows.Next() {
		var eventType, topicName string
		if err := rows.Scan(&eventType, &topicName); err != nil {
			return nil, err
		}
		topics[eventType] = topicName
	}
	return topics, rows.Err()
}

// UpdateConfig 更新配置
func (dc *DatabaseConfig) UpdateConfig(configType, key, value string) error {
	if _, err := SettingValue(configType, key, value); err != nil {
		return err
	}

	query := `
		INSERT INTO guard_config (config_type, config_key, config_value, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		ON CONFLICT (config_type, config_key)
		DO UPDATE SET config_value = $3, updated_at = CURRENT_TIMESTAMP`

	_, err := dc.DB.Exec(query, configType, key, value)
	return err
}

// SettingValue 解析单个配置项，返回其生效值
func SettingValue(configType, key, value string) (interface{}, error) {
	config := GetDefaultConfig()
	if !applySetting(config, configType, key, value) {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownSetting, configType, key)
	}
	settings, _ := sectionSettings(config, configType)
	return settings[key], nil
}

// Section 某类配置的数据库覆盖项和生效值
type Section struct {
	Type      string
	Overrides map[string]string
	Effective map[string]interface{}
}

// Source 配置项来源
func (s *Section) Source(key string) string {
	if _, ok := s.Overrides[key]; ok {
		return "database"
	}
	return "default"
}

// LoadSection 读取某类配置，生效值为默认配置叠加数据库覆盖项
func (dc *DatabaseConfig) LoadSection(configType string) (*Section, error) {
	config := GetDefaultConfig()
	if _, ok := sectionSettings(config, configType); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSetting, configType)
	}

	overrides, err := dc.ListConfigs(configType)
	if err != nil {
		return nil, err
	}
	for key, value := range overrides {
		if !applySetting(config, configType, key, value) {
			dc.logger.Warnf("忽略未知配置项: %s.%s", configType, key)
		}
	}

	effective, _ := sectionSettings(config, configType)
	return &Section{Type: configType, Overrides: overrides, Effective: effective}, nil
}

// sectionSettings 某类配置的全部生效值，键名与 config_key 一致
func sectionSettings(config *Config, configType string) (map[string]interface{}, bool) {
	switch configType {
	case ConfigTypeProgram:
		return map[string]interface{}{
			"id":            config.Program.ID,
			"auto_create":   config.Program.AutoCreate,
			"default_space": config.Program.DefaultSpace,
		}, true
	case ConfigTypeStore:
		return map[string]interface{}{
			"path":    config.Store.Path,
			"timeout": config.Store.Timeout,
		}, true
	case ConfigTypeEvents:
		var brokers []string
		if config.Events.Kafka != nil {
			brokers = config.Events.Kafka.Brokers
		}
		return map[string]interface{}{
			"sink":          config.Events.Sink,
			"file_path":     config.Events.FilePath,
			"kafka_brokers": brokers,
		}, true
	case ConfigTypeAPI:
		return map[string]interface{}{
			"port": config.API.Port,
			"mode": config.API.Mode,
		}, true
	case ConfigTypeLogging:
		return map[string]interface{}{
			"level":  config.Logging.Level,
			"format": config.Logging.Format,
			"output": config.Logging.Output,
		}, true
	}
	return nil, false
}

// ListConfigs 列出某类型的所有配置
func (dc *DatabaseConfig) ListConfigs(configType string) (map[string]string, error) {
	query := `SELECT config_key, config_value FROM guard_config WHERE config_type = $1 AND is_active = true`
	rows, err := dc.DB.Query(query, configType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	configs := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		configs[key] = value
	}
	return configs, rows.Err()
}

// Close 关闭数据库连接
func (dc *DatabaseConfig) Close() error {
	if dc.DB != nil {
		return dc.DB.Close()
	}
	return nil
}
