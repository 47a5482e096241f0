package api

import (
	"errors"
	"net/http"

	"guard/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ConfigManager 配置管理器
type ConfigManager struct {
	dbConfig *config.DatabaseConfig
	logger   *logrus.Logger
}

// NewConfigManager 创建配置管理器
func NewConfigManager(dbConfig *config.DatabaseConfig, logger *logrus.Logger) *ConfigManager {
	return &ConfigManager{
		dbConfig: dbConfig,
		logger:   logger,
	}
}

// GetConfig 查看某类配置的生效值，key 参数指定单个配置项
func (cm *ConfigManager) GetConfig(c *gin.Context) {
	section, err := cm.dbConfig.LoadSection(c.Param("type"))
	if errors.Is(err, config.ErrUnknownSetting) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "不支持的配置类型",
			"message": err.Error(),
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "读取配置失败",
			"message": err.Error(),
		})
		return
	}

	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusOK, gin.H{
			"config_type": section.Type,
			"settings":    section.Effective,
			"overrides":   section.Overrides,
		})
		return
	}

	value, ok := section.Effective[key]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "配置项不存在",
			"setting": section.Type + "." + key,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"setting": section.Type + "." + key,
		"value":   value,
		"source":  section.Source(key),
	})
}

// UpdateConfig 写入数据库覆盖项，重启后生效
func (cm *ConfigManager) UpdateConfig(c *gin.Context) {
	configType := c.Param("type")

	var req struct {
		Key   string `json:"key" binding:"required"`
		Value string `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "请求参数错误",
			"message": err.Error(),
		})
		return
	}

	value, err := config.SettingValue(configType, req.Key, req.Value)
	if err == nil {
		err = cm.dbConfig.UpdateConfig(configType, req.Key, req.Value)
	}
	if errors.Is(err, config.ErrUnknownSetting) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "不支持的配置项",
			"message": err.Error(),
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "更新配置失败",
			"message": err.Error(),
		})
		return
	}

	setting := configType + "." + req.Key
	cm.logger.WithField("setting", setting).Infof("配置已更新: %v", value)
	c.JSON(http.StatusOK, gin.H{
		"setting":          setting,
		"value":            value,
		"source":           "database",
		"restart_required": true,
	})
}

// GetKafkaTopics 获取Kafka主题配置
func (cm *ConfigManager) GetKafkaTopics(c *gin.Context) {
	query := `SELECT event_type, topic_name, description, is_active FROM kafka_topics ORDER BY event_type`
	rows, err := cm.dbConfig.DB.Query(query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "获取Kafka主题配置失败",
			"message": err.Error(),
		})
		return
	}
	defer rows.Close()

	topics := make([]gin.H, 0)
	for rows.Next() {
		var eventType, topicName, description string
		var isActive bool

		if err := rows.Scan(&eventType, &topicName, &description, &isActive); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "读取Kafka主题配置失败",
				"message": err.Error(),
			})
			return
		}

		topics = append(topics, gin.H{
			"event_type":  eventType,
			"topic_name":  topicName,
			"description": description,
			"is_active":   isActive,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"topics": topics,
	})
}

// UpdateKafkaTopic 更新Kafka主题配置
func (cm *ConfigManager) UpdateKafkaTopic(c *gin.Context) {
	eventType := c.Param("event")

	var req struct {
		TopicName   string `json:"topic_name" binding:"required"`
		Description string `json:"description"`
		IsActive    bool   `json:"is_active"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "请求参数错误",
			"message": err.Error(),
		})
		return
	}

	query := `UPDATE kafka_topics SET topic_name = $1, description = $2, is_active = $3 WHERE event_type = $4`
	_, err := cm.dbConfig.DB.Exec(query, req.TopicName, req.Description, req.IsActive, eventType)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "更新Kafka主题失败",
			"message": err.Error(),
		})
		return
	}

	cm.logger.Infof("Kafka主题已更新: %s -> %s", eventType, req.TopicName)
	c.JSON(http.StatusOK, gin.H{
		"message": "Kafka主题更新成功",
	})
}
