package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"guard/internal/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConfigRouter(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger, _ := test.NewNullLogger()
	cm := NewConfigManager(config.NewDatabaseConfigWithDB(db, logger), logger)

	router := gin.New()
	router.GET("/config/:type", cm.GetConfig)
	router.PUT("/config/:type", cm.UpdateConfig)
	router.GET("/kafka/topics", cm.GetKafkaTopics)
	router.PUT("/kafka/topics/:event", cm.UpdateKafkaTopic)
	return router, mock
}

func serve(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestConfigManager_GetConfig(t *testing.T) {
	router, mock := newConfigRouter(t)
	listQuery := regexp.QuoteMeta("SELECT config_key, config_value FROM guard_config WHERE config_type = $1")

	mock.ExpectQuery(listQuery).
		WithArgs("logging").
		WillReturnRows(sqlmock.NewRows([]string{"config_key", "config_value"}).AddRow("level", "debug"))
	w := serve(router, http.MethodGet, "/config/logging", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Settings  map[string]interface{} `json:"settings"`
		Overrides map[string]string      `json:"overrides"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "debug", body.Settings["level"])
	assert.Equal(t, "json", body.Settings["format"])
	assert.Equal(t, map[string]string{"level": "debug"}, body.Overrides)

	mock.ExpectQuery(listQuery).
		WithArgs("api").
		WillReturnRows(sqlmock.NewRows([]string{"config_key", "config_value"}))
	w = serve(router, http.MethodGet, "/config/api?key=port", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"setting":"api.port","value":8080,"source":"default"}`, w.Body.String())

	mock.ExpectQuery(listQuery).
		WithArgs("api").
		WillReturnRows(sqlmock.NewRows([]string{"config_key", "config_value"}))
	w = serve(router, http.MethodGet, "/config/api?key=missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(router, http.MethodGet, "/config/collector", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfigManager_UpdateConfig(t *testing.T) {
	router, mock := newConfigRouter(t)

	mock.ExpectExec("INSERT INTO guard_config").
		WithArgs("program", "auto_create", "false").
		WillReturnResult(sqlmock.NewResult(0, 1))
	w := serve(router, http.MethodPut, "/config/program", `{"key":"auto_create","value":"false"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"setting":"program.auto_create","value":false,"source":"database","restart_required":true}`, w.Body.String())

	w = serve(router, http.MethodPut, "/config/events", `{"key":"unknown","value":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(router, http.MethodPut, "/config/events", `{"key":"sink"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfigManager_KafkaTopics(t *testing.T) {
	router, mock := newConfigRouter(t)

	mock.ExpectQuery("SELECT event_type, topic_name, description, is_active FROM kafka_topics").
		WillReturnRows(sqlmock.NewRows([]string{"event_type", "topic_name", "description", "is_active"}).
			AddRow("analysis_completed", "guard_analysis_completed", "分析结果", true))
	w := serve(router, http.MethodGet, "/kafka/topics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"event_type":"analysis_completed"`)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE kafka_topics SET topic_name = $1")).
		WithArgs("prod_metrics", "", true, "metrics_recorded").
		WillReturnResult(sqlmock.NewResult(0, 1))
	w = serve(router, http.MethodPut, "/kafka/topics/metrics_recorded", `{"topic_name":"prod_metrics","is_active":true}`)
	assert.Equal(t, http.StatusOK, w.Code)

	assert.NoError(t, mock.ExpectationsWereMet())
}
