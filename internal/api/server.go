package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"guard/internal/config"
	guarderrors "guard/internal/errors"
	"guard/internal/processor"
	"guard/internal/runtime"
	"guard/internal/store"
	"guard/pkg/models"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server API服务器
type Server struct {
	runtime       *runtime.Runtime
	config        *config.Config
	configManager *ConfigManager
	gatherer      prometheus.Gatherer
	logger        *logrus.Logger
	logManager    *LogManager
	server        *http.Server
	startedAt     time.Time
	port          int
}

// NewServer 创建API服务器，gatherer为nil时使用默认注册表
func NewServer(rt *runtime.Runtime, cfg *config.Config, gatherer prometheus.Gatherer, logger *logrus.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	// 最多保存1000条日志
	logManager := NewLogManager(1000)
	logger.AddHook(NewLogHook(logManager))

	return &Server{
		runtime:    rt,
		config:     cfg,
		gatherer:   gatherer,
		logger:     logger,
		logManager: logManager,
		startedAt:  time.Now(),
		port:       cfg.API.Port,
	}
}

// SetConfigManager 启用数据库配置管理接口
func (s *Server) SetConfigManager(cm *ConfigManager) {
	s.configManager = cm
}

// Router 创建路由
func (s *Server) Router() *gin.Engine {
	if s.config.API.Mode != "" {
		gin.SetMode(s.config.API.Mode)
	}
	router := gin.New()

	// 添加CORS中间件
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})
	router.Use(gin.Recovery())

	s.setupRoutes(router)
	return router
}

// Start 启动API服务器，阻塞直到服务器关闭
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("API服务器启动在端口 %d", s.port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop 停止API服务器
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// setupRoutes 设置路由
func (s *Server) setupRoutes(router *gin.Engine) {
	router.GET("/health", s.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")
	{
		api.GET("/status", s.getStatus)

		// 记录查询
		api.GET("/network", s.getNetwork)
		api.GET("/metrics", s.getMetrics)
		api.GET("/analysis/:target", s.getAnalysis)

		// 账户管理
		api.GET("/accounts", s.listAccounts)
		api.GET("/accounts/:key", s.getAccount)
		api.POST("/accounts", s.createAccount)
		api.POST("/accounts/initialize", s.initializeAccounts)

		// 指令提交
		api.POST("/instructions", s.submitInstruction)
		api.GET("/errors", s.listErrorCodes)

		// 日志管理
		api.GET("/logs", s.getLogs)
		api.DELETE("/logs", s.clearLogs)

		if s.configManager != nil {
			api.GET("/config/:type", s.configManager.GetConfig)
			api.PUT("/config/:type", s.configManager.UpdateConfig)
			api.GET("/kafka/topics", s.configManager.GetKafkaTopics)
			api.PUT("/kafka/topics/:event", s.configManager.UpdateKafkaTopic)
		}
	}
}

// healthCheck 健康检查
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"service":   "guard-api",
	})
}

// getStatus 程序状态与错误统计
func (s *Server) getStatus(c *gin.Context) {
	stats := s.runtime.ErrorStats()
	c.JSON(http.StatusOK, gin.H{
		"program_id":     s.runtime.ProgramID().Hex(),
		"uptime":         time.Since(s.startedAt).Round(time.Second).String(),
		"total_errors":   stats.TotalErrors,
		"unknown_errors": stats.UnknownErrors,
		"errors_by_code": errorsByName(stats.ErrorsByCode),
		"recent_errors":  len(stats.RecentErrors()),
	})
}

func errorsByName(byCode map[guarderrors.ErrorCode]int) map[string]int {
	named := make(map[string]int, len(byCode))
	for code, count := range byCode {
		named[code.String()] = count
	}
	return named
}

// getNetwork 网络状态
func (s *Server) getNetwork(c *gin.Context) {
	record, err := s.runtime.LoadNetworkState(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewNetworkView(record))
}

// getMetrics 交易指标
func (s *Server) getMetrics(c *gin.Context) {
	record, err := s.runtime.LoadMetrics(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewMetricsView(record))
}

// getAnalysis 目标程序的分析记录
func (s *Server) getAnalysis(c *gin.Context) {
	target, err := models.ParsePubkey(c.Param("target"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := s.runtime.LoadAnalysis(c.Request.Context(), target)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewAnalysisView(record))
}

// accountResponse 账户展示
func accountResponse(account *store.Account) gin.H {
	return gin.H{
		"key":   account.Key.Hex(),
		"owner": account.Owner.Hex(),
		"space": account.Space,
		"size":  len(account.Data),
		"data":  hexutil.Encode(account.Data),
	}
}

// listAccounts 列出账户
func (s *Server) listAccounts(c *gin.Context) {
	accounts, err := s.runtime.Accounts(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	result := make([]gin.H, 0, len(accounts))
	for _, account := range accounts {
		result = append(result, accountResponse(account))
	}
	c.JSON(http.StatusOK, gin.H{
		"accounts": result,
		"total":    len(result),
	})
}

// getAccount 读取账户
func (s *Server) getAccount(c *gin.Context) {
	key, err := models.ParsePubkey(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account, err := s.runtime.Account(c.Request.Context(), key)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, accountResponse(account))
}

// createAccount 创建槽位或上传账户数据
func (s *Server) createAccount(c *gin.Context) {
	var req struct {
		Key   string `json:"key" binding:"required"`
		Owner string `json:"owner"`
		Space uint32 `json:"space"`
		Data  string `json:"data"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key, err := models.ParsePubkey(req.Key)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// 空槽位默认归属本程序，带数据的上传默认归属零地址
	var owner models.Pubkey
	if req.Data == "" {
		owner = s.runtime.ProgramID()
	}
	if req.Owner != "" {
		if owner, err = models.ParsePubkey(req.Owner); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	ctx := c.Request.Context()
	if req.Data == "" {
		account, err := s.runtime.CreateAccount(ctx, key, owner, req.Space)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, accountResponse(account))
		return
	}

	data, err := hexutil.Decode(req.Data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("data 不是有效的十六进制: %v", err)})
		return
	}
	account := &store.Account{Key: key, Owner: owner, Space: req.Space, Data: data}
	if err := s.runtime.PutAccount(ctx, account); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, accountResponse(account))
}

// initializeAccounts 创建全局记录槽位
func (s *Server) initializeAccounts(c *gin.Context) {
	created, err := s.runtime.InitializeAccounts(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	keys := make([]string, len(created))
	for i, key := range created {
		keys[i] = key.Hex()
	}
	c.JSON(http.StatusOK, gin.H{
		"created":       keys,
		"metrics":       models.MetricsAddress(s.runtime.ProgramID()).Hex(),
		"network_state": models.NetworkStateAddress(s.runtime.ProgramID()).Hex(),
	})
}

// instructionRequest 签名指令请求，签名者由签名恢复
type instructionRequest struct {
	Accounts []struct {
		Key        string `json:"key" binding:"required"`
		IsWritable bool   `json:"is_writable"`
	} `json:"accounts" binding:"required"`
	Data       string   `json:"data" binding:"required"`
	Signatures []string `json:"signatures"`
}

func (r *instructionRequest) decode() (*runtime.SignedInstruction, error) {
	ix := &runtime.SignedInstruction{Accounts: make([]runtime.AccountMeta, len(r.Accounts))}
	for i, account := range r.Accounts {
		key, err := models.ParsePubkey(account.Key)
		if err != nil {
			return nil, fmt.Errorf("accounts[%d]: %w", i, err)
		}
		ix.Accounts[i] = runtime.AccountMeta{Key: key, IsWritable: account.IsWritable}
	}

	data, err := hexutil.Decode(r.Data)
	if err != nil {
		return nil, fmt.Errorf("data: %w", err)
	}
	ix.Data = data

	for i, sig := range r.Signatures {
		decoded, err := hexutil.Decode(sig)
		if err != nil {
			return nil, fmt.Errorf("signatures[%d]: %w", i, err)
		}
		ix.Signatures = append(ix.Signatures, decoded)
	}
	return ix, nil
}

// submitInstruction 执行签名指令
func (s *Server) submitInstruction(c *gin.Context) {
	var req instructionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ix, err := req.decode()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := s.runtime.Submit(c.Request.Context(), ix)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcomeResponse(outcome))
}

// outcomeResponse 执行结果展示
func outcomeResponse(outcome *processor.Outcome) gin.H {
	response := gin.H{
		"instruction": outcome.Instruction.Tag().String(),
		"timestamp":   outcome.Timestamp,
	}
	switch {
	case outcome.Analysis != nil:
		response["analysis"] = NewAnalysisView(outcome.Analysis)
		if outcome.Report != nil {
			response["findings"] = outcome.Report.Findings
		}
	case outcome.Metrics != nil:
		response["metrics"] = NewMetricsView(outcome.Metrics)
	case outcome.Network != nil:
		response["network"] = NewNetworkView(outcome.Network)
	}
	return response
}

// respondError 按错误类型返回状态码
func (s *Server) respondError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrAccountNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if errors.Is(err, store.ErrAccountExists) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if errors.Is(err, store.ErrDataExceedsSpace) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	code, ok := guarderrors.CodeOf(err)
	if !ok {
		s.logger.WithError(err).Error("请求处理失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(statusFor(code), gin.H{
		"error":      err.Error(),
		"code":       uint32(code),
		"error_name": code.String(),
	})
}

// statusFor 错误码对应的HTTP状态码
func statusFor(code guarderrors.ErrorCode) int {
	switch code {
	case guarderrors.CodeUnauthorizedAccount:
		return http.StatusForbidden
	case guarderrors.CodeAnalysisFailed, guarderrors.CodeMetricsRecordingFailed, guarderrors.CodeNetworkStatsUpdateFailed:
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

// listErrorCodes 列出程序错误码
func (s *Server) listErrorCodes(c *gin.Context) {
	codes := make([]gin.H, 0, guarderrors.CodeRateLimitExceeded+1)
	for code := guarderrors.CodeInvalidInstructionData; code <= guarderrors.CodeRateLimitExceeded; code++ {
		known, ok := guarderrors.FromCode(code)
		if !ok {
			continue
		}
		codes = append(codes, gin.H{
			"code":        uint32(code),
			"name":        code.String(),
			"severity":    known.Severity.String(),
			"message":     known.Message,
			"http_status": statusFor(code),
		})
	}
	c.JSON(http.StatusOK, gin.H{"errors": codes})
}

// getLogs 获取日志
func (s *Server) getLogs(c *gin.Context) {
	level := c.Query("level")

	page := 1
	if p, err := strconv.Atoi(c.Query("page")); err == nil && p > 0 {
		page = p
	}
	pageSize := 20
	if ps, err := strconv.Atoi(c.Query("pageSize")); err == nil && ps > 0 {
		pageSize = ps
	}

	logs, total := s.logManager.GetLogsWithPagination(level, page, pageSize)

	c.JSON(http.StatusOK, gin.H{
		"logs":     logs,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
		"level":    level,
	})
}

// clearLogs 清空日志
func (s *Server) clearLogs(c *gin.Context) {
	s.logManager.ClearLogs()

	c.JSON(http.StatusOK, gin.H{
		"message": "日志已清空",
	})
}
