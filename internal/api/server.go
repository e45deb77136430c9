package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/vcam/internal/device"
	"github.com/yourusername/vcam/internal/registry"
	"go.uber.org/zap"
)

// Server는 디바이스 제어용 HTTP API 서버입니다
type Server struct {
	logger     *zap.Logger
	httpServer *http.Server
	router     *gin.Engine
	port       int

	registry *registry.Registry

	// 핸들러
	healthHandler    func() map[string]interface{}
	websocketHandler func(http.ResponseWriter, *http.Request, string)
}

// ServerConfig는 API 서버 설정
type ServerConfig struct {
	Port             int
	Production       bool
	Logger           *zap.Logger
	Registry         *registry.Registry
	HealthHandler    func() map[string]interface{}
	WebSocketHandler func(http.ResponseWriter, *http.Request, string)
}

// startRequest는 Start 요청 본문
type startRequest struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// paramsRequest는 수집 파라미터 변경 요청 본문
type paramsRequest struct {
	WhiteBalance *[3]float32 `json:"white_balance"`
	Exposure     *float32    `json:"exposure"`
}

// NewServer는 새로운 API 서버를 생성합니다
func NewServer(config ServerConfig) *Server {
	if !config.Production {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(loggerMiddleware(config.Logger))

	server := &Server{
		logger:           config.Logger,
		router:           router,
		port:             config.Port,
		registry:         config.Registry,
		healthHandler:    config.HealthHandler,
		websocketHandler: config.WebSocketHandler,
	}

	server.setupRoutes()

	return server
}

// setupRoutes는 라우트를 설정합니다
func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.handleHealth)

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/devices", s.handleListDevices)
		v1.GET("/devices/:id", s.handleGetDevice)
		v1.POST("/devices/:id/connect", s.handleConnect)
		v1.POST("/devices/:id/disconnect", s.handleDisconnect)
		v1.POST("/devices/:id/start", s.handleStart)
		v1.POST("/devices/:id/stop", s.handleStop)
		v1.PUT("/devices/:id/params", s.handleParams)
		v1.GET("/devices/:id/snapshot", s.handleSnapshot)
	}

	// WebSocket 프리뷰 푸시
	s.router.GET("/ws/:id", func(c *gin.Context) {
		s.websocketHandler(c.Writer, c.Request, c.Param("id"))
	})
}

// Start는 API 서버를 시작합니다
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting API server",
		zap.String("addr", addr),
	)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop은 API 서버를 종료합니다
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")

	if s.httpServer != nil {
		return s.httpServer.Close()
	}

	return nil
}

// handleHealth는 헬스 체크를 처리합니다
func (s *Server) handleHealth(c *gin.Context) {
	var health map[string]interface{}

	if s.healthHandler != nil {
		health = s.healthHandler()
	} else {
		health = map[string]interface{}{
			"status": "ok",
			"time":   time.Now().UTC(),
		}
	}

	c.JSON(http.StatusOK, health)
}

// handleListDevices는 디바이스 목록을 반환합니다
func (s *Server) handleListDevices(c *gin.Context) {
	devices := []map[string]interface{}{}

	for id, dev := range s.registry.List() {
		devices = append(devices, map[string]interface{}{
			"id":    id,
			"state": dev.State().String(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice는 단일 디바이스 상태를 반환합니다
func (s *Server) handleGetDevice(c *gin.Context) {
	dev, ok := s.lookupDevice(c)
	if !ok {
		return
	}

	info := map[string]interface{}{
		"id":         dev.ID(),
		"state":      dev.State().String(),
		"target_fps": dev.TargetFPS(),
		"stats":      dev.GetStats(),
	}

	if geo, started := dev.Geometry(); started {
		info["geometry"] = gin.H{
			"width":        geo.Width,
			"height":       geo.Height,
			"pixel_format": geo.Format.String(),
			"byte_size":    geo.ByteSize,
		}
	}

	if desc, err := dev.Info(); err == nil {
		info["device_info"] = desc
	}

	c.JSON(http.StatusOK, info)
}

// handleConnect는 디바이스를 연결합니다
func (s *Server) handleConnect(c *gin.Context) {
	dev, ok := s.lookupDevice(c)
	if !ok {
		return
	}

	if err := dev.Connect(); err != nil {
		s.deviceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "state": dev.State().String()})
}

// handleDisconnect는 디바이스 연결을 해제합니다
func (s *Server) handleDisconnect(c *gin.Context) {
	dev, ok := s.lookupDevice(c)
	if !ok {
		return
	}

	if err := dev.Disconnect(); err != nil {
		s.deviceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "state": dev.State().String()})
}

// handleStart는 프레임 수집을 시작합니다
func (s *Server) handleStart(c *gin.Context) {
	dev, ok := s.lookupDevice(c)
	if !ok {
		return
	}

	// 본문이 없으면 디바이스에 설정된 기본 해상도를 사용합니다
	width, height := dev.DefaultResolution()
	req := startRequest{Width: width, Height: height}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	if err := dev.Start(req.Width, req.Height, device.PixelFormatRGB32); err != nil {
		s.deviceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "state": dev.State().String()})
}

// handleStop은 프레임 수집을 중지합니다
func (s *Server) handleStop(c *gin.Context) {
	dev, ok := s.lookupDevice(c)
	if !ok {
		return
	}

	if err := dev.Stop(); err != nil {
		s.deviceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "state": dev.State().String()})
}

// handleParams는 화이트 밸런스/노출 파라미터를 변경합니다
func (s *Server) handleParams(c *gin.Context) {
	dev, ok := s.lookupDevice(c)
	if !ok {
		return
	}

	var req paramsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.WhiteBalance != nil {
		wb := *req.WhiteBalance
		dev.SetWhiteBalance(wb[0], wb[1], wb[2])
	}
	if req.Exposure != nil {
		dev.SetExposure(*req.Exposure)
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleSnapshot은 현재 프리뷰 프레임을 raw RGB32로 반환합니다
func (s *Server) handleSnapshot(c *gin.Context) {
	dev, ok := s.lookupDevice(c)
	if !ok {
		return
	}

	geo, started := dev.Geometry()
	if !started {
		c.JSON(http.StatusConflict, gin.H{"error": "device is not started"})
		return
	}

	buf := make([]byte, geo.ByteSize)
	dev.CopyPreviewFrame(buf)

	c.Header("X-Frame-Width", fmt.Sprintf("%d", geo.Width))
	c.Header("X-Frame-Height", fmt.Sprintf("%d", geo.Height))
	c.Header("X-Pixel-Format", geo.Format.String())
	c.Data(http.StatusOK, "application/octet-stream", buf)
}

// lookupDevice는 경로의 :id로 디바이스를 찾습니다
func (s *Server) lookupDevice(c *gin.Context) (*device.Device, bool) {
	dev, err := s.registry.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return nil, false
	}
	return dev, true
}

// deviceError는 디바이스 에러 종류를 HTTP 상태 코드로 매핑합니다
func (s *Server) deviceError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, device.ErrInvalidOperation):
		status = http.StatusConflict
	case errors.Is(err, device.ErrResourceExhausted):
		status = http.StatusInsufficientStorage
	case errors.Is(err, device.ErrRemoteUnavailable):
		status = http.StatusBadGateway
	}

	c.JSON(status, gin.H{"error": err.Error()})
}

// corsMiddleware는 CORS 미들웨어입니다
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// loggerMiddleware는 로깅 미들웨어입니다
func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
