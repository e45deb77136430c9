package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/yourusername/vcam/internal/api"
	"github.com/yourusername/vcam/internal/core"
	"github.com/yourusername/vcam/internal/daemon"
	"github.com/yourusername/vcam/internal/device"
	"github.com/yourusername/vcam/internal/preview"
	"github.com/yourusername/vcam/internal/registry"
	"github.com/yourusername/vcam/internal/source"
	"github.com/yourusername/vcam/pkg/logger"
	"go.uber.org/zap"
)

const (
	defaultConfigPath = "configs/config.yaml"
	version           = "0.1.0"
)

func main() {
	// 커맨드라인 플래그 파싱
	configPath := flag.String("config", defaultConfigPath, "설정 파일 경로")
	showVersion := flag.Bool("version", false, "버전 정보 출력")
	flag.Parse()

	// 버전 정보 출력
	if *showVersion {
		fmt.Printf("Virtual Camera Device Server v%s\n", version)
		fmt.Printf("Go version: %s\n", runtime.Version())
		fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	// 설정 로드
	config, err := core.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 로거 초기화
	if err := logger.InitLogger(logger.LogConfig{
		Level:      config.Logging.Level,
		Output:     config.Logging.Output,
		FilePath:   config.Logging.FilePath,
		MaxSize:    config.Logging.MaxSize,
		MaxBackups: config.Logging.MaxBackups,
		MaxAge:     config.Logging.MaxAge,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// 시작 로그
	logger.Info("Starting Virtual Camera Device Server",
		zap.String("version", version),
		zap.String("go_version", runtime.Version()),
		zap.Int("num_cpu", runtime.NumCPU()),
	)

	logger.Info("Server configuration",
		zap.Int("http_port", config.Server.HTTPPort),
		zap.Bool("production", config.Server.Production),
		zap.Int("devices", len(config.Devices)),
		zap.Int("default_target_fps", config.Acquisition.TargetFPS),
	)

	// 서버 컴포넌트 초기화
	app, err := initializeApplication(config)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}

	logger.Info("All components initialized successfully")

	// 종료 시그널 대기
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	sig := <-sigChan
	logger.Info("Received shutdown signal",
		zap.String("signal", sig.String()),
	)

	app.cleanup()

	logger.Info("Server stopped gracefully")
}

// Application은 애플리케이션 컴포넌트들을 관리합니다
type Application struct {
	config     *core.Config
	registry   *registry.Registry
	previewHub *preview.Hub
	apiServer  *api.Server
	supervisor *daemon.Supervisor
}

// initializeApplication은 애플리케이션을 초기화합니다
func initializeApplication(config *core.Config) (*Application, error) {
	app := &Application{
		config: config,
	}

	// 1. 디바이스 레지스트리 초기화
	app.registry = registry.New(logger.Log)
	logger.Info("Device registry initialized")

	// 2. 프리뷰 허브 초기화
	app.previewHub = preview.NewHub(logger.Log)
	logger.Info("Preview hub initialized")

	// 3. 데몬 수퍼바이저 초기화
	app.supervisor = daemon.NewSupervisor(logger.Log)

	// 4. 설정된 디바이스 생성
	for _, devCfg := range config.Devices {
		if err := app.createDevice(devCfg); err != nil {
			return nil, fmt.Errorf("failed to create device %s: %w", devCfg.ID, err)
		}
	}

	// 5. API 서버 초기화
	app.apiServer = api.NewServer(api.ServerConfig{
		Port:       config.Server.HTTPPort,
		Production: config.Server.Production,
		Logger:     logger.Log,
		Registry:   app.registry,
		HealthHandler: func() map[string]interface{} {
			return map[string]interface{}{
				"status":          "ok",
				"version":         version,
				"devices":         len(app.registry.List()),
				"preview_clients": app.previewHub.GetClientCount(),
			}
		},
		WebSocketHandler: app.previewHub.HandleWebSocket,
	})

	if err := app.apiServer.Start(); err != nil {
		return nil, fmt.Errorf("failed to start API server: %w", err)
	}
	logger.Info("API server initialized")

	return app, nil
}

// createDevice는 설정 하나로부터 디바이스를 만들어 등록하고 초기화합니다
func (app *Application) createDevice(devCfg core.DeviceConfig) error {
	// 데몬 명령이 설정된 경우 프로세스를 먼저 띄웁니다
	if devCfg.DaemonCommand != "" {
		if err := app.supervisor.Start(devCfg.ID, devCfg.DaemonCommand, devCfg.DaemonRestart); err != nil {
			return err
		}
		// 데몬이 리슨하기까지 잠시 대기
		time.Sleep(200 * time.Millisecond)
	}

	client := source.NewClient(source.ClientConfig{
		Logger: logger.Log.With(zap.String("device_id", devCfg.ID)),
	})

	var dev *device.Device
	dev = device.New(device.Config{
		ID:            devCfg.ID,
		TargetFPS:     devCfg.TargetFPS,
		DefaultWidth:  devCfg.Width,
		DefaultHeight: devCfg.Height,
		Source:        client,
		Logger:        logger.Log,
		OnFrameReady: func(frame []byte, timestamp time.Time, d *device.Device) {
			app.previewHub.Broadcast(d.ID(), frame)
		},
		OnDeviceError: func(err error) {
			logger.Error("Device acquisition failed",
				zap.String("device_id", devCfg.ID),
				zap.Error(err),
			)
			// 수집 루프는 상태를 전이하지 않으므로 여기서 Stop으로 정리합니다.
			// 콜백은 수집 고루틴에서 호출되므로 Stop은 별도 고루틴에서.
			go func() {
				if serr := dev.Stop(); serr != nil {
					logger.Error("Failed to stop device after acquisition failure",
						zap.String("device_id", devCfg.ID),
						zap.Error(serr),
					)
				}
			}()
		},
	})

	if err := app.registry.Add(dev); err != nil {
		return err
	}

	if err := dev.Initialize(devCfg.Endpoint); err != nil {
		// 데몬이 아직 없을 수 있으므로 치명으로 취급하지 않습니다
		logger.Warn("Device initialization failed",
			zap.String("device_id", devCfg.ID),
			zap.String("endpoint", devCfg.Endpoint),
			zap.Error(err),
		)
		return nil
	}

	wb := app.config.Acquisition.WhiteBalance
	dev.SetWhiteBalance(wb[0], wb[1], wb[2])
	dev.SetExposure(app.config.Acquisition.Exposure)

	logger.Info("Device ready",
		zap.String("device_id", devCfg.ID),
		zap.String("endpoint", devCfg.Endpoint),
		zap.Int("target_fps", devCfg.TargetFPS),
	)

	return nil
}

// cleanup은 모든 컴포넌트를 역순으로 정리합니다
func (app *Application) cleanup() {
	if app.apiServer != nil {
		if err := app.apiServer.Stop(); err != nil {
			logger.Error("Failed to stop API server", zap.Error(err))
		}
	}

	if app.previewHub != nil {
		app.previewHub.Close()
	}

	if app.registry != nil {
		app.registry.Close()
	}

	if app.supervisor != nil {
		app.supervisor.StopAll()
	}
}
