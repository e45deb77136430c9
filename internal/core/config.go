package core

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config는 전체 애플리케이션 설정을 담는 구조체
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Devices     []DeviceConfig    `yaml:"devices"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ServerConfig struct {
	HTTPPort   int  `yaml:"http_port"`
	Production bool `yaml:"production"`
}

// AcquisitionConfig는 모든 디바이스에 공통으로 적용되는 수집 기본값
type AcquisitionConfig struct {
	TargetFPS    int        `yaml:"target_fps"`
	WhiteBalance [3]float32 `yaml:"white_balance"`
	Exposure     float32    `yaml:"exposure"`
}

// DeviceConfig는 개별 디바이스 설정
type DeviceConfig struct {
	ID        string `yaml:"id"`
	Endpoint  string `yaml:"endpoint"`
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
	TargetFPS int    `yaml:"target_fps"` // 0이면 acquisition.target_fps 사용

	// DaemonCommand가 설정되면 서버가 프레임 데몬 프로세스를 직접 띄우고
	// 감시합니다
	DaemonCommand string `yaml:"daemon_command"`
	DaemonRestart bool   `yaml:"daemon_restart"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Output     string `yaml:"output"`
	FilePath   string `yaml:"file_path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// LoadConfig는 YAML 파일에서 설정을 로드합니다
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	// 설정 검증
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// applyDefaults는 생략된 설정에 기본값을 채웁니다
func (c *Config) applyDefaults() {
	if c.Acquisition.TargetFPS == 0 {
		c.Acquisition.TargetFPS = 30
	}
	if c.Acquisition.WhiteBalance == ([3]float32{}) {
		c.Acquisition.WhiteBalance = [3]float32{1, 1, 1}
	}
	if c.Acquisition.Exposure == 0 {
		c.Acquisition.Exposure = 1
	}

	for i := range c.Devices {
		if c.Devices[i].TargetFPS == 0 {
			c.Devices[i].TargetFPS = c.Acquisition.TargetFPS
		}
		if c.Devices[i].Width == 0 {
			c.Devices[i].Width = 640
		}
		if c.Devices[i].Height == 0 {
			c.Devices[i].Height = 480
		}
	}
}

// Validate는 설정값의 유효성을 검증합니다
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.Server.HTTPPort)
	}

	if c.Acquisition.TargetFPS <= 0 || c.Acquisition.TargetFPS > 120 {
		return fmt.Errorf("invalid target_fps: %d", c.Acquisition.TargetFPS)
	}

	seen := make(map[string]bool)
	for _, dev := range c.Devices {
		if dev.ID == "" {
			return fmt.Errorf("device id must not be empty")
		}
		if seen[dev.ID] {
			return fmt.Errorf("duplicate device id: %s", dev.ID)
		}
		seen[dev.ID] = true

		if dev.Endpoint == "" {
			return fmt.Errorf("device %s: endpoint must not be empty", dev.ID)
		}
		if dev.Width <= 0 || dev.Height <= 0 {
			return fmt.Errorf("device %s: invalid resolution %dx%d", dev.ID, dev.Width, dev.Height)
		}
		if dev.TargetFPS <= 0 || dev.TargetFPS > 120 {
			return fmt.Errorf("device %s: invalid target_fps: %d", dev.ID, dev.TargetFPS)
		}
	}

	return nil
}
