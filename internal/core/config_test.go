package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig는 임시 설정 파일을 만듭니다
func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		path := writeConfig(t, `
server:
  http_port: 8080
acquisition:
  target_fps: 24
devices:
  - id: front
    endpoint: "5555"
    width: 640
    height: 480
logging:
  level: info
  output: console
`)

		cfg, err := LoadConfig(path)
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Server.HTTPPort)
		assert.Equal(t, 24, cfg.Acquisition.TargetFPS)
		require.Len(t, cfg.Devices, 1)
		assert.Equal(t, "front", cfg.Devices[0].ID)
		assert.Equal(t, 24, cfg.Devices[0].TargetFPS) // 공통 기본값 상속
	})

	t.Run("DefaultsApplied", func(t *testing.T) {
		path := writeConfig(t, `
server:
  http_port: 8080
devices:
  - id: cam
    endpoint: "5556"
`)

		cfg, err := LoadConfig(path)
		require.NoError(t, err)

		assert.Equal(t, 30, cfg.Acquisition.TargetFPS)
		assert.Equal(t, [3]float32{1, 1, 1}, cfg.Acquisition.WhiteBalance)
		assert.Equal(t, float32(1), cfg.Acquisition.Exposure)
		assert.Equal(t, 640, cfg.Devices[0].Width)
		assert.Equal(t, 480, cfg.Devices[0].Height)
	})

	t.Run("FileNotFound", func(t *testing.T) {
		_, err := LoadConfig("/nonexistent/config.yaml")
		assert.Error(t, err)
	})

	t.Run("MalformedYAML", func(t *testing.T) {
		path := writeConfig(t, "server: [not a mapping")
		_, err := LoadConfig(path)
		assert.Error(t, err)
	})
}

func TestConfigValidation(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:      ServerConfig{HTTPPort: 8080},
			Acquisition: AcquisitionConfig{TargetFPS: 30},
			Devices: []DeviceConfig{
				{ID: "front", Endpoint: "5555", Width: 640, Height: 480, TargetFPS: 30},
			},
		}
	}

	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("InvalidHTTPPort", func(t *testing.T) {
		cfg := base()
		cfg.Server.HTTPPort = 0
		assert.Error(t, cfg.Validate())

		cfg.Server.HTTPPort = 70000
		assert.Error(t, cfg.Validate())
	})

	t.Run("InvalidTargetFPS", func(t *testing.T) {
		cfg := base()
		cfg.Acquisition.TargetFPS = 121
		assert.Error(t, cfg.Validate())
	})

	t.Run("EmptyDeviceID", func(t *testing.T) {
		cfg := base()
		cfg.Devices[0].ID = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("DuplicateDeviceID", func(t *testing.T) {
		cfg := base()
		cfg.Devices = append(cfg.Devices, cfg.Devices[0])
		assert.Error(t, cfg.Validate())
	})

	t.Run("EmptyEndpoint", func(t *testing.T) {
		cfg := base()
		cfg.Devices[0].Endpoint = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("InvalidResolution", func(t *testing.T) {
		cfg := base()
		cfg.Devices[0].Width = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("InvalidDeviceFPS", func(t *testing.T) {
		cfg := base()
		cfg.Devices[0].TargetFPS = -1
		assert.Error(t, cfg.Validate())
	})
}
