package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/vcam/internal/device"
	"github.com/yourusername/vcam/internal/registry"
	"go.uber.org/zap"
)

// nopSource는 항상 성공하는 프레임 소스
type nopSource struct{}

func (nopSource) Dial(string) error                  { return nil }
func (nopSource) Close() error                       { return nil }
func (nopSource) Connect() error                     { return nil }
func (nopSource) Disconnect() error                  { return nil }
func (nopSource) QueryInfo() (string, error)         { return "test camera", nil }
func (nopSource) OpenCapture(int, int, uint32) error { return nil }
func (nopSource) CloseCapture() error                { return nil }
func (nopSource) PullFrame([]byte, []byte, [3]float32, float32) error {
	return nil
}

// newTestServer는 디바이스 하나가 등록된 API 서버를 만듭니다
func newTestServer(t *testing.T, initialized bool) (*Server, *device.Device) {
	t.Helper()

	reg := registry.New(zap.NewNop())
	dev := device.New(device.Config{
		ID:            "cam0",
		TargetFPS:     100,
		DefaultWidth:  64,
		DefaultHeight: 48,
		Source:        nopSource{},
	})
	require.NoError(t, reg.Add(dev))

	if initialized {
		require.NoError(t, dev.Initialize("5555"))
	}

	server := NewServer(ServerConfig{
		Port:       0,
		Production: true,
		Logger:     zap.NewNop(),
		Registry:   reg,
		HealthHandler: func() map[string]interface{} {
			return map[string]interface{}{"status": "ok"}
		},
		WebSocketHandler: func(w http.ResponseWriter, r *http.Request, deviceID string) {
			w.WriteHeader(http.StatusNotImplemented)
		},
	})

	t.Cleanup(func() { dev.Close() })

	return server, dev
}

// doRequest는 라우터로 요청을 보내고 응답을 반환합니다
func doRequest(s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t, true)

	w := doRequest(server, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestUnknownDevice(t *testing.T) {
	server, _ := newTestServer(t, true)

	w := doRequest(server, "POST", "/api/v1/devices/nope/connect", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConnectBeforeInitializeConflicts(t *testing.T) {
	server, _ := newTestServer(t, false)

	// Uninitialized 상태의 connect는 InvalidOperation → 409
	w := doRequest(server, "POST", "/api/v1/devices/cam0/connect", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDeviceLifecycleEndpoints(t *testing.T) {
	server, dev := newTestServer(t, true)

	// Connect
	w := doRequest(server, "POST", "/api/v1/devices/cam0/connect", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, device.StateConnected, dev.State())

	// Start
	body, _ := json.Marshal(map[string]int{"width": 64, "height": 48})
	w = doRequest(server, "POST", "/api/v1/devices/cam0/start", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, device.StateStarted, dev.State())

	// Snapshot: RGB32 크기의 raw 페이로드
	w = doRequest(server, "GET", "/api/v1/devices/cam0/snapshot", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 64*48*4, w.Body.Len())
	assert.Equal(t, "RGB4", w.Header().Get("X-Pixel-Format"))

	// Params
	body, _ = json.Marshal(map[string]interface{}{
		"white_balance": [3]float32{1.5, 1.0, 0.5},
		"exposure":      2.0,
	})
	w = doRequest(server, "PUT", "/api/v1/devices/cam0/params", body)
	require.Equal(t, http.StatusOK, w.Code)

	// 디바이스 상태 조회
	w = doRequest(server, "GET", "/api/v1/devices/cam0", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var info map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "started", info["state"])
	assert.Equal(t, "test camera", info["device_info"])

	// Stop → Disconnect
	w = doRequest(server, "POST", "/api/v1/devices/cam0/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, device.StateConnected, dev.State())

	w = doRequest(server, "POST", "/api/v1/devices/cam0/disconnect", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, device.StateInitialized, dev.State())
}

func TestStartDefaultsToConfiguredResolution(t *testing.T) {
	server, dev := newTestServer(t, true)

	w := doRequest(server, "POST", "/api/v1/devices/cam0/connect", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// 본문 없는 Start는 디바이스에 설정된 기본 해상도를 사용합니다
	w = doRequest(server, "POST", "/api/v1/devices/cam0/start", nil)
	require.Equal(t, http.StatusOK, w.Code)

	geo, started := dev.Geometry()
	require.True(t, started)
	assert.Equal(t, 64, geo.Width)
	assert.Equal(t, 48, geo.Height)
}

func TestSnapshotBeforeStart(t *testing.T) {
	server, _ := newTestServer(t, true)

	w := doRequest(server, "GET", "/api/v1/devices/cam0/snapshot", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestListDevices(t *testing.T) {
	server, _ := newTestServer(t, true)

	w := doRequest(server, "GET", "/api/v1/devices", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Devices []map[string]interface{} `json:"devices"`
		Count   int                      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Devices, 1)
	assert.Equal(t, "cam0", resp.Devices[0]["id"])
	assert.Equal(t, "initialized", resp.Devices[0]["state"])
}

func TestStartValidationError(t *testing.T) {
	server, dev := newTestServer(t, true)
	require.NoError(t, dev.Connect())

	// 본문이 깨진 경우 400
	w := doRequest(server, "POST", "/api/v1/devices/cam0/start", []byte("{broken"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, device.StateConnected, dev.State())
}
