package device

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yourusername/vcam/internal/source"
	"go.uber.org/zap"
)

// maxTargetFPS는 허용되는 목표 프레임 레이트 상한
const maxTargetFPS = 120

// Config는 디바이스 설정
type Config struct {
	ID        string
	TargetFPS int
	Source    source.FrameSource
	Logger    *zap.Logger

	// DefaultWidth/DefaultHeight는 해상도를 지정하지 않은 Start 요청에
	// 사용되는 기본 해상도. 0이면 640x480.
	DefaultWidth  int
	DefaultHeight int

	// OnFrameReady는 프레임이 수집될 때마다 수집 고루틴에서 호출됩니다.
	// frame은 다음 수집까지만 유효하므로 보관하려면 복사해야 합니다.
	OnFrameReady func(frame []byte, timestamp time.Time, dev *Device)

	// OnDeviceError는 수집 루프가 비정상 종료할 때 한 번 호출됩니다.
	// 디바이스는 스스로 상태를 전이하지 않으므로, 수신 측이 Stop/Disconnect로
	// 상태를 정리해야 합니다.
	OnDeviceError func(err error)
}

// Device는 프레임 데몬을 통해 동작하는 에뮬레이티드 카메라 디바이스입니다.
// 모든 라이프사이클 연산(Initialize/Connect/Disconnect/Start/Stop)은 단일
// 뮤텍스로 직렬화되며, 프레임 수집은 Started 상태 동안 전용 고루틴이
// 담당합니다.
type Device struct {
	id            string
	targetFPS     int
	defaultWidth  int
	defaultHeight int
	src           source.FrameSource
	logger        *zap.Logger

	onFrameReady  func([]byte, time.Time, *Device)
	onDeviceError func(error)

	// 라이프사이클 상태. mu는 전이의 가드 검사와 효과 전체를 덮습니다.
	mu     sync.Mutex
	state  State
	geo    FrameGeometry
	stopCh chan struct{}
	loopWG sync.WaitGroup

	// 프리뷰 버퍼. 수집 콜백 안에서 CopyPreviewFrame을 호출해도 mu와
	// 교착하지 않도록 포인터를 원자적으로 공유합니다. 데이터 자체는 버퍼의
	// RWMutex가 보호합니다.
	preview atomic.Pointer[previewBuffer]

	// 수집 파라미터. 루프가 mu 없이 읽습니다.
	paramMu      sync.RWMutex
	whiteBalance [3]float32
	exposure     float32

	// 통계 (atomic으로 lock-free)
	framesDelivered atomic.Uint64
	pullFailures    atomic.Uint64
}

// Stats는 디바이스 수집 통계
type Stats struct {
	FramesDelivered uint64 `json:"frames_delivered"`
	PullFailures    uint64 `json:"pull_failures"`
}

// New는 새로운 디바이스를 생성합니다. 생성 직후 상태는 Uninitialized입니다.
func New(config Config) *Device {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	width, height := config.DefaultWidth, config.DefaultHeight
	if width <= 0 {
		width = 640
	}
	if height <= 0 {
		height = 480
	}

	return &Device{
		id:            config.ID,
		targetFPS:     config.TargetFPS,
		defaultWidth:  width,
		defaultHeight: height,
		src:           config.Source,
		logger:        logger.With(zap.String("device_id", config.ID)),
		onFrameReady:  config.OnFrameReady,
		onDeviceError: config.OnDeviceError,
		state:         StateUninitialized,
	}
}

// Initialize는 프레임 데몬 세션을 열고 디바이스를 초기화합니다
func (d *Device) Initialize(endpoint string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateUninitialized {
		return fmt.Errorf("%w: initialize from %s", ErrInvalidOperation, d.state)
	}

	if err := d.src.Dial(endpoint); err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}

	if err := d.initCommon(); err != nil {
		// 베이스 초기화 실패 시 방금 연 세션을 닫고 이전 상태를 유지합니다
		if cerr := d.src.Close(); cerr != nil {
			d.logger.Warn("failed to close session after init failure", zap.Error(cerr))
		}
		return err
	}

	d.state = StateInitialized
	d.logger.Info("connected to frame daemon",
		zap.String("endpoint", endpoint),
	)

	return nil
}

// initCommon은 디바이스 종류와 무관한 공통 초기화를 수행합니다
func (d *Device) initCommon() error {
	if d.targetFPS <= 0 || d.targetFPS > maxTargetFPS {
		return fmt.Errorf("%w: target fps %d out of range [1, %d]",
			ErrInvalidOperation, d.targetFPS, maxTargetFPS)
	}

	d.paramMu.Lock()
	d.whiteBalance = [3]float32{1, 1, 1}
	d.exposure = 1
	d.paramMu.Unlock()

	return nil
}

// Connect는 데몬 뒤의 카메라 디바이스에 연결합니다. 이미 연결된 경우 no-op
// 성공입니다.
func (d *Device) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case StateUninitialized:
		return fmt.Errorf("%w: connect from %s", ErrInvalidOperation, d.state)
	case StateConnected, StateStarted:
		d.logger.Warn("device already connected")
		return nil
	}

	if err := d.src.Connect(); err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}

	d.state = StateConnected
	d.logger.Info("device connected")

	return nil
}

// Disconnect는 카메라 디바이스 연결을 해제합니다. Started 상태에서는 먼저
// Stop해야 합니다.
func (d *Device) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case StateStarted:
		return fmt.Errorf("%w: cannot disconnect a started device", ErrInvalidOperation)
	case StateUninitialized, StateInitialized:
		d.logger.Warn("device already disconnected")
		return nil
	}

	if err := d.src.Disconnect(); err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}

	d.state = StateInitialized
	d.logger.Info("device disconnected")

	return nil
}

// Start는 프레임 크기를 계산하고 프리뷰 버퍼를 할당한 뒤 수집 루프를
// 시작합니다. 이미 시작된 경우 no-op 성공이며 버퍼 재할당도, 루프 재시작도
// 일어나지 않습니다.
func (d *Device) Start(width, height int, format PixelFormat) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case StateStarted:
		d.logger.Warn("device already started")
		return nil
	case StateUninitialized, StateInitialized:
		return fmt.Errorf("%w: start from %s", ErrInvalidOperation, d.state)
	}

	geo, err := newFrameGeometry(width, height, format)
	if err != nil {
		return err
	}

	pb, err := allocPreviewBuffer(geo)
	if err != nil {
		// 할당 실패. 디바이스는 Connected로 남습니다.
		return fmt.Errorf("alloc %dx%d preview: %w", width, height, err)
	}

	if err := d.src.OpenCapture(geo.Width, geo.Height, uint32(geo.Format)); err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}

	d.geo = geo
	d.preview.Store(pb)
	d.stopCh = make(chan struct{})
	d.loopWG.Add(1)
	go d.acquisitionLoop(d.stopCh, geo, pb)

	d.state = StateStarted
	d.logger.Info("device started",
		zap.Int("width", geo.Width),
		zap.Int("height", geo.Height),
		zap.String("pixel_format", geo.Format.String()),
		zap.Int("target_fps", d.targetFPS),
	)

	return nil
}

// Stop은 수집 루프에 취소를 알리고 종료를 기다린 뒤 캡처 세션을 닫고
// 프리뷰 버퍼를 해제합니다. 시작되지 않은 경우 no-op 성공입니다.
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateStarted {
		d.logger.Warn("device not started")
		return nil
	}

	// 취소 신호는 버퍼 해제보다 먼저, 조인은 해제보다 먼저 완료되어야 합니다
	close(d.stopCh)
	d.loopWG.Wait()

	cerr := d.src.CloseCapture()

	// 원격 호출 성패와 무관하게 버퍼는 항상 해제합니다
	d.preview.Store(nil)
	d.stopCh = nil
	d.state = StateConnected

	if cerr != nil {
		d.logger.Error("failed to close capture session", zap.Error(cerr))
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, cerr)
	}

	d.logger.Info("device stopped")

	return nil
}

// Info는 데몬이 보고하는 디바이스 정보 문자열을 반환합니다
func (d *Device) Info() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == StateUninitialized {
		return "", fmt.Errorf("%w: device is not initialized", ErrInvalidOperation)
	}

	info, err := d.src.QueryInfo()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}

	return info, nil
}

// CopyPreviewFrame은 현재 프리뷰 프레임 전체를 호출자가 준비한 목적지에
// 복사하고 복사된 바이트 수를 반환합니다. 버퍼가 없으면 베이스 동작으로
// 검은 프레임을 채웁니다. 이 호출 자체는 실패하지 않습니다.
func (d *Device) CopyPreviewFrame(dst []byte) int {
	if pb := d.preview.Load(); pb != nil {
		return pb.copyTo(dst)
	}

	for i := range dst {
		dst[i] = 0
	}
	return len(dst)
}

// Close는 디바이스를 현재 상태와 무관하게 정리합니다. 종료 시그널 처리에서
// 사용됩니다.
func (d *Device) Close() error {
	if err := d.Stop(); err != nil {
		d.logger.Warn("stop during close failed", zap.Error(err))
	}
	if err := d.Disconnect(); err != nil {
		d.logger.Warn("disconnect during close failed", zap.Error(err))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == StateUninitialized {
		return nil
	}

	d.state = StateUninitialized
	return d.src.Close()
}

// SetWhiteBalance는 채널별 화이트 밸런스 게인을 설정합니다
func (d *Device) SetWhiteBalance(r, g, b float32) {
	d.paramMu.Lock()
	d.whiteBalance = [3]float32{r, g, b}
	d.paramMu.Unlock()
}

// SetExposure는 노출 보정값을 설정합니다
func (d *Device) SetExposure(v float32) {
	d.paramMu.Lock()
	d.exposure = v
	d.paramMu.Unlock()
}

// captureParams는 수집 루프가 읽는 파라미터 스냅샷을 반환합니다
func (d *Device) captureParams() ([3]float32, float32) {
	d.paramMu.RLock()
	defer d.paramMu.RUnlock()
	return d.whiteBalance, d.exposure
}

// ID는 디바이스 식별자를 반환합니다
func (d *Device) ID() string {
	return d.id
}

// State는 현재 라이프사이클 상태를 반환합니다
func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Geometry는 마지막 Start의 프레임 크기와 현재 Started 여부를 반환합니다
func (d *Device) Geometry() (FrameGeometry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.geo, d.state == StateStarted
}

// TargetFPS는 목표 프레임 레이트를 반환합니다
func (d *Device) TargetFPS() int {
	return d.targetFPS
}

// DefaultResolution은 설정된 기본 해상도를 반환합니다
func (d *Device) DefaultResolution() (width, height int) {
	return d.defaultWidth, d.defaultHeight
}

// GetStats는 수집 통계를 반환합니다 (atomic, lock-free)
func (d *Device) GetStats() Stats {
	return Stats{
		FramesDelivered: d.framesDelivered.Load(),
		PullFailures:    d.pullFailures.Load(),
	}
}
