package registry

import (
	"fmt"
	"sync"

	"github.com/yourusername/vcam/internal/device"
	"go.uber.org/zap"
)

// Registry는 이름으로 디바이스 인스턴스를 관리합니다. 각 디바이스는 독립적으로
// 동작하며 레지스트리는 조회와 일괄 종료만 담당합니다.
type Registry struct {
	logger *zap.Logger

	devices map[string]*device.Device
	mutex   sync.RWMutex
}

// New는 새로운 디바이스 레지스트리를 생성합니다
func New(logger *zap.Logger) *Registry {
	return &Registry{
		logger:  logger,
		devices: make(map[string]*device.Device),
	}
}

// Add는 디바이스를 등록합니다
func (r *Registry) Add(dev *device.Device) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	id := dev.ID()
	if _, exists := r.devices[id]; exists {
		return fmt.Errorf("device %s already registered", id)
	}

	r.devices[id] = dev

	r.logger.Info("Device registered",
		zap.String("device_id", id),
	)

	return nil
}

// Get은 디바이스를 조회합니다
func (r *Registry) Get(id string) (*device.Device, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	dev, exists := r.devices[id]
	if !exists {
		return nil, fmt.Errorf("device %s not found", id)
	}

	return dev, nil
}

// List는 등록된 모든 디바이스 목록을 반환합니다
func (r *Registry) List() map[string]*device.Device {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	// 복사본 반환 (외부에서 맵을 수정하지 못하도록)
	devices := make(map[string]*device.Device, len(r.devices))
	for id, dev := range r.devices {
		devices[id] = dev
	}

	return devices
}

// Remove는 디바이스를 정리하고 등록을 해제합니다
func (r *Registry) Remove(id string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	dev, exists := r.devices[id]
	if !exists {
		return fmt.Errorf("device %s not found", id)
	}

	if err := dev.Close(); err != nil {
		r.logger.Warn("Device close failed during removal",
			zap.String("device_id", id),
			zap.Error(err),
		)
	}

	delete(r.devices, id)

	r.logger.Info("Device removed",
		zap.String("device_id", id),
	)

	return nil
}

// Close는 모든 디바이스를 정리합니다
func (r *Registry) Close() {
	r.logger.Info("Closing device registry")

	r.mutex.Lock()
	defer r.mutex.Unlock()

	for id, dev := range r.devices {
		if err := dev.Close(); err != nil {
			r.logger.Warn("Device close failed",
				zap.String("device_id", id),
				zap.Error(err),
			)
		}
		delete(r.devices, id)
	}
}
