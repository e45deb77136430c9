package device

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// acquisitionLoop는 Started 세션 동안 목표 프레임 레이트로 프레임을
// 수집하는 루프입니다. 라이프사이클 뮤텍스는 절대 잡지 않으며, 취소는 매
// 반복의 대기 지점에서만 확인되므로 최대 한 프레임 간격의 지연으로
// 종료됩니다. 풀 도중의 Stop은 해당 풀이 반환된 뒤에 완료됩니다.
func (d *Device) acquisitionLoop(stopCh <-chan struct{}, geo FrameGeometry, pb *previewBuffer) {
	defer d.loopWG.Done()

	interval := time.Duration(1000000/d.targetFPS) * time.Microsecond
	frame := make([]byte, geo.ByteSize)
	scratch := make([]byte, geo.ByteSize)

	d.logger.Debug("acquisition loop started",
		zap.Duration("frame_interval", interval),
	)

	for {
		// 프레임 간격 경과 또는 취소 신호를 기다립니다
		select {
		case <-stopCh:
			d.logger.Debug("acquisition loop cancelled")
			return
		case <-time.After(interval):
		}

		wb, exposure := d.captureParams()

		if err := d.src.PullFrame(frame, scratch, wb, exposure); err != nil {
			d.pullFailures.Add(1)
			d.logger.Error("failed to pull frame", zap.Error(err))
			if d.onDeviceError != nil {
				d.onDeviceError(fmt.Errorf("%w: %v", ErrFrameSourceDied, err))
			}
			return
		}

		// 프리뷰 버퍼는 전체 프레임 단위로 갱신합니다
		pb.write(scratch)

		timestamp := time.Now()
		d.framesDelivered.Add(1)

		if d.onFrameReady != nil {
			d.onFrameReady(frame, timestamp, d)
		}
	}
}
