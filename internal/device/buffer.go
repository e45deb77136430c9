package device

import "sync"

// previewBuffer는 가장 최근에 수집된 프레임을 보관하는 고정 크기 픽셀 버퍼.
// Started 상태 동안에만 존재하며, 쓰기는 수집 루프 하나뿐이고 읽기는 여러
// 제어 스레드에서 동시에 일어날 수 있습니다. 쓰기/읽기 모두 전체 프레임
// 단위로 락을 잡으므로 읽는 쪽이 찢어진 프레임을 보는 일은 없습니다.
type previewBuffer struct {
	mu   sync.RWMutex
	data []byte
}

// allocPreviewBuffer는 프레임 크기에 맞는 프리뷰 버퍼를 할당합니다
func allocPreviewBuffer(geo FrameGeometry) (*previewBuffer, error) {
	if geo.ByteSize <= 0 || geo.ByteSize > maxFrameBytes {
		return nil, ErrResourceExhausted
	}
	return &previewBuffer{
		data: make([]byte, geo.ByteSize),
	}, nil
}

// write는 프레임 전체를 버퍼에 복사합니다 (쓰기: 수집 루프 전용)
func (b *previewBuffer) write(src []byte) {
	b.mu.Lock()
	copy(b.data, src)
	b.mu.Unlock()
}

// copyTo는 버퍼 전체를 호출자가 준비한 목적지에 복사하고 복사된 바이트 수를
// 반환합니다
func (b *previewBuffer) copyTo(dst []byte) int {
	b.mu.RLock()
	n := copy(dst, b.data)
	b.mu.RUnlock()
	return n
}

// size는 버퍼 크기를 반환합니다
func (b *previewBuffer) size() int {
	return len(b.data)
}
