package device

import "fmt"

// PixelFormat은 fourcc 형식의 픽셀 포맷 태그
type PixelFormat uint32

// PixelFormatRGB32는 32비트 RGB(fourcc "RGB4"). 현재 유일하게 지원되는 프리뷰 포맷입니다.
const PixelFormatRGB32 PixelFormat = 'R' | 'G'<<8 | 'B'<<16 | '4'<<24

// bytesPerPixelRGB32는 RGB32 픽셀당 바이트 수
const bytesPerPixelRGB32 = 4

// 프레임 크기 상한. 이를 넘는 할당 요청은 ErrResourceExhausted로 거부됩니다.
const maxFrameBytes = 8192 * 8192 * bytesPerPixelRGB32

// String은 fourcc 문자열을 반환합니다
func (f PixelFormat) String() string {
	return string([]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)})
}

// FrameGeometry는 활성 세션의 프레임 크기 정보. Start마다 한 번 계산되고
// 다음 Start까지 변경되지 않습니다.
type FrameGeometry struct {
	Width       int
	Height      int
	Format      PixelFormat
	TotalPixels int
	ByteSize    int
}

// newFrameGeometry는 해상도와 픽셀 포맷으로부터 프레임 크기를 계산합니다
func newFrameGeometry(width, height int, format PixelFormat) (FrameGeometry, error) {
	if width <= 0 || height <= 0 {
		return FrameGeometry{}, fmt.Errorf("%w: invalid frame dimensions %dx%d",
			ErrInvalidOperation, width, height)
	}
	if format != PixelFormatRGB32 {
		return FrameGeometry{}, fmt.Errorf("%w: unsupported pixel format %q",
			ErrInvalidOperation, format.String())
	}

	total := width * height
	return FrameGeometry{
		Width:       width,
		Height:      height,
		Format:      format,
		TotalPixels: total,
		ByteSize:    total * bytesPerPixelRGB32,
	}, nil
}
