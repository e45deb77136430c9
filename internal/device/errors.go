package device

import "errors"

// 디바이스 에러 종류. 호출자는 errors.Is로 구분합니다.
var (
	// ErrInvalidOperation은 현재 상태에서 허용되지 않는 전이 시도
	ErrInvalidOperation = errors.New("invalid operation for current device state")

	// ErrResourceExhausted는 프리뷰 프레임 버퍼 할당 실패
	ErrResourceExhausted = errors.New("preview frame buffer allocation failed")

	// ErrRemoteUnavailable은 프레임 데몬에 대한 제어 요청 실패
	ErrRemoteUnavailable = errors.New("remote frame source unavailable")

	// ErrFrameSourceDied는 수집 루프 중 프레임 풀 실패 (비동기 콜백으로 전달됨)
	ErrFrameSourceDied = errors.New("remote frame source died")
)
