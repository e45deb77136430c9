package device

// State는 카메라 디바이스의 라이프사이클 상태를 나타냅니다
type State int

const (
	// StateUninitialized는 초기화 전 상태
	StateUninitialized State = iota
	// StateInitialized는 프레임 데몬 세션이 열린 상태
	StateInitialized
	// StateConnected는 원격 카메라에 연결된 상태
	StateConnected
	// StateStarted는 프레임 수집이 진행 중인 상태
	StateStarted
)

// String은 상태의 문자열 표현을 반환합니다
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateConnected:
		return "connected"
	case StateStarted:
		return "started"
	default:
		return "unknown"
	}
}
