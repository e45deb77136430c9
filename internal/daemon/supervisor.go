package daemon

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Process는 실행 중인 프레임 데몬 프로세스 정보
type Process struct {
	ID         string
	Cmd        *exec.Cmd
	Command    string
	Restart    bool
	cancelFunc context.CancelFunc
}

// Supervisor는 디바이스별 프레임 데몬 프로세스를 관리합니다. 데몬 명령이
// 설정된 디바이스에 대해 프로세스를 띄우고, 비정상 종료 시 재시작합니다.
type Supervisor struct {
	processes map[string]*Process
	mu        sync.RWMutex
	logger    *zap.Logger

	// restartDelay는 재시작 전 대기 시간
	restartDelay time.Duration
}

// NewSupervisor는 새로운 데몬 수퍼바이저를 생성합니다
func NewSupervisor(logger *zap.Logger) *Supervisor {
	return &Supervisor{
		processes:    make(map[string]*Process),
		logger:       logger,
		restartDelay: 2 * time.Second,
	}
}

// Start는 데몬 프로세스를 시작합니다
func (s *Supervisor) Start(id, command string, restart bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 이미 실행 중인 프로세스가 있으면 에러
	if proc, exists := s.processes[id]; exists {
		if proc.Cmd != nil && proc.Cmd.Process != nil {
			return fmt.Errorf("daemon %s is already running", id)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	proc := &Process{
		ID:         id,
		Cmd:        cmd,
		Command:    command,
		Restart:    restart,
		cancelFunc: cancel,
	}

	s.processes[id] = proc

	s.logger.Info("Daemon started",
		zap.String("id", id),
		zap.Int("pid", cmd.Process.Pid),
		zap.Bool("restart", restart),
	)

	// 프로세스 감시 고루틴 시작
	go s.monitorProcess(proc)

	return nil
}

// Stop은 데몬 프로세스를 중지합니다
func (s *Supervisor) Stop(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	proc, exists := s.processes[id]
	if !exists {
		return fmt.Errorf("daemon %s not found", id)
	}

	// 재시작 루프가 따라오지 않도록 감시를 끕니다
	proc.Restart = false

	if proc.cancelFunc != nil {
		proc.cancelFunc()
	}

	delete(s.processes, id)

	s.logger.Info("Daemon stopped", zap.String("id", id))

	return nil
}

// IsRunning은 데몬이 실행 중인지 확인합니다
func (s *Supervisor) IsRunning(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	proc, exists := s.processes[id]
	if !exists {
		return false
	}

	return proc.Cmd != nil && proc.Cmd.Process != nil
}

// monitorProcess는 데몬 프로세스를 감시하고 필요시 재시작합니다
func (s *Supervisor) monitorProcess(proc *Process) {
	err := proc.Cmd.Wait()

	s.logger.Info("Daemon exited",
		zap.String("id", proc.ID),
		zap.Error(err),
	)

	// Restart 플래그와 등록 여부는 같은 락 아래에서 읽습니다. Stop이 먼저
	// 프로세스를 내려 등록을 해제했다면 재시작하지 않습니다.
	s.mu.Lock()
	registered := s.processes[proc.ID] == proc
	restart := registered && proc.Restart && err != nil
	if registered {
		delete(s.processes, proc.ID)
	}
	s.mu.Unlock()

	if !restart {
		return
	}

	s.logger.Info("Restarting daemon", zap.String("id", proc.ID))
	time.Sleep(s.restartDelay)

	if err := s.Start(proc.ID, proc.Command, true); err != nil {
		s.logger.Error("Failed to restart daemon",
			zap.String("id", proc.ID),
			zap.Error(err),
		)
	}
}

// StopAll은 모든 데몬 프로세스를 중지합니다
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.processes))
	for id := range s.processes {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		if err := s.Stop(id); err != nil {
			s.logger.Error("Failed to stop daemon",
				zap.String("id", id),
				zap.Error(err),
			)
		}
	}
}
