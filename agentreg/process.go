package agentreg

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"
)

// OSProcessHandle backs a running agent with a real OS process, signalling
// it with SIGSTOP/SIGCONT/SIGTERM where the platform supports it (spec
// §4.I, SPEC_FULL.md's gopsutil addition). On platforms without POSIX
// signals (Windows), Pause/Resume do nothing and return nil; Terminate
// calls Kill via gopsutil.
type OSProcessHandle struct {
	pid int32
	ps  *process.Process
}

// NewOSProcessHandle wraps the OS process identified by pid.
func NewOSProcessHandle(pid int32) (*OSProcessHandle, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("agentreg: process %d: %w", pid, err)
	}
	return &OSProcessHandle{pid: pid, ps: p}, nil
}

// Pause sends SIGSTOP on POSIX platforms.
func (h *OSProcessHandle) Pause() error {
	if runtime.GOOS == "windows" {
		return nil
	}
	return h.ps.SendSignal(syscall.SIGSTOP)
}

// Resume sends SIGCONT on POSIX platforms.
func (h *OSProcessHandle) Resume() error {
	if runtime.GOOS == "windows" {
		return nil
	}
	return h.ps.SendSignal(syscall.SIGCONT)
}

// Terminate sends SIGTERM, falling back to gopsutil's Kill only when the
// signal cannot be sent (and always on Windows). It does not wait for the
// process to exit.
func (h *OSProcessHandle) Terminate() error {
	if runtime.GOOS != "windows" {
		if err := h.ps.SendSignal(syscall.SIGTERM); err == nil {
			return nil
		}
	}
	return h.ps.Kill()
}

// CooperativeHandle backs a goroutine-based agent with an in-memory pause
// flag and stop flag the agent polls cooperatively between steps (spec
// §4.I, §5). It never signals any OS process.
type CooperativeHandle struct {
	paused    atomic.Bool
	stopped   atomic.Bool
}

// NewCooperativeHandle constructs a handle with both flags cleared.
func NewCooperativeHandle() *CooperativeHandle { return &CooperativeHandle{} }

// Pause sets the cooperative pause flag.
func (h *CooperativeHandle) Pause() error { h.paused.Store(true); return nil }

// Resume clears the cooperative pause flag.
func (h *CooperativeHandle) Resume() error { h.paused.Store(false); return nil }

// Terminate sets the cooperative stop flag.
func (h *CooperativeHandle) Terminate() error { h.stopped.Store(true); return nil }

// Paused reports whether the agent should suspend its next step.
func (h *CooperativeHandle) Paused() bool { return h.paused.Load() }

// Stopped reports whether the agent should stop entirely.
func (h *CooperativeHandle) Stopped() bool { return h.stopped.Load() }
