//go:build !darwin

package launcher

import (
	"fmt"
	"time"
)

// TaskAccepter is a stub on non-Darwin platforms: task ports and mach
// message passing are a Darwin-only concept, so every method reports that
// the bridge is unsupported here rather than failing to compile.
type TaskAccepter struct{}

// NewTaskAccepter always fails on non-Darwin platforms.
func NewTaskAccepter() (*TaskAccepter, error) {
	return nil, fmt.Errorf("launcher: task-port bridge is only supported on macOS")
}

func (a *TaskAccepter) RegistrationName() string { return "" }

func (a *TaskAccepter) NextMessage(timeout time.Duration) (ReceivedKind, *AcceptedTask, *JitdumpMessage, error) {
	return ReceivedNone, nil, nil, fmt.Errorf("launcher: task-port bridge is only supported on macOS")
}

func (a *TaskAccepter) Close() error { return nil }
