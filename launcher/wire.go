// Package launcher implements the macOS process-launch and task-port
// bridge (§4.7): it spawns a profiling target with a preload library
// injected via DYLD_INSERT_LIBRARIES, and receives the child's task port
// and any JIT dump file paths over a cross-process message channel.
//
// The wire format and task lifecycle (this file) are portable; the actual
// mach_msg-based message server lives in the darwin-only build-tagged
// files, since task ports are a Darwin-only concept.
package launcher

import (
	"encoding/binary"
	"fmt"
)

// Wire tags: every message on the bootstrap channel begins with one of
// these 7-byte ASCII sequences.
const (
	TagMyTask  = "My task"
	TagJitdump = "Jitdump"
	TagProceed = "Proceed"

	tagLen = 7
)

// MachPortNull is the null mach port value used to mark a port as no
// longer owned after TakeTask transfers it to the caller.
const MachPortNull uint32 = 0

// ReceivedKind discriminates the two inbound message shapes a child can
// send.
type ReceivedKind int

const (
	ReceivedNone ReceivedKind = iota
	ReceivedTask
	ReceivedJitdump
)

// JitdumpMessage is the decoded payload of a "Jitdump" message: the
// sending child's pid and the path to the JIT dump file it produced.
type JitdumpMessage struct {
	Pid  uint32
	Path string
}

// SplitTag separates a message's 7-byte tag from its payload. It fails if
// the message is shorter than the tag.
func SplitTag(msg []byte) (tag string, payload []byte, err error) {
	if len(msg) < tagLen {
		return "", nil, fmt.Errorf("launcher: message shorter than tag (%d bytes)", len(msg))
	}
	return string(msg[:tagLen]), msg[tagLen:], nil
}

// ParseMyTaskPid decodes a "My task" message's pid field: 4 little-endian
// bytes. The task and sender ports themselves travel as port descriptors
// in the message body, not in the payload bytes, and are
// extracted by the platform-specific receiver.
func ParseMyTaskPid(payload []byte) (uint32, error) {
	if len(payload) < 4 {
		return 0, fmt.Errorf("launcher: truncated \"My task\" payload")
	}
	return binary.LittleEndian.Uint32(payload[:4]), nil
}

// ParseJitdump decodes a "Jitdump" message payload: a little-endian pid,
// a one-byte path length, then that many bytes of UTF-8 path.
func ParseJitdump(payload []byte) (JitdumpMessage, error) {
	if len(payload) < 5 {
		return JitdumpMessage{}, fmt.Errorf("launcher: truncated \"Jitdump\" payload")
	}
	pid := binary.LittleEndian.Uint32(payload[:4])
	pathLen := int(payload[4])
	if len(payload) < 5+pathLen {
		return JitdumpMessage{}, fmt.Errorf("launcher: \"Jitdump\" payload shorter than declared path length")
	}
	return JitdumpMessage{Pid: pid, Path: string(payload[5 : 5+pathLen])}, nil
}

// EncodeProceed returns the literal 7-byte "Proceed" message sent from
// launcher to child to unblock its preload stub.
func EncodeProceed() []byte {
	return []byte(TagProceed)
}

// AcceptedTask is the bridge's view of one accepted child: its pid, the
// task port (ownership transferred out exactly once via TakeTask), and
// the sender channel used to signal it to proceed.
type AcceptedTask struct {
	pid    uint32
	task   uint32
	sender uint32

	// proceed sends the literal "Proceed" message on the sender channel.
	// It is supplied by the platform-specific receiver that constructed
	// this AcceptedTask, since the actual send is a Darwin mach_msg call.
	proceed func(sender uint32) error
}

// Pid returns the child process's pid.
func (t *AcceptedTask) Pid() uint32 { return t.pid }

// TakeTask returns the task port and overwrites the stored value with
// MachPortNull, transferring ownership to the caller exactly once. A
// second call returns MachPortNull.
func (t *AcceptedTask) TakeTask() uint32 {
	p := t.task
	t.task = MachPortNull
	return p
}

// StartExecution sends "Proceed" on the sender channel, unblocking the
// child's preload stub.
func (t *AcceptedTask) StartExecution() error {
	if t.proceed == nil {
		return fmt.Errorf("launcher: no sender channel to proceed on")
	}
	return t.proceed(t.sender)
}
