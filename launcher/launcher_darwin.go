//go:build darwin

package launcher

/*
#cgo LDFLAGS: -framework CoreFoundation
#include <mach/mach.h>
#include <servers/bootstrap.h>
#include <string.h>

// recv_buf is a fixed-size inline receive buffer; mach_msg complex
// messages (those carrying port rights) are small here — a pid, a path,
// and at most two port descriptors — so a generous fixed buffer avoids a
// second syscall to size the message first.
typedef struct {
	mach_msg_header_t header;
	mach_msg_body_t body;
	mach_msg_port_descriptor_t ports[2];
	mach_msg_trailer_t trailer;
	char data[256];
} recv_msg_t;

static kern_return_t samply_bootstrap_register(mach_port_t bootstrap, const char *name, mach_port_t port) {
	return bootstrap_register2(bootstrap, (char *)name, port, 0);
}

static kern_return_t samply_bootstrap_lookup(mach_port_t bootstrap, const char *name, mach_port_t *port) {
	return bootstrap_look_up(bootstrap, (char *)name, port);
}

static kern_return_t samply_mach_msg_receive(mach_port_t rcv, recv_msg_t *msg, mach_msg_timeout_t timeout_ms) {
	memset(msg, 0, sizeof(*msg));
	mach_msg_option_t opts = MACH_RCV_MSG | MACH_RCV_TIMEOUT;
	return mach_msg(&msg->header, opts, 0, sizeof(recv_msg_t), rcv, timeout_ms, MACH_PORT_NULL);
}

static kern_return_t samply_mach_msg_send_simple(mach_port_t dest, const void *payload, mach_msg_size_t len) {
	struct {
		mach_msg_header_t header;
		char data[256];
	} msg;
	memset(&msg, 0, sizeof(msg));
	msg.header.msgh_bits = MACH_MSGH_BITS(MACH_MSG_TYPE_COPY_SEND, 0);
	msg.header.msgh_size = sizeof(mach_msg_header_t) + len;
	msg.header.msgh_remote_port = dest;
	msg.header.msgh_local_port = MACH_PORT_NULL;
	memcpy(msg.data, payload, len);
	return mach_msg(&msg.header, MACH_SEND_MSG, msg.header.msgh_size, 0, MACH_PORT_NULL, MACH_MSG_TIMEOUT_NONE, MACH_PORT_NULL);
}
*/
import "C"

import (
	"fmt"
	"time"
	"unsafe"
)

// TaskAccepter owns the bootstrap-registered receive port a spawned
// child's preload stub connects back to.
type TaskAccepter struct {
	port mach_port_t
	name string
}

type mach_port_t = C.mach_port_t

// NewTaskAccepter creates a multi-shot message server and registers it
// under a generated name a child process can look up via
// SAMPLY_BOOTSTRAP_SERVER_NAME.
func NewTaskAccepter() (*TaskAccepter, error) {
	var port C.mach_port_t
	if kr := C.mach_port_allocate(C.mach_task_self_, C.MACH_PORT_RIGHT_RECEIVE, &port); kr != C.KERN_SUCCESS {
		return nil, fmt.Errorf("launcher: mach_port_allocate failed: %d", kr)
	}
	if kr := C.mach_port_insert_right(C.mach_task_self_, port, port, C.MACH_MSG_TYPE_MAKE_SEND); kr != C.KERN_SUCCESS {
		return nil, fmt.Errorf("launcher: mach_port_insert_right failed: %d", kr)
	}

	name := fmt.Sprintf("org.samply.profiler.%d", time.Now().UnixNano())
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var bootstrapPort C.mach_port_t
	if kr := C.task_get_special_port(C.mach_task_self_, C.TASK_BOOTSTRAP_PORT, &bootstrapPort); kr != C.KERN_SUCCESS {
		return nil, fmt.Errorf("launcher: task_get_special_port failed: %d", kr)
	}
	if kr := C.samply_bootstrap_register(bootstrapPort, cname, port); kr != C.KERN_SUCCESS {
		return nil, fmt.Errorf("launcher: bootstrap_register2 failed: %d", kr)
	}

	return &TaskAccepter{port: port, name: name}, nil
}

// RegistrationName is the opaque name a spawned child looks up to find
// this server.
func (a *TaskAccepter) RegistrationName() string { return a.name }

// NextMessage blocks for up to timeout waiting for a message, returning
// either an AcceptedTask ("My task") or a JitdumpMessage ("Jitdump"). Any
// other tag is a programming error and is fatal, matching §4.7.
func (a *TaskAccepter) NextMessage(timeout time.Duration) (ReceivedKind, *AcceptedTask, *JitdumpMessage, error) {
	var raw C.recv_msg_t
	kr := C.samply_mach_msg_receive(a.port, &raw, C.mach_msg_timeout_t(timeout.Milliseconds()))
	if kr == C.MACH_RCV_TIMED_OUT {
		return ReceivedNone, nil, nil, fmt.Errorf("launcher: timed out waiting for message")
	}
	if kr != C.MACH_MSG_SUCCESS {
		return ReceivedNone, nil, nil, fmt.Errorf("launcher: mach_msg receive failed: %d", kr)
	}

	payload := C.GoBytes(unsafe.Pointer(&raw.data[0]), C.int(raw.header.msgh_size)-C.int(unsafe.Sizeof(raw.header))-C.int(unsafe.Sizeof(raw.body)))
	tag, rest, err := SplitTag(payload)
	if err != nil {
		return ReceivedNone, nil, nil, err
	}

	switch tag {
	case TagMyTask:
		pid, err := ParseMyTaskPid(rest)
		if err != nil {
			return ReceivedNone, nil, nil, err
		}
		// Popped in the order the child pushed them: sender then task.
		sender := raw.ports[0].name
		task := raw.ports[1].name
		at := &AcceptedTask{
			pid:    pid,
			task:   uint32(task),
			sender: uint32(sender),
			proceed: func(senderPort uint32) error {
				msg := EncodeProceed()
				kr := C.samply_mach_msg_send_simple(C.mach_port_t(senderPort), unsafe.Pointer(&msg[0]), C.mach_msg_size_t(len(msg)))
				if kr != C.MACH_MSG_SUCCESS {
					return fmt.Errorf("launcher: sending Proceed failed: %d", kr)
				}
				return nil
			},
		}
		return ReceivedTask, at, nil, nil

	case TagJitdump:
		jd, err := ParseJitdump(rest)
		if err != nil {
			return ReceivedNone, nil, nil, err
		}
		return ReceivedJitdump, nil, &jd, nil

	default:
		panic(fmt.Sprintf("launcher: unexpected message tag %q", tag))
	}
}

// Close releases the receive port.
func (a *TaskAccepter) Close() error {
	if kr := C.mach_port_deallocate(C.mach_task_self_, a.port); kr != C.KERN_SUCCESS {
		return fmt.Errorf("launcher: mach_port_deallocate failed: %d", kr)
	}
	return nil
}
