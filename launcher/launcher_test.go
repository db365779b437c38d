package launcher

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestParseMyTaskMessage(t *testing.T) {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, 1234)
	msg := append([]byte(TagMyTask), payload...)

	tag, rest, err := SplitTag(msg)
	if err != nil {
		t.Fatalf("SplitTag: %v", err)
	}
	if tag != TagMyTask {
		t.Fatalf("tag = %q, want %q", tag, TagMyTask)
	}

	pid, err := ParseMyTaskPid(rest)
	if err != nil {
		t.Fatalf("ParseMyTaskPid: %v", err)
	}
	if pid != 1234 {
		t.Errorf("pid = %d, want 1234", pid)
	}

	sender, task := uint32(101), uint32(202)
	at := &AcceptedTask{
		pid:    pid,
		task:   task,
		sender: sender,
		proceed: func(s uint32) error {
			if s != sender {
				t.Errorf("proceed called with sender %d, want %d", s, sender)
			}
			return nil
		},
	}

	if at.Pid() != 1234 {
		t.Errorf("Pid() = %d, want 1234", at.Pid())
	}

	if err := at.StartExecution(); err != nil {
		t.Fatalf("StartExecution: %v", err)
	}

	got := at.TakeTask()
	if got != task {
		t.Errorf("TakeTask() = %d, want %d", got, task)
	}
	if second := at.TakeTask(); second != MachPortNull {
		t.Errorf("second TakeTask() = %d, want MachPortNull", second)
	}
}

func TestEncodeProceedIsExactTag(t *testing.T) {
	got := EncodeProceed()
	if !bytes.Equal(got, []byte(TagProceed)) {
		t.Errorf("EncodeProceed() = %q, want %q", got, TagProceed)
	}
	if len(got) != tagLen {
		t.Errorf("EncodeProceed() length = %d, want %d", len(got), tagLen)
	}
}

func TestParseJitdumpMessage(t *testing.T) {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, 5678)
	payload = append(payload, byte(len("a/b/c")))
	payload = append(payload, []byte("a/b/c")...)
	msg := append([]byte(TagJitdump), payload...)

	tag, rest, err := SplitTag(msg)
	if err != nil {
		t.Fatalf("SplitTag: %v", err)
	}
	if tag != TagJitdump {
		t.Fatalf("tag = %q, want %q", tag, TagJitdump)
	}

	jd, err := ParseJitdump(rest)
	if err != nil {
		t.Fatalf("ParseJitdump: %v", err)
	}
	if jd.Pid != 5678 {
		t.Errorf("Pid = %d, want 5678", jd.Pid)
	}
	if jd.Path != "a/b/c" {
		t.Errorf("Path = %q, want %q", jd.Path, "a/b/c")
	}
}

func TestParseJitdumpTruncated(t *testing.T) {
	if _, err := ParseJitdump([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for truncated payload")
	}
}

func TestSplitTagShortMessage(t *testing.T) {
	if _, _, err := SplitTag([]byte("short")); err == nil {
		t.Fatal("expected error for message shorter than tag")
	}
}
