package launcher

import (
	"compress/gzip"
	_ "embed"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// preloadGz is the bundled, gzip-compressed preload dynamic library: the
// single persisted/bundled asset named in §6. The checked-in copy here is
// a placeholder blob; a real build replaces it with the actual compiled
// libsamply_mac_preload.dylib before this package is built.
//
//go:embed assets/libsamply_mac_preload.dylib.gz
var preloadGz []byte

const preloadLibName = "libsamply_mac_preload.dylib"

// Bridge owns the launcher side of the process-launch and task-port
// bridge: the message server, the temporary directory holding the
// extracted preload library, and the spawned child. Its lifetime governs
// the lifetime of that directory.
type Bridge struct {
	Accepter *TaskAccepter
	tempDir  string
}

// NewBridge creates the message server and extracts the preload library
// into a fresh temporary directory. Close removes the directory.
func NewBridge() (*Bridge, error) {
	accepter, err := NewTaskAccepter()
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "samply-launcher-")
	if err != nil {
		accepter.Close()
		return nil, fmt.Errorf("launcher: creating temp dir: %w", err)
	}

	if err := extractPreload(dir); err != nil {
		os.RemoveAll(dir)
		accepter.Close()
		return nil, err
	}

	return &Bridge{Accepter: accepter, tempDir: dir}, nil
}

func extractPreload(dir string) error {
	gz, err := gzip.NewReader(bytesReader(preloadGz))
	if err != nil {
		return fmt.Errorf("launcher: decompressing preload library: %w", err)
	}
	defer gz.Close()

	dst := filepath.Join(dir, preloadLibName)
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o755)
	if err != nil {
		return fmt.Errorf("launcher: writing preload library: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, gz); err != nil {
		return fmt.Errorf("launcher: writing preload library: %w", err)
	}
	return nil
}

// PreloadPath returns the path the preload library was extracted to.
func (b *Bridge) PreloadPath() string {
	return filepath.Join(b.tempDir, preloadLibName)
}

// Launch spawns path with args, inheriting the current environment plus
// DYLD_INSERT_LIBRARIES (pointing at the extracted preload library) and
// SAMPLY_BOOTSTRAP_SERVER_NAME (this bridge's registration name). A
// missing executable, or any other spawn failure, prints a diagnostic and
// terminates the process: an interactive tool has nothing useful to do
// with a target it cannot run.
func (b *Bridge) Launch(path string, args []string) *exec.Cmd {
	cmd := exec.Command(path, args...)
	cmd.Env = append(os.Environ(),
		"DYLD_INSERT_LIBRARIES="+b.PreloadPath(),
		"SAMPLY_BOOTSTRAP_SERVER_NAME="+b.Accepter.RegistrationName(),
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "samply: could not find executable %q\n", path)
		} else {
			fmt.Fprintf(os.Stderr, "samply: could not launch %q: %v\n", path, err)
		}
		os.Exit(1)
	}
	return cmd
}

// NextMessage blocks on the bridge's message server for up to timeout.
func (b *Bridge) NextMessage(timeout time.Duration) (ReceivedKind, *AcceptedTask, *JitdumpMessage, error) {
	return b.Accepter.NextMessage(timeout)
}

// Close releases the message server and removes the temporary directory
// (and with it, the extracted preload library).
func (b *Bridge) Close() error {
	err := b.Accepter.Close()
	if rmErr := os.RemoveAll(b.tempDir); rmErr != nil && err == nil {
		err = rmErr
	}
	return err
}

type sliceReader struct {
	b []byte
	i int
}

func bytesReader(b []byte) *sliceReader { return &sliceReader{b: b} }

func (r *sliceReader) Read(p []byte) (int, error) {
	if r.i >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.i:])
	r.i += n
	return n, nil
}
