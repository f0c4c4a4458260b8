// Package shm hands serialized keymaps to clients through anonymous,
// memory-mapped files living only as file descriptors.
package shm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/bnema/waykbd/internal/logger"
	"golang.org/x/sys/unix"
)

// RuntimeDirEnv is the platform-standard runtime directory variable.
const RuntimeDirEnv = "XDG_RUNTIME_DIR"

const filePattern = "waykbd-keymap-*"

var (
	// ErrNoRuntimeDirectory is returned when neither an override nor a
	// platform runtime directory is available.
	ErrNoRuntimeDirectory = errors.New("no runtime directory available")
	// ErrClosed is returned when using a region after Close.
	ErrClosed = errors.New("shared memory region is closed")
)

var log = logger.WithPrefix("shm")

// Publisher creates shared keymap buffers.
type Publisher struct {
	// RuntimeDir overrides the runtime directory lookup when set.
	RuntimeDir string
}

// NewPublisher returns a publisher using runtimeDir, or the platform
// runtime directory if runtimeDir is empty.
func NewPublisher(runtimeDir string) *Publisher {
	return &Publisher{RuntimeDir: runtimeDir}
}

// ResolveRuntimeDir picks the directory the anonymous file is created in.
func (p *Publisher) ResolveRuntimeDir() (string, error) {
	if p != nil && p.RuntimeDir != "" {
		return p.RuntimeDir, nil
	}
	if dir := os.Getenv(RuntimeDirEnv); dir != "" {
		return dir, nil
	}
	dir := filepath.Join("/run/user", strconv.Itoa(os.Getuid()))
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return dir, nil
	}
	return "", ErrNoRuntimeDirectory
}

// Publish writes text, NUL terminated, into a fresh shared mapping.
// The returned region owns the descriptor and the mapping.
func (p *Publisher) Publish(text string) (*Region, error) {
	size := len(text) + 1

	fd, err := p.createAnonymousFile(int64(size))
	if err != nil {
		return nil, err
	}

	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("mmap keymap: %w", err)
	}

	copy(data, text)
	data[len(text)] = 0

	log.Debug("published shared buffer", "fd", fd, "size", size)
	return &Region{fd: fd, data: data, size: uint32(size)}, nil
}

// createAnonymousFile creates an unlinked, close-on-exec file of the given size.
func (p *Publisher) createAnonymousFile(size int64) (int, error) {
	dir, err := p.ResolveRuntimeDir()
	if err != nil {
		return -1, err
	}

	f, err := os.CreateTemp(dir, filePattern)
	if err != nil {
		return -1, fmt.Errorf("create anonymous file in %s: %w", dir, err)
	}
	name := f.Name()

	// Detach the descriptor from the *os.File so the finalizer cannot close it.
	fd, err := unix.Dup(int(f.Fd()))
	_ = f.Close()
	if rmErr := unix.Unlink(name); rmErr != nil {
		log.Warn("failed to unlink anonymous file", "path", name, "err", rmErr)
	}
	if err != nil {
		return -1, fmt.Errorf("dup anonymous file: %w", err)
	}

	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("set close-on-exec: %w", err)
	}

	if err := unix.Ftruncate(fd, size); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("ftruncate to %d bytes: %w", size, err)
	}

	return fd, nil
}

// Region is a shared buffer: an open descriptor plus its read/write mapping.
// The mapping is valid only while the descriptor is open; Close releases both.
type Region struct {
	mu   sync.Mutex
	fd   int
	data []byte
	size uint32
}

// FD returns the descriptor to send to clients, or -1 once closed.
func (r *Region) FD() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.data == nil {
		return -1
	}
	return r.fd
}

// Size is the byte length of the buffer, terminator included.
func (r *Region) Size() uint32 {
	return r.size
}

// Bytes returns the mapped contents. The slice must not be used after Close.
func (r *Region) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data
}

// Text returns the mapped contents without the terminator.
func (r *Region) Text() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.data == nil {
		return "", ErrClosed
	}
	return string(r.data[:len(r.data)-1]), nil
}

// Close unmaps the buffer and closes the descriptor. It is safe to call twice.
func (r *Region) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.data == nil {
		return nil
	}

	var errs []error
	if err := unix.Munmap(r.data); err != nil {
		errs = append(errs, fmt.Errorf("munmap: %w", err))
	}
	if err := unix.Close(r.fd); err != nil {
		errs = append(errs, fmt.Errorf("close fd %d: %w", r.fd, err))
	}
	log.Debug("released shared buffer", "fd", r.fd, "size", r.size)

	r.data = nil
	r.fd = -1
	return errors.Join(errs...)
}

// OpenEmpty returns a throwaway read-only descriptor for the no-keymap format.
// The caller closes it after sending.
func OpenEmpty() (*os.File, error) {
	f, err := os.Open(os.DevNull)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	return f, nil
}
