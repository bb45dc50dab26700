package vmsys

import (
	"io"
	"os"
	"sync"

	"github.com/chlang-rt/chvm/vm"
)

// FDTable is a process-wide file descriptor registry, fd 0/1/2 pre-bound to
// stdin/stdout/stderr (spec.md §3). Grounded on GVM's devices.go resource
// table: a monotonically increasing int key into a guarded map, here
// holding *os.File instead of a device struct.
type FDTable struct {
	mu    sync.Mutex
	files map[int]*os.File
	next  int
}

func newFDTable() *FDTable {
	t := &FDTable{files: make(map[int]*os.File), next: 3}
	t.files[0] = os.Stdin
	t.files[1] = os.Stdout
	t.files[2] = os.Stderr
	return t
}

func (t *FDTable) file(fd int) (*os.File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.files[fd]
	if !ok {
		return nil, os.ErrClosed
	}
	return f, nil
}

func (t *FDTable) bind(f *os.File) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	fd := t.next
	t.next++
	t.files[fd] = f
	return fd
}

func (t *FDTable) release(fd int) (*os.File, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.files[fd]
	if ok {
		delete(t.files, fd)
	}
	return f, ok
}

func (t *FDTable) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for fd, f := range t.files {
		if fd > 2 {
			f.Close()
		}
	}
}

// openFlags mirrors the small subset of POSIX open(2) flags spec.md §4.10
// exposes: 0=read-only, 1=write-create-truncate, 2=append-create.
func openFlags(mode int64) (int, os.FileMode) {
	switch mode {
	case 1:
		return os.O_WRONLY | os.O_CREATE | os.O_TRUNC, 0o644
	case 2:
		return os.O_WRONLY | os.O_CREATE | os.O_APPEND, 0o644
	default:
		return os.O_RDONLY, 0
	}
}

func fdHandlers() map[uint16]handlerFunc {
	return map[uint16]handlerFunc{
		OPEN: func(s *Syscalls, stack *vm.OperandStack) error {
			mode, err := popInt(stack)
			if err != nil {
				return err
			}
			path, err := popString(stack)
			if err != nil {
				return err
			}
			flags, perm := openFlags(mode)
			f, oerr := os.OpenFile(path, flags, perm)
			if !checkErr(s, oerr) {
				pushInt(stack, -1)
				return nil
			}
			pushInt(stack, int64(s.fds.bind(f)))
			return nil
		},
		CLOSE: func(s *Syscalls, stack *vm.OperandStack) error {
			fd, err := popInt(stack)
			if err != nil {
				return err
			}
			f, ok := s.fds.release(int(fd))
			if !ok {
				pushBool(stack, false)
				return nil
			}
			pushBool(stack, checkErr(s, f.Close()))
			return nil
		},
		READ: func(s *Syscalls, stack *vm.OperandStack) error {
			count, err := popInt(stack)
			if err != nil {
				return err
			}
			fd, err := popInt(stack)
			if err != nil {
				return err
			}
			f, ferr := s.fds.file(int(fd))
			if !checkErr(s, ferr) {
				pushBytes(stack, nil)
				pushInt(stack, -1)
				return nil
			}
			buf := make([]byte, count)
			n, rerr := f.Read(buf)
			if rerr != nil && rerr != io.EOF {
				checkErr(s, rerr)
				pushBytes(stack, nil)
				pushInt(stack, -1)
				return nil
			}
			checkErr(s, nil)
			pushBytes(stack, buf[:n])
			pushInt(stack, int64(n))
			return nil
		},
		WRITE: func(s *Syscalls, stack *vm.OperandStack) error {
			data, err := popBytes(stack)
			if err != nil {
				return err
			}
			fd, err := popInt(stack)
			if err != nil {
				return err
			}
			f, ferr := s.fds.file(int(fd))
			if !checkErr(s, ferr) {
				pushInt(stack, -1)
				return nil
			}
			n, werr := f.Write(data)
			checkErr(s, werr)
			pushInt(stack, int64(n))
			return nil
		},
		DUP: func(s *Syscalls, stack *vm.OperandStack) error {
			fd, err := popInt(stack)
			if err != nil {
				return err
			}
			f, ferr := s.fds.file(int(fd))
			if !checkErr(s, ferr) {
				pushInt(stack, -1)
				return nil
			}
			dup, derr := os.Open(f.Name())
			if !checkErr(s, derr) {
				pushInt(stack, -1)
				return nil
			}
			pushInt(stack, int64(s.fds.bind(dup)))
			return nil
		},
		PIPE: func(s *Syscalls, stack *vm.OperandStack) error {
			r, w, perr := os.Pipe()
			if !checkErr(s, perr) {
				pushInt(stack, -1)
				pushInt(stack, -1)
				return nil
			}
			pushInt(stack, int64(s.fds.bind(r)))
			pushInt(stack, int64(s.fds.bind(w)))
			return nil
		},
		STDOUT_WRITE: func(s *Syscalls, stack *vm.OperandStack) error {
			return writeFixed(s, stack, os.Stdout)
		},
		STDERR_WRITE: func(s *Syscalls, stack *vm.OperandStack) error {
			return writeFixed(s, stack, os.Stderr)
		},
		STDIN_READ: func(s *Syscalls, stack *vm.OperandStack) error {
			count, err := popInt(stack)
			if err != nil {
				return err
			}
			buf := make([]byte, count)
			n, rerr := os.Stdin.Read(buf)
			if rerr != nil && rerr != io.EOF {
				checkErr(s, rerr)
				pushBytes(stack, nil)
				pushInt(stack, -1)
				return nil
			}
			checkErr(s, nil)
			pushBytes(stack, buf[:n])
			pushInt(stack, int64(n))
			return nil
		},
	}
}

func writeFixed(s *Syscalls, stack *vm.OperandStack, f *os.File) error {
	data, err := popBytes(stack)
	if err != nil {
		return err
	}
	n, werr := f.Write(data)
	checkErr(s, werr)
	pushInt(stack, int64(n))
	return nil
}
