package vmsys

import (
	"path/filepath"
	"testing"

	"github.com/chlang-rt/chvm/vm"
)

func TestOpenWriteCloseThenReadBack(t *testing.T) {
	s := New()
	defer s.Close()
	path := filepath.Join(t.TempDir(), "greeting.txt")

	openStack := vm.NewOperandStack(4)
	pushString(openStack, path)
	pushInt(openStack, 1) // write-create-truncate
	if err := s.Dispatch(OPEN, openStack); err != nil {
		t.Fatalf("OPEN (write) failed: %v", err)
	}
	wfd, err := popInt(openStack)
	if err != nil || wfd < 0 {
		t.Fatalf("OPEN (write) returned fd=%d, err=%v", wfd, err)
	}

	writeStack := vm.NewOperandStack(4)
	pushInt(writeStack, wfd)
	pushBytes(writeStack, []byte("hello"))
	if err := s.Dispatch(WRITE, writeStack); err != nil {
		t.Fatalf("WRITE failed: %v", err)
	}
	n, _ := popInt(writeStack)
	if n != 5 {
		t.Fatalf("WRITE returned %d, want 5", n)
	}

	closeStack := vm.NewOperandStack(4)
	pushInt(closeStack, wfd)
	if err := s.Dispatch(CLOSE, closeStack); err != nil {
		t.Fatalf("CLOSE failed: %v", err)
	}

	openReadStack := vm.NewOperandStack(4)
	pushString(openReadStack, path)
	pushInt(openReadStack, 0) // read-only
	if err := s.Dispatch(OPEN, openReadStack); err != nil {
		t.Fatalf("OPEN (read) failed: %v", err)
	}
	rfd, _ := popInt(openReadStack)

	readStack := vm.NewOperandStack(4)
	pushInt(readStack, rfd)
	pushInt(readStack, 16)
	if err := s.Dispatch(READ, readStack); err != nil {
		t.Fatalf("READ failed: %v", err)
	}
	readN, _ := popInt(readStack)
	data, _ := popBytes(readStack)
	if readN != 5 || string(data) != "hello" {
		t.Errorf("READ = %d bytes %q, want 5 bytes \"hello\"", readN, data)
	}
}

func TestOpenNonexistentFileForReadFails(t *testing.T) {
	s := New()
	defer s.Close()
	stack := vm.NewOperandStack(4)
	pushString(stack, filepath.Join(t.TempDir(), "missing.txt"))
	pushInt(stack, 0)
	if err := s.Dispatch(OPEN, stack); err != nil {
		t.Fatalf("OPEN failed: %v", err)
	}
	fd, _ := popInt(stack)
	if fd != -1 {
		t.Errorf("OPEN of a missing file = fd %d, want -1", fd)
	}
}

func TestStandardFileDescriptorsArePreBound(t *testing.T) {
	s := New()
	defer s.Close()
	for _, fd := range []int{0, 1, 2} {
		if _, err := s.fds.file(fd); err != nil {
			t.Errorf("fd %d should be pre-bound: %v", fd, err)
		}
	}
}

func TestPipeProducesTwoDistinctFDs(t *testing.T) {
	s := New()
	defer s.Close()
	stack := vm.NewOperandStack(4)
	if err := s.Dispatch(PIPE, stack); err != nil {
		t.Fatalf("PIPE failed: %v", err)
	}
	wfd, _ := popInt(stack)
	rfd, _ := popInt(stack)
	if rfd == wfd {
		t.Fatalf("PIPE returned the same fd twice: %d", rfd)
	}

	writeStack := vm.NewOperandStack(4)
	pushInt(writeStack, wfd)
	pushBytes(writeStack, []byte("ping"))
	if err := s.Dispatch(WRITE, writeStack); err != nil {
		t.Fatalf("WRITE to pipe failed: %v", err)
	}

	readStack := vm.NewOperandStack(4)
	pushInt(readStack, rfd)
	pushInt(readStack, 4)
	if err := s.Dispatch(READ, readStack); err != nil {
		t.Fatalf("READ from pipe failed: %v", err)
	}
	n, _ := popInt(readStack)
	data, _ := popBytes(readStack)
	if n != 4 || string(data) != "ping" {
		t.Errorf("pipe round trip = %d bytes %q, want 4 bytes \"ping\"", n, data)
	}
}
