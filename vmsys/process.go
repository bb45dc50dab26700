package vmsys

import (
	"crypto/rand"
	"runtime"
	"time"

	"github.com/chlang-rt/chvm/vm"
)

func processHandlers() map[uint16]handlerFunc {
	return map[uint16]handlerFunc{
		SLEEP: func(s *Syscalls, stack *vm.OperandStack) error {
			ms, err := popInt(stack)
			if err != nil {
				return err
			}
			time.Sleep(time.Duration(ms) * time.Millisecond)
			return nil
		},
		ERRNO: func(s *Syscalls, stack *vm.OperandStack) error {
			s.mu.Lock()
			code := s.errno
			s.mu.Unlock()
			pushInt(stack, int64(code))
			return nil
		},
		ERRSTR: func(s *Syscalls, stack *vm.OperandStack) error {
			s.mu.Lock()
			msg := s.errstr
			s.mu.Unlock()
			pushString(stack, msg)
			return nil
		},
		MEMINFO: func(s *Syscalls, stack *vm.OperandStack) error {
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			pushInt(stack, int64(m.Alloc))
			pushInt(stack, int64(m.Sys))
			return nil
		},
		RANDOM_BYTES: func(s *Syscalls, stack *vm.OperandStack) error {
			count, err := popInt(stack)
			if err != nil {
				return err
			}
			buf := make([]byte, count)
			if _, rerr := rand.Read(buf); !checkErr(s, rerr) {
				pushBytes(stack, nil)
				return nil
			}
			pushBytes(stack, buf)
			return nil
		},
		NCPU: func(s *Syscalls, stack *vm.OperandStack) error {
			pushInt(stack, int64(runtime.NumCPU()))
			return nil
		},
	}
}
