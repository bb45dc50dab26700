package vmsys

import (
	"os"

	"github.com/chlang-rt/chvm/vm"
)

// fs.go wraps the subset of package os that spec.md §4.10 exposes as
// filesystem syscalls. Failures are reported through errno/errstr rather
// than a fatal VMError, matching the teacher's convention that resource
// failures are recoverable program state, not interpreter faults.

func fsHandlers() map[uint16]handlerFunc {
	return map[uint16]handlerFunc{
		MKDIR: func(s *Syscalls, stack *vm.OperandStack) error {
			mode, err := popInt(stack)
			if err != nil {
				return err
			}
			path, err := popString(stack)
			if err != nil {
				return err
			}
			ok := checkErr(s, os.Mkdir(path, os.FileMode(mode)))
			pushBool(stack, ok)
			return nil
		},
		RMDIR: func(s *Syscalls, stack *vm.OperandStack) error {
			path, err := popString(stack)
			if err != nil {
				return err
			}
			ok := checkErr(s, os.Remove(path))
			pushBool(stack, ok)
			return nil
		},
		CHDIR: func(s *Syscalls, stack *vm.OperandStack) error {
			path, err := popString(stack)
			if err != nil {
				return err
			}
			ok := checkErr(s, os.Chdir(path))
			pushBool(stack, ok)
			return nil
		},
		GETCWD: func(s *Syscalls, stack *vm.OperandStack) error {
			cwd, err := os.Getwd()
			if !checkErr(s, err) {
				pushString(stack, "")
				return nil
			}
			pushString(stack, cwd)
			return nil
		},
		CHMOD: func(s *Syscalls, stack *vm.OperandStack) error {
			mode, err := popInt(stack)
			if err != nil {
				return err
			}
			path, err := popString(stack)
			if err != nil {
				return err
			}
			ok := checkErr(s, os.Chmod(path, os.FileMode(mode)))
			pushBool(stack, ok)
			return nil
		},
		FCHMOD: func(s *Syscalls, stack *vm.OperandStack) error {
			mode, err := popInt(stack)
			if err != nil {
				return err
			}
			fd, err := popInt(stack)
			if err != nil {
				return err
			}
			f, ferr := s.fds.file(int(fd))
			if !checkErr(s, ferr) {
				pushBool(stack, false)
				return nil
			}
			ok := checkErr(s, f.Chmod(os.FileMode(mode)))
			pushBool(stack, ok)
			return nil
		},
		UNLINK: func(s *Syscalls, stack *vm.OperandStack) error {
			path, err := popString(stack)
			if err != nil {
				return err
			}
			ok := checkErr(s, os.Remove(path))
			pushBool(stack, ok)
			return nil
		},
		LINK: func(s *Syscalls, stack *vm.OperandStack) error {
			newname, err := popString(stack)
			if err != nil {
				return err
			}
			oldname, err := popString(stack)
			if err != nil {
				return err
			}
			ok := checkErr(s, os.Link(oldname, newname))
			pushBool(stack, ok)
			return nil
		},
		SYMLINK: func(s *Syscalls, stack *vm.OperandStack) error {
			newname, err := popString(stack)
			if err != nil {
				return err
			}
			oldname, err := popString(stack)
			if err != nil {
				return err
			}
			ok := checkErr(s, os.Symlink(oldname, newname))
			pushBool(stack, ok)
			return nil
		},
	}
}

// checkErr records err (if any) into the process-wide errno/errstr pair and
// reports whether the operation succeeded.
func checkErr(s *Syscalls, err error) bool {
	if err == nil {
		s.setErrno(0, "")
		return true
	}
	s.setErrno(1, err.Error())
	return false
}
