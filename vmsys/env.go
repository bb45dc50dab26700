package vmsys

import (
	"os"
	"sync"

	"github.com/chlang-rt/chvm/vm"
)

// envRegistry overlays the host process's environment: SETENV/UNSETENV
// mutate an in-process map rather than the real os.Environ(), so two
// independent VM instances in the same test binary never clobber each
// other's environment (spec.md §9 redesign flag). GETENV falls back to the
// host environment for a name never overlaid, so programs still observe
// ambient configuration like PATH.
type envRegistry struct {
	mu    sync.Mutex
	set   map[string]string
	unset map[string]bool
}

func newEnvRegistry() *envRegistry {
	return &envRegistry{set: make(map[string]string), unset: make(map[string]bool)}
}

func (r *envRegistry) get(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unset[name] {
		return "", false
	}
	if v, ok := r.set[name]; ok {
		return v, true
	}
	return os.LookupEnv(name)
}

func (r *envRegistry) setVar(name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.unset, name)
	r.set[name] = value
}

func (r *envRegistry) unsetVar(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.set, name)
	r.unset[name] = true
}

func envHandlers() map[uint16]handlerFunc {
	return map[uint16]handlerFunc{
		GETENV: func(s *Syscalls, stack *vm.OperandStack) error {
			name, err := popString(stack)
			if err != nil {
				return err
			}
			value, ok := s.env.get(name)
			pushBool(stack, ok)
			pushString(stack, value)
			return nil
		},
		SETENV: func(s *Syscalls, stack *vm.OperandStack) error {
			value, err := popString(stack)
			if err != nil {
				return err
			}
			name, err := popString(stack)
			if err != nil {
				return err
			}
			s.env.setVar(name, value)
			return nil
		},
		UNSETENV: func(s *Syscalls, stack *vm.OperandStack) error {
			name, err := popString(stack)
			if err != nil {
				return err
			}
			s.env.unsetVar(name)
			return nil
		},
	}
}
