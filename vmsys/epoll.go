package vmsys

import (
	"sync"
	"time"

	"github.com/chlang-rt/chvm/vm"
)

// Readiness event bits, matching the EPOLLIN/EPOLLOUT subset spec.md §4.10
// names.
const (
	EpollIn  uint32 = 1
	EpollOut uint32 = 2
)

const (
	epollCtlAdd = 1
	epollCtlMod = 2
	epollCtlDel = 3
)

// epollInstance is one EPOLL_CREATE handle's interest set: the fds it
// watches and the events it watches them for.
type epollInstance struct {
	mu  sync.Mutex
	fds map[int]uint32
}

// epollRegistry is the hand-rolled readiness multiplexer spec.md §1
// describes: it has no kernel epoll(7) behind it, just a poll loop over the
// registered fds' readability, probed through FDTable. Grounded on GVM's
// devices.go registry shape.
type epollRegistry struct {
	mu        sync.Mutex
	instances map[int]*epollInstance
	next      int
}

func newEpollRegistry() *epollRegistry {
	return &epollRegistry{instances: make(map[int]*epollInstance)}
}

func (r *epollRegistry) create() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	handle := r.next
	r.next++
	r.instances[handle] = &epollInstance{fds: make(map[int]uint32)}
	return handle
}

func (r *epollRegistry) instance(handle int) (*epollInstance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[handle]
	return inst, ok
}

func (inst *epollInstance) ctl(op int, fd int, events uint32) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	switch op {
	case epollCtlAdd, epollCtlMod:
		inst.fds[fd] = events
	case epollCtlDel:
		delete(inst.fds, fd)
	}
}

// probeReadable makes a best-effort, non-consuming readiness check: it sets
// a near-zero read deadline and restores the file's original (blocking)
// deadline afterward. Files that don't support deadlines (most regular
// files) are treated as always ready, matching POSIX epoll's behavior for
// regular files.
func probeReadable(fds *FDTable, fd int) bool {
	f, err := fds.file(fd)
	if err != nil {
		return false
	}
	if derr := f.SetReadDeadline(time.Now()); derr != nil {
		return true
	}
	defer f.SetReadDeadline(time.Time{})
	var buf [1]byte
	n, rerr := f.Read(buf[:0])
	_ = n
	return rerr == nil
}

// epollEvent is one ready (fd, events) pair as returned by wait.
type epollEvent struct {
	fd     int
	events uint32
}

// wait polls the instance's registered fds until at least one is ready or
// timeoutMs elapses, returning at most max ready (fd, events) pairs
// (spec.md §4.10/§8: "EPOLL_WAIT returns at most max events").
func (r *epollRegistry) wait(handle int, max int, timeoutMs int64, fds *FDTable) []epollEvent {
	inst, ok := r.instance(handle)
	if !ok {
		return nil
	}
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	for {
		inst.mu.Lock()
		watched := make(map[int]uint32, len(inst.fds))
		for fd, ev := range inst.fds {
			watched[fd] = ev
		}
		inst.mu.Unlock()

		var ready []epollEvent
		for fd, ev := range watched {
			if ev&EpollIn != 0 && probeReadable(fds, fd) {
				ready = append(ready, epollEvent{fd: fd, events: EpollIn})
				if max > 0 && len(ready) >= max {
					break
				}
			}
		}
		if len(ready) > 0 {
			return ready
		}
		if timeoutMs >= 0 && time.Now().After(deadline) {
			return nil
		}
		if timeoutMs == 0 {
			return nil
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func epollHandlers() map[uint16]handlerFunc {
	return map[uint16]handlerFunc{
		EPOLL_CREATE: func(s *Syscalls, stack *vm.OperandStack) error {
			pushInt(stack, int64(s.epoll.create()))
			return nil
		},
		EPOLL_CTL: func(s *Syscalls, stack *vm.OperandStack) error {
			events, err := popInt(stack)
			if err != nil {
				return err
			}
			fd, err := popInt(stack)
			if err != nil {
				return err
			}
			op, err := popInt(stack)
			if err != nil {
				return err
			}
			handle, err := popInt(stack)
			if err != nil {
				return err
			}
			inst, ok := s.epoll.instance(int(handle))
			if !ok {
				pushBool(stack, false)
				return nil
			}
			inst.ctl(int(op), int(fd), uint32(events))
			pushBool(stack, true)
			return nil
		},
		EPOLL_WAIT: func(s *Syscalls, stack *vm.OperandStack) error {
			timeoutMs, err := popInt(stack)
			if err != nil {
				return err
			}
			max, err := popInt(stack)
			if err != nil {
				return err
			}
			handle, err := popInt(stack)
			if err != nil {
				return err
			}
			ready := s.epoll.wait(int(handle), int(max), timeoutMs, s.fds)
			pushInt(stack, int64(len(ready)))
			for _, ev := range ready {
				pushInt(stack, int64(ev.fd))
				pushInt(stack, int64(ev.events))
			}
			return nil
		},
	}
}
