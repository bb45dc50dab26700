package vmsys

import (
	"sync"
	"time"

	"github.com/chlang-rt/chvm/vm"
)

// reentrantMutex emulates POSIX PTHREAD_MUTEX_RECURSIVE semantics on top of
// sync.Mutex, which is not itself re-entrant (spec.md §9 open question,
// resolved: the registry counts recursive locks explicitly rather than
// relying on any host mutex's native behavior). The VM has a single
// dispatch goroutine per run, so "the same owner re-locking" reduces to
// "locked more times than it's been unlocked" without needing actual
// goroutine-identity tracking.
type reentrantMutex struct {
	mu    sync.Mutex
	held  sync.Mutex
	count int
}

func (m *reentrantMutex) lock() {
	m.mu.Lock()
	if m.count == 0 {
		m.mu.Unlock()
		m.held.Lock()
		m.mu.Lock()
	}
	m.count++
	m.mu.Unlock()
}

// tryLock reports busy (false) on a re-entrant acquisition by the same
// owner, unlike lock: spec.md §4.10 calls this out explicitly ("MUTEX_TRYLOCK
// explicitly reports busy on reentrant acquisition") as the one place the
// two primitives diverge.
func (m *reentrantMutex) tryLock() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count > 0 {
		return false
	}
	if !m.held.TryLock() {
		return false
	}
	m.count++
	return true
}

func (m *reentrantMutex) unlock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count == 0 {
		return
	}
	m.count--
	if m.count == 0 {
		m.held.Unlock()
	}
}

type mutexRegistry struct {
	mu      sync.Mutex
	mutexes map[int]*reentrantMutex
	next    int
}

func newMutexRegistry() *mutexRegistry {
	return &mutexRegistry{mutexes: make(map[int]*reentrantMutex)}
}

func (r *mutexRegistry) create() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.next
	r.next++
	r.mutexes[h] = &reentrantMutex{}
	return h
}

func (r *mutexRegistry) get(h int) (*reentrantMutex, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.mutexes[h]
	return m, ok
}

func (r *mutexRegistry) destroy(h int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.mutexes, h)
}

// condVar is a broadcast-capable condition variable built on channels so
// WAIT can select on signal/broadcast without holding any registry lock
// (spec.md §4.10: COND_WAIT atomically releases the paired mutex while
// blocked).
type condVar struct {
	mu      sync.Mutex
	waiters []chan struct{}
}

// wait releases pairedMutex, blocks until signalled or timeoutMs elapses (a
// negative timeoutMs blocks indefinitely), reacquires pairedMutex, and
// reports the reason: 0 on signal, 1 on timeout (spec.md §4.10's
// `reason∈{0,1,−1}`; −1/Interrupted has no source in this VM, which has no
// cancellation primitive of its own).
func (c *condVar) wait(pairedMutex *reentrantMutex, timeoutMs int64) int64 {
	c.mu.Lock()
	ch := make(chan struct{})
	c.waiters = append(c.waiters, ch)
	c.mu.Unlock()

	pairedMutex.unlock()
	defer pairedMutex.lock()

	if timeoutMs < 0 {
		<-ch
		return 0
	}
	select {
	case <-ch:
		return 0
	case <-time.After(time.Duration(timeoutMs) * time.Millisecond):
		if c.removeWaiter(ch) {
			return 1
		}
		// Lost the race with a concurrent signal/broadcast: the channel was
		// already closed for us.
		return 0
	}
}

func (c *condVar) removeWaiter(ch chan struct{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, w := range c.waiters {
		if w == ch {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return true
		}
	}
	return false
}

func (c *condVar) signal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.waiters) == 0 {
		return
	}
	close(c.waiters[0])
	c.waiters = c.waiters[1:]
}

func (c *condVar) broadcast() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.waiters {
		close(ch)
	}
	c.waiters = nil
}

type condRegistry struct {
	mu    sync.Mutex
	conds map[int]*condVar
	next  int
}

func newCondRegistry() *condRegistry {
	return &condRegistry{conds: make(map[int]*condVar)}
}

func (r *condRegistry) create() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.next
	r.next++
	r.conds[h] = &condVar{}
	return h
}

func (r *condRegistry) get(h int) (*condVar, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conds[h]
	return c, ok
}

func (r *condRegistry) destroy(h int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conds, h)
}

// semaphore is a classic counting semaphore over a buffered channel.
type semaphore chan struct{}

type semRegistry struct {
	mu   sync.Mutex
	sems map[int]semaphore
	next int
}

func newSemRegistry() *semRegistry {
	return &semRegistry{sems: make(map[int]semaphore)}
}

func (r *semRegistry) create(initial int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.next
	r.next++
	sem := make(semaphore, 1<<20)
	for i := 0; i < initial; i++ {
		sem <- struct{}{}
	}
	r.sems[h] = sem
	return h
}

func (r *semRegistry) get(h int) (semaphore, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sems[h]
	return s, ok
}

func (r *semRegistry) destroy(h int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sems, h)
}

type rwlockRegistry struct {
	mu      sync.Mutex
	rwlocks map[int]*sync.RWMutex
	next    int
}

func newRwlockRegistry() *rwlockRegistry {
	return &rwlockRegistry{rwlocks: make(map[int]*sync.RWMutex)}
}

func (r *rwlockRegistry) create() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.next
	r.next++
	r.rwlocks[h] = &sync.RWMutex{}
	return h
}

func (r *rwlockRegistry) get(h int) (*sync.RWMutex, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.rwlocks[h]
	return l, ok
}

func (r *rwlockRegistry) destroy(h int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rwlocks, h)
}

func syncHandlers() map[uint16]handlerFunc {
	return map[uint16]handlerFunc{
		MUTEX_CREATE: func(s *Syscalls, stack *vm.OperandStack) error {
			pushInt(stack, int64(s.mutexes.create()))
			return nil
		},
		MUTEX_LOCK: func(s *Syscalls, stack *vm.OperandStack) error {
			h, err := popInt(stack)
			if err != nil {
				return err
			}
			m, ok := s.mutexes.get(int(h))
			if !ok {
				return &vm.VMError{Kind: vm.ResourceError, Message: "unknown mutex handle"}
			}
			m.lock()
			return nil
		},
		MUTEX_TRYLOCK: func(s *Syscalls, stack *vm.OperandStack) error {
			h, err := popInt(stack)
			if err != nil {
				return err
			}
			m, ok := s.mutexes.get(int(h))
			if !ok {
				return &vm.VMError{Kind: vm.ResourceError, Message: "unknown mutex handle"}
			}
			pushBool(stack, m.tryLock())
			return nil
		},
		MUTEX_UNLOCK: func(s *Syscalls, stack *vm.OperandStack) error {
			h, err := popInt(stack)
			if err != nil {
				return err
			}
			m, ok := s.mutexes.get(int(h))
			if !ok {
				return &vm.VMError{Kind: vm.ResourceError, Message: "unknown mutex handle"}
			}
			m.unlock()
			return nil
		},
		MUTEX_DESTROY: func(s *Syscalls, stack *vm.OperandStack) error {
			h, err := popInt(stack)
			if err != nil {
				return err
			}
			s.mutexes.destroy(int(h))
			return nil
		},
		COND_CREATE: func(s *Syscalls, stack *vm.OperandStack) error {
			pushInt(stack, int64(s.conds.create()))
			return nil
		},
		COND_WAIT: func(s *Syscalls, stack *vm.OperandStack) error {
			timeoutMs, err := popInt(stack)
			if err != nil {
				return err
			}
			mutexHandle, err := popInt(stack)
			if err != nil {
				return err
			}
			condHandle, err := popInt(stack)
			if err != nil {
				return err
			}
			c, ok := s.conds.get(int(condHandle))
			if !ok {
				return &vm.VMError{Kind: vm.ResourceError, Message: "unknown condition variable handle"}
			}
			m, ok := s.mutexes.get(int(mutexHandle))
			if !ok {
				return &vm.VMError{Kind: vm.ResourceError, Message: "unknown mutex handle"}
			}
			pushInt(stack, c.wait(m, timeoutMs))
			return nil
		},
		COND_SIGNAL: func(s *Syscalls, stack *vm.OperandStack) error {
			h, err := popInt(stack)
			if err != nil {
				return err
			}
			c, ok := s.conds.get(int(h))
			if !ok {
				return &vm.VMError{Kind: vm.ResourceError, Message: "unknown condition variable handle"}
			}
			c.signal()
			return nil
		},
		COND_BROADCAST: func(s *Syscalls, stack *vm.OperandStack) error {
			h, err := popInt(stack)
			if err != nil {
				return err
			}
			c, ok := s.conds.get(int(h))
			if !ok {
				return &vm.VMError{Kind: vm.ResourceError, Message: "unknown condition variable handle"}
			}
			c.broadcast()
			return nil
		},
		COND_DESTROY: func(s *Syscalls, stack *vm.OperandStack) error {
			h, err := popInt(stack)
			if err != nil {
				return err
			}
			s.conds.destroy(int(h))
			return nil
		},
		SEM_CREATE: func(s *Syscalls, stack *vm.OperandStack) error {
			initial, err := popInt(stack)
			if err != nil {
				return err
			}
			pushInt(stack, int64(s.sems.create(int(initial))))
			return nil
		},
		SEM_WAIT: func(s *Syscalls, stack *vm.OperandStack) error {
			h, err := popInt(stack)
			if err != nil {
				return err
			}
			sem, ok := s.sems.get(int(h))
			if !ok {
				return &vm.VMError{Kind: vm.ResourceError, Message: "unknown semaphore handle"}
			}
			<-sem
			return nil
		},
		SEM_POST: func(s *Syscalls, stack *vm.OperandStack) error {
			h, err := popInt(stack)
			if err != nil {
				return err
			}
			sem, ok := s.sems.get(int(h))
			if !ok {
				return &vm.VMError{Kind: vm.ResourceError, Message: "unknown semaphore handle"}
			}
			sem <- struct{}{}
			return nil
		},
		SEM_DESTROY: func(s *Syscalls, stack *vm.OperandStack) error {
			h, err := popInt(stack)
			if err != nil {
				return err
			}
			s.sems.destroy(int(h))
			return nil
		},
		RWLOCK_CREATE: func(s *Syscalls, stack *vm.OperandStack) error {
			pushInt(stack, int64(s.rwlocks.create()))
			return nil
		},
		RWLOCK_RLOCK: func(s *Syscalls, stack *vm.OperandStack) error {
			return withRwlock(s, stack, (*sync.RWMutex).RLock)
		},
		RWLOCK_RUNLOCK: func(s *Syscalls, stack *vm.OperandStack) error {
			return withRwlock(s, stack, (*sync.RWMutex).RUnlock)
		},
		RWLOCK_WLOCK: func(s *Syscalls, stack *vm.OperandStack) error {
			return withRwlock(s, stack, (*sync.RWMutex).Lock)
		},
		RWLOCK_WUNLOCK: func(s *Syscalls, stack *vm.OperandStack) error {
			return withRwlock(s, stack, (*sync.RWMutex).Unlock)
		},
		RWLOCK_DESTROY: func(s *Syscalls, stack *vm.OperandStack) error {
			h, err := popInt(stack)
			if err != nil {
				return err
			}
			s.rwlocks.destroy(int(h))
			return nil
		},
	}
}

func withRwlock(s *Syscalls, stack *vm.OperandStack, op func(*sync.RWMutex)) error {
	h, err := popInt(stack)
	if err != nil {
		return err
	}
	l, ok := s.rwlocks.get(int(h))
	if !ok {
		return &vm.VMError{Kind: vm.ResourceError, Message: "unknown rwlock handle"}
	}
	op(l)
	return nil
}
