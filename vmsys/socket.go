package vmsys

import (
	"net"
	"strconv"
	"sync"

	"github.com/chlang-rt/chvm/vm"
)

// socketRegistry holds both listeners (post-LISTEN) and connections
// (post-ACCEPT/CONNECT) under one handle space, over net.Listener/net.Conn
// rather than raw syscall-level sockets (spec.md §1: "net is a substitute
// for raw POSIX socket syscalls"). Grounded on GVM's devices.go registry
// shape, generalized to two resource kinds sharing one handle counter.
type socketRegistry struct {
	mu        sync.Mutex
	listeners map[int]net.Listener
	conns     map[int]net.Conn
	next      int
}

func newSocketRegistry() *socketRegistry {
	return &socketRegistry{
		listeners: make(map[int]net.Listener),
		conns:     make(map[int]net.Conn),
	}
}

func (r *socketRegistry) bindListener(l net.Listener) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.next
	r.next++
	r.listeners[h] = l
	return h
}

func (r *socketRegistry) bindConn(c net.Conn) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.next
	r.next++
	r.conns[h] = c
	return h
}

func (r *socketRegistry) listener(h int) (net.Listener, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.listeners[h]
	return l, ok
}

func (r *socketRegistry) conn(h int) (net.Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[h]
	return c, ok
}

func (r *socketRegistry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.listeners {
		l.Close()
	}
	for _, c := range r.conns {
		c.Close()
	}
}

// SOCKET itself allocates no host resource yet (net has no separate
// socket(2)-style pre-bind step); it pushes the placeholder handle -1 and
// reserves nothing. BIND and CONNECT each return a fresh handle of their
// own, so the POSIX socket()-then-bind()/connect() call sequence the opcode
// names mirror still works.
func socketHandlers() map[uint16]handlerFunc {
	return map[uint16]handlerFunc{
		SOCKET: func(s *Syscalls, stack *vm.OperandStack) error {
			// family/type/protocol operands are accepted and ignored: every
			// socket in this layer is TCP over whatever net.Dial/net.Listen
			// resolves, since the VM only ever sees a byte stream.
			if _, err := popInt(stack); err != nil {
				return err
			}
			if _, err := popInt(stack); err != nil {
				return err
			}
			if _, err := popInt(stack); err != nil {
				return err
			}
			pushInt(stack, -1) // placeholder handle; BIND/CONNECT replace it
			return nil
		},
		BIND: func(s *Syscalls, stack *vm.OperandStack) error {
			// BIND folds bind()+listen() into one step: pop address, start
			// listening immediately, and return a fresh listener handle
			// (the placeholder SOCKET handle is discarded).
			addr, err := popString(stack)
			if err != nil {
				return err
			}
			if _, err := popInt(stack); err != nil {
				return err
			}
			l, lerr := net.Listen("tcp", addr)
			if !checkErr(s, lerr) {
				pushInt(stack, -1)
				return nil
			}
			pushInt(stack, int64(s.sockets.bindListener(l)))
			return nil
		},
		LISTEN: func(s *Syscalls, stack *vm.OperandStack) error {
			// Backlog is accepted for interface parity but net.Listen
			// already began listening at BIND time.
			if _, err := popInt(stack); err != nil {
				return err
			}
			handle, err := popInt(stack)
			if err != nil {
				return err
			}
			_, ok := s.sockets.listener(int(handle))
			pushBool(stack, ok)
			return nil
		},
		ACCEPT: func(s *Syscalls, stack *vm.OperandStack) error {
			// ACCEPT fd -> (cfd, addr, port): pushed in that order, so the
			// caller pops port, then addr, then cfd.
			handle, err := popInt(stack)
			if err != nil {
				return err
			}
			l, ok := s.sockets.listener(int(handle))
			if !ok {
				pushInt(stack, -1)
				pushString(stack, "")
				pushInt(stack, -1)
				return nil
			}
			conn, aerr := l.Accept()
			if !checkErr(s, aerr) {
				pushInt(stack, -1)
				pushString(stack, "")
				pushInt(stack, -1)
				return nil
			}
			cfd := s.sockets.bindConn(conn)
			host, port := splitHostPort(conn.RemoteAddr())
			pushInt(stack, int64(cfd))
			pushString(stack, host)
			pushInt(stack, int64(port))
			return nil
		},
		CONNECT: func(s *Syscalls, stack *vm.OperandStack) error {
			addr, err := popString(stack)
			if err != nil {
				return err
			}
			if _, err := popInt(stack); err != nil {
				return err
			}
			conn, derr := net.Dial("tcp", addr)
			if !checkErr(s, derr) {
				pushInt(stack, -1)
				return nil
			}
			pushInt(stack, int64(s.sockets.bindConn(conn)))
			return nil
		},
		SEND: func(s *Syscalls, stack *vm.OperandStack) error {
			return sendOn(s, stack)
		},
		SENDTO: func(s *Syscalls, stack *vm.OperandStack) error {
			return sendOn(s, stack)
		},
		RECV: func(s *Syscalls, stack *vm.OperandStack) error {
			return recvFrom(s, stack)
		},
		RECVFROM: func(s *Syscalls, stack *vm.OperandStack) error {
			return recvFrom(s, stack)
		},
		SHUTDOWN: func(s *Syscalls, stack *vm.OperandStack) error {
			// SHUTDOWN fd how, how in {0=RD, 1=WR, 2=RDWR} (spec.md §4.10).
			// Pushes a bool: true (I 1) on success, false for an unknown
			// handle or a failed close.
			how, err := popInt(stack)
			if err != nil {
				return err
			}
			handle, err := popInt(stack)
			if err != nil {
				return err
			}
			conn, ok := s.sockets.conn(int(handle))
			if !ok {
				pushBool(stack, false)
				return nil
			}
			pushBool(stack, shutdownConn(s, conn, int(how)))
			return nil
		},
	}
}

const (
	shutdownRD = 0
	shutdownWR = 1
)

// shutdownConn applies a half- or full-close depending on how. Half-closes
// are only meaningful on a *net.TCPConn; any other net.Conn (or an
// unrecognized how) falls back to a full Close, since net has no generic
// half-close primitive.
func shutdownConn(s *Syscalls, conn net.Conn, how int) bool {
	if tcp, ok := conn.(*net.TCPConn); ok {
		switch how {
		case shutdownRD:
			return checkErr(s, tcp.CloseRead())
		case shutdownWR:
			return checkErr(s, tcp.CloseWrite())
		}
	}
	return checkErr(s, conn.Close())
}

// splitHostPort breaks a net.Addr into its host and numeric port, as
// ACCEPT's (cfd, addr, port) return requires (spec.md §4.10). A malformed or
// portless address degrades to (addr.String(), 0) rather than failing the
// syscall outright.
func splitHostPort(addr net.Addr) (string, int) {
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 0
	}
	return host, port
}

func sendOn(s *Syscalls, stack *vm.OperandStack) error {
	data, err := popBytes(stack)
	if err != nil {
		return err
	}
	handle, err := popInt(stack)
	if err != nil {
		return err
	}
	conn, ok := s.sockets.conn(int(handle))
	if !ok {
		pushInt(stack, -1)
		return nil
	}
	n, werr := conn.Write(data)
	checkErr(s, werr)
	pushInt(stack, int64(n))
	return nil
}

func recvFrom(s *Syscalls, stack *vm.OperandStack) error {
	count, err := popInt(stack)
	if err != nil {
		return err
	}
	handle, err := popInt(stack)
	if err != nil {
		return err
	}
	conn, ok := s.sockets.conn(int(handle))
	if !ok {
		pushBytes(stack, nil)
		pushInt(stack, -1)
		return nil
	}
	buf := make([]byte, count)
	n, rerr := conn.Read(buf)
	checkErr(s, rerr)
	pushBytes(stack, buf[:n])
	pushInt(stack, int64(n))
	return nil
}
