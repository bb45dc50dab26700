package vmsys

import (
	"testing"

	"github.com/chlang-rt/chvm/vm"
)

func TestSocketBindAcceptConnectSendRecvRoundTrip(t *testing.T) {
	s := New()
	defer s.Close()

	bindStack := vm.NewOperandStack(4)
	pushInt(bindStack, -1) // placeholder SOCKET handle, discarded by BIND
	pushString(bindStack, "127.0.0.1:0")
	if err := s.Dispatch(BIND, bindStack); err != nil {
		t.Fatalf("BIND failed: %v", err)
	}
	listenerHandle, err := popInt(bindStack)
	if err != nil || listenerHandle < 0 {
		t.Fatalf("BIND returned handle=%d, err=%v", listenerHandle, err)
	}

	l, ok := s.sockets.listener(int(listenerHandle))
	if !ok {
		t.Fatal("BIND did not register a listener under its returned handle")
	}
	addr := l.Addr().String()

	accepted := make(chan int64, 1)
	go func() {
		acceptStack := vm.NewOperandStack(4)
		pushInt(acceptStack, listenerHandle)
		if err := s.Dispatch(ACCEPT, acceptStack); err != nil {
			t.Errorf("ACCEPT failed: %v", err)
			accepted <- -1
			return
		}
		port, _ := popInt(acceptStack)
		addr, _ := popString(acceptStack)
		h, _ := popInt(acceptStack)
		if h >= 0 && (addr == "" || port == 0) {
			t.Errorf("ACCEPT returned cfd=%d with empty peer address/port (%q:%d)", h, addr, port)
		}
		accepted <- h
	}()

	connectStack := vm.NewOperandStack(4)
	pushInt(connectStack, -1)
	pushString(connectStack, addr)
	if err := s.Dispatch(CONNECT, connectStack); err != nil {
		t.Fatalf("CONNECT failed: %v", err)
	}
	clientHandle, err := popInt(connectStack)
	if err != nil || clientHandle < 0 {
		t.Fatalf("CONNECT returned handle=%d, err=%v", clientHandle, err)
	}

	serverHandle := <-accepted
	if serverHandle < 0 {
		t.Fatal("ACCEPT did not return a valid connection handle")
	}

	sendStack := vm.NewOperandStack(4)
	pushInt(sendStack, clientHandle)
	pushBytes(sendStack, []byte("ping"))
	if err := s.Dispatch(SEND, sendStack); err != nil {
		t.Fatalf("SEND failed: %v", err)
	}
	n, _ := popInt(sendStack)
	if n != 4 {
		t.Fatalf("SEND returned %d, want 4", n)
	}

	recvStack := vm.NewOperandStack(4)
	pushInt(recvStack, serverHandle)
	pushInt(recvStack, 4)
	if err := s.Dispatch(RECV, recvStack); err != nil {
		t.Fatalf("RECV failed: %v", err)
	}
	readN, _ := popInt(recvStack)
	data, _ := popBytes(recvStack)
	if readN != 4 || string(data) != "ping" {
		t.Errorf("RECV = %d bytes %q, want 4 bytes \"ping\"", readN, data)
	}
}

func TestConnectToNothingListeningFails(t *testing.T) {
	s := New()
	defer s.Close()
	stack := vm.NewOperandStack(4)
	pushInt(stack, -1)
	pushString(stack, "127.0.0.1:1") // privileged/likely-closed port
	if err := s.Dispatch(CONNECT, stack); err != nil {
		t.Fatalf("CONNECT failed: %v", err)
	}
	h, _ := popInt(stack)
	if h != -1 {
		t.Errorf("CONNECT to a closed port returned handle=%d, want -1", h)
	}
}

func TestShutdownClosesTheConnection(t *testing.T) {
	s := New()
	defer s.Close()
	bindStack := vm.NewOperandStack(4)
	pushInt(bindStack, -1)
	pushString(bindStack, "127.0.0.1:0")
	s.Dispatch(BIND, bindStack)
	listenerHandle, _ := popInt(bindStack)
	l, _ := s.sockets.listener(int(listenerHandle))
	addr := l.Addr().String()

	connectStack := vm.NewOperandStack(4)
	pushInt(connectStack, -1)
	pushString(connectStack, addr)
	s.Dispatch(CONNECT, connectStack)
	clientHandle, _ := popInt(connectStack)

	shutdownStack := vm.NewOperandStack(4)
	pushInt(shutdownStack, clientHandle)
	pushInt(shutdownStack, 2) // RDWR
	if err := s.Dispatch(SHUTDOWN, shutdownStack); err != nil {
		t.Fatalf("SHUTDOWN failed: %v", err)
	}
	ok, _ := popInt(shutdownStack)
	if ok == 0 {
		t.Error("SHUTDOWN reported failure on a live connection")
	}
}
