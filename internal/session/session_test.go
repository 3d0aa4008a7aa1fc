package session

import (
	"net"
	"testing"
	"time"

	"github.com/js-labs/trackerd/internal/deviceid"
	"github.com/js-labs/trackerd/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessArg = interface {
	Send([]byte) error
	RemoteAddr() net.Addr
}

type fakeDispatcher struct {
	handled     [][]byte
	closeAfter  bool
	closedID    deviceid.ID
	closedCount int
}

func (f *fakeDispatcher) HandleTCP(sess sessArg, buf []byte) bool {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	f.handled = append(f.handled, cp)
	return f.closeAfter
}

func (f *fakeDispatcher) HandleUDP(addr net.Addr, buf []byte) {}

func (f *fakeDispatcher) OnSessionClosed(id deviceid.ID, sess sessArg) {
	f.closedID = id
	f.closedCount++
}

func TestServeDecodesOneMessageAndCloses(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	disp := &fakeDispatcher{closeAfter: true}
	sess := New(serverConn, disp)

	done := make(chan struct{})
	go func() {
		sess.Serve()
		close(done)
	}()

	msg := make([]byte, wire.PingSize)
	wire.EncodePing(msg)
	_, err := clientConn.Write(msg)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after close-after handler")
	}

	require.Len(t, disp.handled, 1)
	assert.Equal(t, wire.IDPing, wire.GetID(disp.handled[0]))
}

func TestServeKeepsOpenWhenHandlerSaysSo(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	disp := &fakeDispatcher{closeAfter: false}
	sess := New(serverConn, disp)
	go sess.Serve()

	msg := make([]byte, wire.PingSize)
	wire.EncodePing(msg)
	_, err := clientConn.Write(msg)
	require.NoError(t, err)
	_, err = clientConn.Write(msg)
	require.NoError(t, err)

	deadline := time.After(time.Second)
	for len(disp.handled) < 2 {
		select {
		case <-deadline:
			t.Fatal("expected two handled messages")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestSessionSendWritesFramedBuffer(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	sess := New(serverConn, &fakeDispatcher{})
	msg := make([]byte, wire.PingSize)
	wire.EncodePing(msg)

	readDone := make(chan []byte, 1)
	go func() {
		buf := make([]byte, wire.PingSize)
		_, _ = clientConn.Read(buf)
		readDone <- buf
	}()

	require.NoError(t, sess.Send(msg))
	select {
	case got := <-readDone:
		assert.Equal(t, msg, got)
	case <-time.After(time.Second):
		t.Fatal("did not observe write")
	}
}

func TestCloseNotifiesServerWhenSubscribed(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	disp := &fakeDispatcher{}
	sess := New(serverConn, disp)
	id := deviceid.New()
	sess.SetSubscribedDevice(id)

	done := make(chan struct{})
	go func() {
		sess.Serve()
		close(done)
	}()
	clientConn.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return on connection close")
	}
	assert.Equal(t, id, disp.closedID)
	assert.Equal(t, 1, disp.closedCount)
}

func TestIdleConnectionIsClosed(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	sess := New(serverConn, &fakeDispatcher{})
	sess.SetIdleInterval(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		sess.Serve()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("idle session was not closed")
	}
}
