package session

import (
	"errors"
	"net"
	"time"

	"github.com/js-labs/trackerd/internal/stats"
	"github.com/js-labs/trackerd/internal/wire"
	log "github.com/sirupsen/logrus"
)

// ServeTCP accepts connections on ln forever, one goroutine per
// connection, in the shape of the teacher's listener-goroutine idiom.
// idleInterval configures each Session's read-idle timer; zero keeps
// DefaultIdleCheckInterval. It returns nil when ln is closed by the
// caller (the ordinary shutdown path) and a non-nil error otherwise, so
// callers can join it through an errgroup.Group.
func ServeTCP(ln net.Listener, server Dispatcher, st *stats.Stats, idleInterval time.Duration) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Errorf("tcp accept failed: %v", err)
			return err
		}
		if st != nil {
			st.SessionsOpened.Inc()
		}
		sess := New(conn, server)
		sess.SetIdleInterval(idleInterval)
		go func() {
			sess.Serve()
			if st != nil {
				st.SessionsClosed.Inc()
			}
		}()
	}
}

// udpMaxDatagram is larger than any legal message (MaxMessageSize) so a
// legitimately framed datagram is never truncated by ReadFrom.
const udpMaxDatagram = wire.MaxMessageSize + 1

// ServeUDP reads datagrams from conn forever and dispatches each one
// through server.HandleUDP, reusing the same decode path as TCP per
// §4.6's "UDP path for Tracking". Return semantics mirror ServeTCP.
func ServeUDP(conn net.PacketConn, server Dispatcher) error {
	buf := make([]byte, udpMaxDatagram)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Errorf("udp read failed: %v", err)
			return err
		}
		msg := make([]byte, n)
		copy(msg, buf[:n])
		server.HandleUDP(addr, msg)
	}
}
