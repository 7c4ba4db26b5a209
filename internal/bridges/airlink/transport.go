package airlink

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Supported transports.
const (
	TransportUDP = "udp"
	TransportTCP = "tcp"
)

// transport moves frames to and from the modem over one socket.
//
// readFrame and writeFrame may be called concurrently with each other but
// not with themselves. close unblocks a pending readFrame.
type transport interface {
	readFrame(deadline time.Time) ([]byte, error)
	writeFrame(frame []byte, deadline time.Time) error
	close() error
}

// openTransport opens the socket described by cfg.
func openTransport(ctx context.Context, cfg ClientConfig) (transport, error) {
	switch cfg.Transport {
	case TransportTCP:
		return dialTCP(ctx, cfg)
	case TransportUDP, "":
		return listenUDP(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported transport %q (use udp or tcp)", cfg.Transport)
	}
}

// =============================================================================
// UDP
// =============================================================================

// udpTransport binds a local port for inbound SMS and sends outbound SMS as
// datagrams to the modem.
type udpTransport struct {
	conn   *net.UDPConn
	remote *net.UDPAddr
	buf    []byte
}

func listenUDP(ctx context.Context, cfg ClientConfig) (*udpTransport, error) {
	var resolver net.Resolver
	ips, err := resolver.LookupIP(ctx, "ip", cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", cfg.Host, err)
	}
	remote := &net.UDPAddr{IP: pickIP(ips), Port: cfg.Port}

	local, err := net.ResolveUDPAddr("udp", net.JoinHostPort(cfg.BindAddr, strconv.Itoa(cfg.ListenPort)))
	if err != nil {
		return nil, fmt.Errorf("resolve bind address: %w", err)
	}

	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", local, err)
	}

	return &udpTransport{
		conn:   conn,
		remote: remote,
		// Room for a CRLF terminator plus one byte to detect truncation.
		buf: make([]byte, maxFrameSize+3),
	}, nil
}

// pickIP prefers IPv4 so the source check matches what an IPv4 modem sends from.
func pickIP(ips []net.IP) net.IP {
	for _, ip := range ips {
		if ip.To4() != nil {
			return ip
		}
	}
	return ips[0]
}

func (t *udpTransport) readFrame(deadline time.Time) ([]byte, error) {
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}

	n, src, err := t.conn.ReadFromUDP(t.buf)
	if err != nil {
		return nil, err
	}

	if !src.IP.Equal(t.remote.IP) {
		return nil, fmt.Errorf("%w: %s", errForeignSource, src)
	}

	frame := bytes.TrimRight(t.buf[:n], "\r\n")
	if n == len(t.buf) || len(frame) > maxFrameSize {
		return nil, fmt.Errorf("%w: datagram of %d bytes", ErrFrameTooLarge, n)
	}

	out := make([]byte, len(frame))
	copy(out, frame)
	return out, nil
}

func (t *udpTransport) writeFrame(frame []byte, deadline time.Time) error {
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	_, err := t.conn.WriteToUDP(frame, t.remote)
	return err
}

func (t *udpTransport) close() error {
	return t.conn.Close()
}

// =============================================================================
// TCP
// =============================================================================

// tcpTransport holds a TCP session with the modem. Frames are newline
// terminated; a partial line survives read timeouts in pending.
type tcpTransport struct {
	conn    net.Conn
	buf     []byte
	pending []byte
}

func dialTCP(ctx context.Context, cfg ClientConfig) (*tcpTransport, error) {
	address := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial tcp://%s: %w", address, err)
	}

	return &tcpTransport{
		conn: conn,
		buf:  make([]byte, 1024),
	}, nil
}

func (t *tcpTransport) readFrame(deadline time.Time) ([]byte, error) {
	for {
		if i := bytes.IndexByte(t.pending, '\n'); i >= 0 {
			frame := bytes.TrimRight(t.pending[:i], "\r")
			out := make([]byte, len(frame))
			copy(out, frame)
			t.pending = t.pending[i+1:]
			return out, nil
		}

		// A line this long without a terminator means framing is lost.
		if len(t.pending) > maxFrameSize {
			t.pending = nil
			return nil, ErrProtocolDesync
		}

		if err := t.conn.SetReadDeadline(deadline); err != nil {
			return nil, fmt.Errorf("set deadline: %w", err)
		}

		n, err := t.conn.Read(t.buf)
		t.pending = append(t.pending, t.buf[:n]...)
		if err != nil {
			return nil, err
		}
	}
}

func (t *tcpTransport) writeFrame(frame []byte, deadline time.Time) error {
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	_, err := t.conn.Write(frame)
	return err
}

func (t *tcpTransport) close() error {
	return t.conn.Close()
}
