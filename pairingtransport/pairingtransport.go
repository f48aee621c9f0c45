// Package pairingtransport implements C5: the local-network listener,
// protocol auto-detection, mutual-auth handshake, and framed transport
// that carries a [syncsession.Payload] between two paired devices, per
// §4.5.
package pairingtransport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ghost-auth/vaultcore/internal/corelog"
	"github.com/ghost-auth/vaultcore/vaultcrypto"
	"github.com/ghost-auth/vaultcore/vaulterrors"
)

var log = corelog.New("pairingtransport")

const (
	// acceptDeadline bounds how long Listen waits for a valid peer before
	// giving up, per §4.5.
	acceptDeadline = 120 * time.Second

	// ioDeadline bounds I/O on a pairing connection: it is set once when a
	// connection is accepted or dialed, covering the whole handshake, and
	// refreshed before each frame is sent or received.
	ioDeadline = 30 * time.Second

	// peekDeadline bounds the protocol-sniff read used to decide between
	// raw TCP and a WebSocket upgrade.
	peekDeadline = 500 * time.Millisecond

	nonceSize = 32 // initiator nonce N

	frameLenSize  = 4
	frameMinLen   = 12 + 16 // gcm_nonce(12) + 16-byte tag, zero plaintext
	frameMaxPlain = 10 * 1024 * 1024
	frameMaxTotal = frameMaxPlain + 12 + 16
	gcmNonceSize  = 12
)

// Role identifies which side of the handshake a peer plays.
type Role int

const (
	// Initiator is the side that sends N first (the device starting the
	// sync session, e.g. a listener freshly bound per §4.5).
	Initiator Role = iota
	// Joiner is the side that replies with H_j and waits for A (the device
	// scanning/entering the pairing code).
	Joiner
)

// PrivateAddresses returns every RFC1918 IPv4 address bound to a local
// interface, for the host to advertise as a pairing target. IPv6
// addresses, ULA included, are skipped.
func PrivateAddresses() ([]string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, fmt.Errorf("pairingtransport: list interfaces: %w", err)
	}

	var out []string

	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}

		ip4 := ipNet.IP.To4()
		if ip4 == nil {
			continue
		}

		if isPrivateV4(ip4) {
			out = append(out, ip4.String())
		}
	}

	if len(out) == 0 {
		return nil, vaulterrors.Wrap(vaulterrors.Resource, vaulterrors.ErrNoPrivateAddress)
	}

	return out, nil
}

func isPrivateV4(ip net.IP) bool {
	switch {
	case ip[0] == 10:
		return true
	case ip[0] == 172 && ip[1] >= 16 && ip[1] <= 31:
		return true
	case ip[0] == 192 && ip[1] == 168:
		return true
	default:
		return false
	}
}

// Session is an authenticated, framed channel to a paired peer, carrying
// a derived session-envelope key for the caller to hand to
// [syncsession.OpenPayload] / [syncsession.BuildPayload] logic; this
// package only moves opaque frames.
type Session struct {
	conn io.ReadWriteCloser
	sek  []byte
}

// SEK returns the session-envelope key derived during the handshake.
func (s *Session) SEK() []byte {
	return s.sek
}

// Close closes the underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Listen binds a TCP listener to the first available RFC1918 address,
// waits for a single peer to complete the Initiator side of the handshake
// under sharedKey, and returns an authenticated [Session]. It refuses to
// start if the host has no private address, and gives up if no peer
// completes a valid handshake within 120 seconds — retrying across
// handshake failures from bad peers without resetting that deadline, per
// §8 "Listener survives a bad peer".
func Listen(sharedKey []byte, onReady func(addr string)) (*Session, error) {
	addrs, err := PrivateAddresses()
	if err != nil {
		return nil, err
	}

	ln, err := net.Listen("tcp", addrs[0]+":0")
	if err != nil {
		return nil, fmt.Errorf("pairingtransport: listen: %w", err)
	}
	defer ln.Close()

	if onReady != nil {
		onReady(ln.Addr().String())
	}

	return acceptLoop(ln, sharedKey, acceptDeadline)
}

// acceptLoop is [Listen]'s accept/handshake retry loop, factored out so
// tests can drive it with a short deadline instead of the real 120s one.
func acceptLoop(ln net.Listener, sharedKey []byte, timeout time.Duration) (*Session, error) {
	deadline := time.Now().Add(timeout)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, vaulterrors.Wrap(vaulterrors.Timeout, vaulterrors.ErrAcceptTimeout)
		}

		if tcpLn, ok := ln.(*net.TCPListener); ok {
			tcpLn.SetDeadline(time.Now().Add(remaining))
		}

		conn, err := ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return nil, vaulterrors.Wrap(vaulterrors.Timeout, vaulterrors.ErrAcceptTimeout)
			}

			return nil, fmt.Errorf("pairingtransport: accept: %w", err)
		}

		conn.SetDeadline(time.Now().Add(ioDeadline))

		rw, err := detectProtocol(conn)
		if err != nil {
			log.Printf("peer %s: protocol detection failed: %v", conn.RemoteAddr(), err)
			conn.Close()

			continue
		}

		sek, err := runHandshake(rw, Initiator, sharedKey)
		if err != nil {
			log.Printf("peer %s: handshake failed: %v", conn.RemoteAddr(), err)
			rw.Close()

			continue
		}

		return &Session{conn: rw, sek: sek}, nil
	}
}

// Dial connects to addr as the Joiner side of the handshake under
// sharedKey and returns an authenticated [Session].
func Dial(addr string, sharedKey []byte) (*Session, error) {
	conn, err := net.DialTimeout("tcp", addr, ioDeadline)
	if err != nil {
		return nil, fmt.Errorf("pairingtransport: dial: %w", err)
	}

	conn.SetDeadline(time.Now().Add(ioDeadline))

	sek, err := runHandshake(conn, Joiner, sharedKey)
	if err != nil {
		conn.Close()

		return nil, err
	}

	return &Session{conn: conn, sek: sek}, nil
}

// deadlineConn is a connection that accepts a deadline; refreshDeadline
// uses it to apply a fresh ioDeadline before each frame, for both raw TCP
// and a WebSocket ([wsConn]).
type deadlineConn interface {
	io.ReadWriteCloser
	SetDeadline(time.Time) error
}

func refreshDeadline(c io.ReadWriteCloser) {
	if dc, ok := c.(deadlineConn); ok {
		dc.SetDeadline(time.Now().Add(ioDeadline))
	}
}

// detectProtocol peeks the first bytes of conn; a "GET " prefix is
// upgraded to a WebSocket connection, anything else is treated as raw
// framed TCP, per §4.5.
func detectProtocol(conn net.Conn) (io.ReadWriteCloser, error) {
	conn.SetReadDeadline(time.Now().Add(peekDeadline))

	br := bufio.NewReader(conn)

	peeked, err := br.Peek(4)
	if err != nil && err != io.EOF {
		conn.SetReadDeadline(time.Now().Add(ioDeadline))

		return &bufReadConn{Conn: conn, br: br}, nil
	}

	conn.SetReadDeadline(time.Now().Add(ioDeadline))

	if string(peeked) == "GET " {
		return upgradeWebsocket(conn, br)
	}

	return &bufReadConn{Conn: conn, br: br}, nil
}

// bufReadConn lets us keep bytes already peeked from conn's buffer while
// still satisfying net.Conn's deadline methods for later frame I/O.
type bufReadConn struct {
	net.Conn
	br *bufio.Reader
}

func (c *bufReadConn) Read(p []byte) (int, error) { return c.br.Read(p) }

var websocketUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func upgradeWebsocket(conn net.Conn, br *bufio.Reader) (io.ReadWriteCloser, error) {
	req, err := http.ReadRequest(br)
	if err != nil {
		return nil, fmt.Errorf("pairingtransport: read upgrade request: %w", err)
	}

	rw := &hijackResponseWriter{
		conn: conn,
		bufrw: bufio.NewReadWriter(br, bufio.NewWriter(conn)),
		header: make(http.Header),
	}

	ws, err := websocketUpgrader.Upgrade(rw, req, nil)
	if err != nil {
		return nil, fmt.Errorf("pairingtransport: websocket upgrade: %w", err)
	}

	return &wsConn{Conn: ws}, nil
}

// hijackResponseWriter lets gorilla's Upgrader drive the handshake
// response over a connection we already accepted and peeked ourselves,
// rather than inside an http.Server handler.
type hijackResponseWriter struct {
	conn   net.Conn
	bufrw  *bufio.ReadWriter
	header http.Header
}

func (w *hijackResponseWriter) Header() http.Header         { return w.header }
func (w *hijackResponseWriter) Write(b []byte) (int, error) { return w.bufrw.Write(b) }
func (w *hijackResponseWriter) WriteHeader(int)              { /* status is implicit: 101 via Hijack */ }

func (w *hijackResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return w.conn, w.bufrw, nil
}

// wsConn adapts a *websocket.Conn to io.ReadWriteCloser, carrying the
// framing layer's bytes inside binary messages with no close-frame sent
// after the final message — the peer observes TCP FIN only, per §4.5.
type wsConn struct {
	*websocket.Conn
	rest []byte
}

func (c *wsConn) Read(p []byte) (int, error) {
	for len(c.rest) == 0 {
		mt, data, err := c.Conn.ReadMessage()
		if err != nil {
			return 0, err
		}

		if mt != websocket.BinaryMessage {
			continue
		}

		c.rest = data
	}

	n := copy(p, c.rest)
	c.rest = c.rest[n:]

	return n, nil
}

func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.Conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}

	return len(p), nil
}

func (c *wsConn) Close() error {
	return c.Conn.UnderlyingConn().Close()
}

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.Conn.SetReadDeadline(t); err != nil {
		return err
	}

	return c.Conn.SetWriteDeadline(t)
}

// runHandshake executes the mutual-auth exchange of §4.5. The initiator
// (accept side) sends N first — the joiner stays silent until it arrives,
// which is also what makes the protocol auto-detect peek work: a WebSocket
// client sends an HTTP upgrade immediately, a raw TCP joiner sends nothing
// until it has N. Roles mirror the spec's HMAC derivation exactly:
//
//	Initiator                                 Joiner
//	  ── N (32 random bytes) ──────────────▶
//	                                           H_j = HMAC(K, N)
//	                                  ◀───── H_j ──
//	  verify H_j == HMAC(K, N) else ABORT
//	  A = HMAC(K, H_j)
//	  ── A ───────────────────────────────▶
//	                                           verify A == HMAC(K, H_j) else ABORT
//	  SEK = HKDF(K, N)                        SEK = HKDF(K, N)
func runHandshake(rw io.ReadWriteCloser, role Role, sharedKey []byte) ([]byte, error) {
	switch role {
	case Initiator:
		return runInitiator(rw, sharedKey)
	default:
		return runJoiner(rw, sharedKey)
	}
}

// runInitiator is the accept side: it speaks first, generating and sending
// N unprompted, then sends the final authenticator A once it has verified
// the joiner's H_j.
func runInitiator(rw io.ReadWriteCloser, sharedKey []byte) ([]byte, error) {
	n, err := vaultcrypto.RandBytes(nonceSize)
	if err != nil {
		return nil, fmt.Errorf("pairingtransport: generate nonce: %w", err)
	}

	if err := writeExact(rw, n); err != nil {
		return nil, err
	}

	hj, err := readExact(rw, sha256Size)
	if err != nil {
		return nil, err
	}

	expectedHj := vaultcrypto.HMACSHA256(sharedKey, n)
	if !vaultcrypto.ConstantTimeEqual(hj, expectedHj) {
		return nil, vaulterrors.Wrap(vaulterrors.Auth, vaulterrors.ErrHandshakeFailed)
	}

	a := vaultcrypto.HMACSHA256(sharedKey, hj)
	if err := writeExact(rw, a); err != nil {
		return nil, err
	}

	return vaultcrypto.HKDFSHA256(sharedKey, n, []byte(sekInfo), sekLen)
}

// runJoiner is the connect side: it sends nothing until it has received N
// (so the accept side's protocol auto-detect peek sees no bytes and falls
// through to raw TCP), replies with H_j, then verifies the initiator's
// final authenticator A.
func runJoiner(rw io.ReadWriteCloser, sharedKey []byte) ([]byte, error) {
	n, err := readExact(rw, nonceSize)
	if err != nil {
		return nil, err
	}

	hj := vaultcrypto.HMACSHA256(sharedKey, n)
	if err := writeExact(rw, hj); err != nil {
		return nil, err
	}

	a, err := readExact(rw, sha256Size)
	if err != nil {
		return nil, err
	}

	expectedA := vaultcrypto.HMACSHA256(sharedKey, hj)
	if !vaultcrypto.ConstantTimeEqual(a, expectedA) {
		return nil, vaulterrors.Wrap(vaulterrors.Auth, vaulterrors.ErrHandshakeFailed)
	}

	return vaultcrypto.HKDFSHA256(sharedKey, n, []byte(sekInfo), sekLen)
}

const (
	sha256Size = 32
	sekInfo    = "ghost-auth-transport-sek-v1"
	sekLen     = 32
)

func writeExact(w io.Writer, b []byte) error {
	_, err := w.Write(b)
	if err != nil {
		return fmt.Errorf("pairingtransport: write: %w", err)
	}

	return nil
}

func readExact(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("pairingtransport: read: %w", err)
	}

	return buf, nil
}

// SendFrame seals plaintext under the session's SEK and writes it as
// len(4,BE) ‖ gcm_nonce(12) ‖ ciphertext, per §4.5.
func (s *Session) SendFrame(plaintext []byte) error {
	if len(plaintext) > frameMaxPlain {
		return fmt.Errorf("pairingtransport: frame too large: %d bytes", len(plaintext))
	}

	aead, err := vaultcrypto.NewAESGCM(s.sek)
	if err != nil {
		return fmt.Errorf("pairingtransport: init cipher: %w", err)
	}

	nonce, err := vaultcrypto.RandBytes(gcmNonceSize)
	if err != nil {
		return fmt.Errorf("pairingtransport: generate nonce: %w", err)
	}

	ciphertext, err := aead.Seal(nonce, plaintext)
	if err != nil {
		return fmt.Errorf("pairingtransport: seal: %w", err)
	}

	body := append(append([]byte{}, nonce...), ciphertext...)

	var lenBuf [frameLenSize]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))

	refreshDeadline(s.conn)

	if err := writeExact(s.conn, lenBuf[:]); err != nil {
		return err
	}

	return writeExact(s.conn, body)
}

// RecvFrame reads and opens the next frame, enforcing the minimum and
// maximum lengths of §4.5.
func (s *Session) RecvFrame() ([]byte, error) {
	refreshDeadline(s.conn)

	lenBuf, err := readExact(s.conn, frameLenSize)
	if err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(lenBuf)
	if n < frameMinLen || n > frameMaxTotal {
		return nil, vaulterrors.Wrap(vaulterrors.Integrity, vaulterrors.ErrTruncated)
	}

	body, err := readExact(s.conn, int(n))
	if err != nil {
		return nil, err
	}

	nonce, ciphertext := body[:gcmNonceSize], body[gcmNonceSize:]

	aead, err := vaultcrypto.NewAESGCM(s.sek)
	if err != nil {
		return nil, fmt.Errorf("pairingtransport: init cipher: %w", err)
	}

	plaintext, err := aead.Open(nonce, ciphertext)
	if err != nil {
		return nil, vaulterrors.Wrap(vaulterrors.Integrity, vaulterrors.ErrSyncDecryption)
	}

	return plaintext, nil
}
