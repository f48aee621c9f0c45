package unlockcache

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"
	"google.golang.org/grpc"
)

// SocketPath returns the per-user Unix socket path the daemon listens
// on and the client dials.
func SocketPath() string {
	return fmt.Sprintf("/run/user/%d/ghost-auth-unlockcache.sock", os.Getuid())
}

// uidCheckingListener wraps a net.Listener, closing any accepted
// connection whose peer credential UID does not match the daemon's own,
// adapted from vaultdaemon's listener of the same shape.
type uidCheckingListener struct {
	net.Listener
	uid int
}

func (l *uidCheckingListener) Accept() (net.Conn, error) {
	for {
		conn, err := l.Listener.Accept()
		if err != nil {
			return nil, err
		}

		cred, err := getCred(conn)
		if err != nil {
			log.Printf("reject connection: could not read peer credential: %v", err)
			conn.Close()

			continue
		}

		if int(cred.Uid) != l.uid {
			log.Printf("reject connection from uid %d (want %d)", cred.Uid, l.uid)
			conn.Close()

			continue
		}

		return conn, nil
	}
}

func getCred(conn net.Conn) (*unix.Ucred, error) {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return nil, fmt.Errorf("unlockcache: connection is not a unix socket")
	}

	raw, err := unixConn.SyscallConn()
	if err != nil {
		return nil, err
	}

	var (
		cred    *unix.Ucred
		credErr error
	)

	err = raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return nil, err
	}

	return cred, credErr
}

// Run binds the unix socket at [SocketPath], serves srv until ctx is
// cancelled or SIGTERM/SIGINT is received, and removes the socket file
// on exit.
func Run(ctx context.Context, srv *Server) error {
	socketPath := SocketPath()

	if err := os.MkdirAll(filepath.Dir(socketPath), 0o700); err != nil {
		return fmt.Errorf("unlockcache: create socket dir: %w", err)
	}

	os.Remove(socketPath)

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("unlockcache: listen: %w", err)
	}

	if err := os.Chmod(socketPath, 0o600); err != nil {
		ln.Close()

		return fmt.Errorf("unlockcache: chmod socket: %w", err)
	}

	guarded := &uidCheckingListener{Listener: ln, uid: os.Getuid()}

	grpcServer := grpc.NewServer()
	grpcServer.RegisterService(&serviceDesc, srv)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, os.Interrupt)
	defer stop()

	errCh := make(chan error, 1)

	go func() {
		errCh <- grpcServer.Serve(guarded)
	}()

	select {
	case <-ctx.Done():
		grpcServer.GracefulStop()
		os.Remove(socketPath)

		return nil
	case err := <-errCh:
		os.Remove(socketPath)

		return err
	}
}
