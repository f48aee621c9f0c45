package unlockcache

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/ghost-auth/vaultcore/vaulterrors"
)

// Client talks to a running unlock-cache daemon over its Unix socket.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the daemon at [SocketPath], refusing to proceed if
// the socket is not a real, owner-restricted Unix socket owned by the
// caller.
func Dial() (*Client, error) {
	socketPath := SocketPath()

	if err := verifySocketSecure(socketPath, os.Getuid()); err != nil {
		return nil, vaulterrors.Wrap(vaulterrors.Resource, err)
	}

	conn, err := grpc.NewClient("unix://"+socketPath, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("unlockcache: dial: %w", err)
	}

	return &Client{conn: conn}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Login caches key for path.
func (c *Client) Login(ctx context.Context, path string, key []byte) error {
	req, err := structpb.NewStruct(map[string]interface{}{
		"path": path,
		"key":  encodeKey(key),
	})
	if err != nil {
		return err
	}

	return c.conn.Invoke(ctx, fullMethod(methodLogin), req, new(structpb.Struct))
}

// Logout evicts any cached key for path.
func (c *Client) Logout(ctx context.Context, path string) error {
	return c.conn.Invoke(ctx, fullMethod(methodLogout), wrapperspb.String(path), new(structpb.Struct))
}

// GetSession returns the cached key for path, if any is still live.
func (c *Client) GetSession(ctx context.Context, path string) (key []byte, found bool, err error) {
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, fullMethod(methodGetSession), wrapperspb.String(path), resp); err != nil {
		return nil, false, err
	}

	found = resp.Fields["found"].GetBoolValue()

	key, err = decodeKey(resp.Fields["key"].GetStringValue())
	if err != nil {
		return nil, false, err
	}

	return key, found, nil
}

// verifySocketSecure refuses to dial a socket that is not owned by uid,
// is a symlink, is not mode 0600, or is not actually a socket —
// preventing another local user from intercepting the master key cache.
// The uid ownership check is platform-specific; see
// socket_unix.go/socket_other.go.
func verifySocketSecure(path string, uid int) error {
	fi, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("unlockcache: stat socket: %w", err)
	}

	if fi.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("unlockcache: socket path is a symlink")
	}

	if fi.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("unlockcache: path is not a socket")
	}

	if fi.Mode().Perm() != 0o600 {
		return fmt.Errorf("unlockcache: socket has loose permissions %o, want 0600", fi.Mode().Perm())
	}

	return checkSocketOwnership(path, uid)
}
