//go:build unix

package keystore

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// checkFallbackOwnership refuses to read the fallback key file if it is not
// owned by the current user, mirroring the peer-credential check the
// unlock-cache daemon performs on its unix socket.
func (k *Keystore) checkFallbackOwnership() error {
	var st unix.Stat_t
	if err := unix.Stat(k.fallbackPath, &st); err != nil {
		return err
	}

	if int(st.Uid) != os.Getuid() {
		return fmt.Errorf("keystore: fallback file owned by uid %d, want %d", st.Uid, os.Getuid())
	}

	if os.FileMode(st.Mode).Perm() != fallbackPerm {
		return fmt.Errorf("keystore: fallback file has insecure permissions: %v", os.FileMode(st.Mode).Perm())
	}

	return nil
}
