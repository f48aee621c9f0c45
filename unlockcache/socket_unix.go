//go:build unix

package unlockcache

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func checkSocketOwnership(path string, uid int) error {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return err
	}

	if int(st.Uid) != uid {
		return fmt.Errorf("unlockcache: socket owned by uid %d, want %d", st.Uid, uid)
	}

	return nil
}
