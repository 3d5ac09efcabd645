//go:build linux || darwin || freebsd

package backends

import "golang.org/x/sys/unix"

// diskCapacity returns the bytes available to unprivileged users and the
// total size of the filesystem holding dir.
func diskCapacity(dir string) (avail, total int64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, 0, err
	}
	bsize := int64(st.Bsize)
	return int64(st.Bavail) * bsize, int64(st.Blocks) * bsize, nil
}
