//go:build !(linux || darwin || freebsd)

package backends

func diskCapacity(string) (avail, total int64, err error) {
	return 0, 0, nil
}
