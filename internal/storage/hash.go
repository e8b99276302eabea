package storage

// LockKey folds a string to a non-negative 32-bit advisory lock key using a
// djb2-style hash. The exact value carries no meaning; determinism is the
// only requirement, so that all operations of one user contend on the same
// lock.
func LockKey(s string) int32 {
	var h int32
	for _, c := range []byte(s) {
		h = (h << 5) - h + int32(c)
	}
	if h == -2147483648 {
		return 0
	}
	if h < 0 {
		return -h
	}
	return h
}
