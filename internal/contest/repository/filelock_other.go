//go:build !unix

package repository

// lockFile is a no-op where flock is unavailable; the in-process mutex
// still serializes access within one process.
func lockFile(path string) (func(), error) {
	return func() {}, nil
}
