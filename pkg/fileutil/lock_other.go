//go:build !unix

package fileutil

import "os"

// No advisory locking on this platform. Concurrent writers may duplicate work.
func lockFile(*os.File) error { return nil }

func unlockFile(*os.File) error { return nil }
