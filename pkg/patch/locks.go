package patch

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const lockStripes = 64

// fileLocks serializes access per file path with a fixed set of mutexes.
// Two paths may share a stripe; one path always maps to the same stripe.
type fileLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (l *fileLocks) lock(path string) func() {
	m := &l.stripes[xxhash.Sum64String(path)%lockStripes]
	m.Lock()
	return m.Unlock
}

// pathLocks guards the read, patch and write of one file across every
// Applier in the process. Within a single Apply each path already goes to
// one worker; the lock matters when Apply calls overlap.
var pathLocks fileLocks
