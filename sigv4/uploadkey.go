package sigv4

import (
	"fmt"
	"sync"
)

var (
	uploadKeyMu   sync.Mutex
	lastUploadMil int64
)

// GenerateUploadKey derives an object key for a new upload:
//
//	uploads/YYYY/MM/DD/<fileName>_<epoch-millis>
//
// The millisecond suffix is strictly increasing across calls, so two
// uploads of the same file name in the same millisecond cannot collide.
func (s *Signer) GenerateUploadKey(fileName string) string {
	now := s.now().UTC()

	uploadKeyMu.Lock()
	millis := now.UnixMilli()
	if millis <= lastUploadMil {
		millis = lastUploadMil + 1
	}
	lastUploadMil = millis
	uploadKeyMu.Unlock()

	return fmt.Sprintf("uploads/%s/%s_%d", now.Format("2006/01/02"), fileName, millis)
}
