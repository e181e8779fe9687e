package jwks

import "sync/atomic"

// PrepopulateBuffer is a one-shot handoff slot between the startup
// warmup and the first real caller. The zero value is an empty buffer.
type PrepopulateBuffer struct {
	slot atomic.Pointer[KeySet]
}

// Offer stores keySet, overwriting any value that was not taken yet.
func (b *PrepopulateBuffer) Offer(keySet KeySet) {
	b.slot.Store(&keySet)
}

// TakeIfPresent empties the buffer and returns what it held. Check and
// clear are one atomic swap: of any number of concurrent callers, exactly
// one receives an offered value.
func (b *PrepopulateBuffer) TakeIfPresent() (KeySet, bool) {
	keySet := b.slot.Swap(nil)
	if keySet == nil {
		return nil, false
	}
	return *keySet, true
}
