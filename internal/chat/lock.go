package chat

import "sync"

// ExchangeLock serializes use of the exchange endpoint per session. The
// gate holds it for the whole send→stream cycle; the title worker holds it
// for one title request. The endpoint has no idempotency key, so two
// concurrent exchanges on one session could cross-contaminate responses.
// Release requires the token handed out by TryAcquire, so a stale release
// can never free a lock that has since changed owners.
type ExchangeLock struct {
	mu     sync.Mutex
	owners map[string]uint64
	next   uint64
}

func NewExchangeLock() *ExchangeLock {
	return &ExchangeLock{owners: make(map[string]uint64)}
}

// TryAcquire takes the lock for sessionID without blocking. On success it
// returns the owner token that Release requires.
func (l *ExchangeLock) TryAcquire(sessionID string) (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.owners[sessionID]; held {
		return 0, false
	}
	l.next++
	l.owners[sessionID] = l.next
	return l.next, true
}

// Release frees the lock for sessionID if token still owns it. A release
// with a stale token is a no-op.
func (l *ExchangeLock) Release(sessionID string, token uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, held := l.owners[sessionID]; held && cur == token {
		delete(l.owners, sessionID)
	}
}

// Held reports whether an exchange is in flight for sessionID.
func (l *ExchangeLock) Held(sessionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, held := l.owners[sessionID]
	return held
}
