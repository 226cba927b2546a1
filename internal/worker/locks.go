package worker

import "sync"

// serverLocks hands out per-server turns in the order they are requested.
type serverLocks struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

func newServerLocks() *serverLocks {
	return &serverLocks{tails: make(map[string]chan struct{})}
}

// acquire queues a turn for key. The caller waits on wait (nil when the
// turn is immediate) and must call release when done.
func (l *serverLocks) acquire(key string) (wait <-chan struct{}, release func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := l.tails[key]
	done := make(chan struct{})
	l.tails[key] = done

	var once sync.Once
	release = func() {
		once.Do(func() {
			l.mu.Lock()
			if l.tails[key] == done {
				delete(l.tails, key)
			}
			l.mu.Unlock()
			close(done)
		})
	}
	if prev == nil {
		return nil, release
	}
	return prev, release
}

func (l *serverLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tails)
}
