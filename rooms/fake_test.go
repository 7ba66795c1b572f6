package rooms

import (
	"errors"
	"sync"
)

var errSendFailed = errors.New("send failed")

// fakeConn records what it was sent and can be told to fail.
type fakeConn struct {
	id string

	mu     sync.Mutex
	sent   [][]byte
	fail   bool
	closed int
	onSend func()
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(data []byte) error {
	f.mu.Lock()
	hook := f.onSend
	if f.fail {
		f.mu.Unlock()
		return errSendFailed
	}
	f.sent = append(f.sent, append([]byte(nil), data...))
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeConn) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

func (f *fakeConn) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, b := range f.sent {
		out[i] = string(b)
	}
	return out
}

func (f *fakeConn) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
