package license

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"licensegate/internal/shared/testutil"
	"licensegate/internal/storage"
)

func newLicenseServer() *testutil.LicenseServer {
	return testutil.NewLicenseServer()
}

func testClient(ls *testutil.LicenseServer) *HTTPClient {
	return NewHTTPClient(ClientConfig{
		ActivationURL: ls.ActivationURL(),
		ValidationURL: ls.ValidationURL(),
		Timeout:       2 * time.Second,
	})
}

// MockFingerprinter is a mock implementation of Fingerprinter
type MockFingerprinter struct {
	mock.Mock
}

func (m *MockFingerprinter) GenerateFingerprint(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// fakeSurface records notifications sent to the license window
type fakeSurface struct {
	mu        sync.Mutex
	notes     []Notification
	notifyErr error
	closed    chan struct{}
	once      sync.Once
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{closed: make(chan struct{})}
}

func (f *fakeSurface) Notify(_ context.Context, n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notifyErr != nil {
		return f.notifyErr
	}
	f.notes = append(f.notes, n)
	return nil
}

func (f *fakeSurface) Closed() <-chan struct{} { return f.closed }

func (f *fakeSurface) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeSurface) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeSurface) notifications() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Notification(nil), f.notes...)
}

func (f *fakeSurface) types() []NotificationType {
	var types []NotificationType
	for _, n := range f.notifications() {
		types = append(types, n.Type)
	}
	return types
}

// surfaceQueue hands out the given surfaces in order
type surfaceQueue struct {
	mu       sync.Mutex
	surfaces []*fakeSurface
	err      error
}

func (q *surfaceQueue) OpenSurface(context.Context) (Surface, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	if len(q.surfaces) == 0 {
		return nil, errors.New("no surface left")
	}
	s := q.surfaces[0]
	q.surfaces = q.surfaces[1:]
	return s, nil
}

// failingStore fails writes on demand
type failingStore struct {
	*storage.MemoryStore
	failSet atomic.Bool
}

func newFailingStore() *failingStore {
	return &failingStore{MemoryStore: storage.NewMemoryStore()}
}

func (f *failingStore) Set(key string, v any) error {
	if f.failSet.Load() {
		return errors.New("disk full")
	}
	return f.MemoryStore.Set(key, v)
}
