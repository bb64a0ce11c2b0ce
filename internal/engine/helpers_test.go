package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quillpress/quill/internal/article"
	"github.com/quillpress/quill/internal/netcheck"
	"github.com/quillpress/quill/internal/store"
)

// fakeRemote is an in-memory sync server. Created records are appended to
// the record set, so a later FetchAll sees them like a real server would.
type fakeRemote struct {
	mu          sync.Mutex
	records     []article.Remote
	nextID      int64
	fetchErr    error
	fetchCalls  int
	createCalls int

	// createFn, when set, decides the outcome of each CreateOne call
	// (1-based). Returning id 0 and a nil error falls back to the default.
	createFn func(call int, title, content string) (int64, error)
}

func newFakeRemote(records ...article.Remote) *fakeRemote {
	f := &fakeRemote{records: records, nextID: 100}
	for _, r := range records {
		if r.ID >= f.nextID {
			f.nextID = r.ID + 1
		}
	}
	return f
}

func (f *fakeRemote) FetchAll(ctx context.Context) ([]article.Remote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make([]article.Remote, len(f.records))
	copy(out, f.records)
	return out, nil
}

func (f *fakeRemote) CreateOne(ctx context.Context, title, content string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.createCalls++
	var id int64
	if f.createFn != nil {
		var err error
		id, err = f.createFn(f.createCalls, title, content)
		if err != nil {
			return 0, err
		}
	}
	if id == 0 {
		id = f.nextID
		f.nextID++
	}

	f.records = append(f.records, article.Remote{
		ID:        id,
		Title:     title,
		Content:   content,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	return id, nil
}

func (f *fakeRemote) calls() (fetch, create int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls, f.createCalls
}

// sleepRecorder replaces real waiting in tests.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "quill.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestEngine(t *testing.T, st Store, rm Remote, online bool, mutate func(*Config)) (*Engine, *sleepRecorder) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.SyncOnCreate = false
	if mutate != nil {
		mutate(cfg)
	}

	eng, err := New(st, rm, netcheck.Static(online), cfg)
	require.NoError(t, err)

	rec := &sleepRecorder{}
	eng.sleep = rec.sleep
	eng.now = func() time.Time { return time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC) }
	return eng, rec
}

func putPending(t *testing.T, st *store.Store, title, body string) string {
	t.Helper()

	a, err := article.NewDraft(title, body, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	id, err := st.Put(context.Background(), a)
	require.NoError(t, err)
	return id
}

// byServerID counts local articles per server id.
func byServerID(t *testing.T, st *store.Store) map[int64]int {
	t.Helper()

	all, err := st.List(context.Background())
	require.NoError(t, err)

	counts := make(map[int64]int)
	for _, a := range all {
		if a.ServerID != nil {
			counts[*a.ServerID]++
		}
	}
	return counts
}
