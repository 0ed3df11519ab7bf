package facts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"acu-chatbot-go/internal/model"
	"acu-chatbot-go/pkg/weather"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMissing = errors.New("missing")

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore { return &memStore{objects: map[string][]byte{}} }

func (m *memStore) PutObject(_ context.Context, name string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[name] = append([]byte(nil), data...)
	return nil
}

func (m *memStore) GetObject(_ context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[name]
	if !ok {
		return nil, errMissing
	}
	return data, nil
}

func (m *memStore) IsNotFound(err error) bool { return errors.Is(err, errMissing) }

type stubCollector struct {
	name     string
	snippets []model.FactSnippet
	err      error
	calls    atomic.Int32
	delay    time.Duration
}

func (s *stubCollector) Name() string { return s.name }

func (s *stubCollector) Collect(ctx context.Context) ([]model.FactSnippet, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.snippets, s.err
}

func TestProviderLookupHonoursTTL(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p := NewProvider(WithClock(func() time.Time { return now }))
	p.Merge([]model.FactSnippet{
		{Topic: "menu", Payload: "Pilav", FetchedAt: now.Add(-2 * time.Hour), TTL: time.Hour},
		{Topic: "calendar", Payload: "Bahar dönemi", FetchedAt: now.Add(-48 * time.Hour)},
	})

	_, ok := p.Lookup("menu")
	assert.False(t, ok, "stale")
	got, ok := p.Lookup("calendar")
	require.True(t, ok, "ttl 0 never goes stale")
	assert.Equal(t, "Bahar dönemi", got.Payload)
	_, ok = p.Lookup("weather")
	assert.False(t, ok)

	fresh := p.Fresh()
	require.Len(t, fresh, 1)
	assert.Equal(t, "calendar", fresh[0].Topic)
}

func TestMergeIsCopyOnWrite(t *testing.T) {
	p := NewProvider()
	first := p.Merge([]model.FactSnippet{{Topic: "a", Payload: "1"}})
	second := p.Merge([]model.FactSnippet{{Topic: "b", Payload: "2"}})

	assert.Equal(t, uint64(1), first.Version)
	assert.Equal(t, uint64(2), second.Version)
	assert.Len(t, first.Snippets, 1, "old snapshot is not mutated")
	assert.Len(t, second.Snippets, 2)
	assert.Same(t, second, p.Snapshot())
}

func TestRefreshKeepsOldSnippetOnCollectorFailure(t *testing.T) {
	p := NewProvider()
	p.Merge([]model.FactSnippet{{Topic: "weather", Payload: "eski"}})

	good := &stubCollector{name: "file", snippets: []model.FactSnippet{{Topic: "menu", Payload: "Mantı"}}}
	bad := &stubCollector{name: "weather", err: errors.New("timeout")}
	r := NewRefresher(p, []Collector{good, bad}, nil, time.Second)

	report, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"menu"}, report.Updated)
	assert.Contains(t, report.Failed, "weather")

	w, ok := p.Lookup("weather")
	require.True(t, ok)
	assert.Equal(t, "eski", w.Payload)
	m, ok := p.Lookup("menu")
	require.True(t, ok)
	assert.Equal(t, "Mantı", m.Payload)
}

func TestRefreshAllFailed(t *testing.T) {
	p := NewProvider()
	r := NewRefresher(p, []Collector{&stubCollector{name: "x", err: errors.New("down")}}, nil, time.Second)
	_, err := r.Refresh(context.Background())
	assert.Error(t, err)
	assert.Equal(t, uint64(0), p.Snapshot().Version)
}

func TestConcurrentRefreshesAreDeduplicated(t *testing.T) {
	c := &stubCollector{name: "slow", delay: 50 * time.Millisecond, snippets: []model.FactSnippet{{Topic: "a", Payload: "1"}}}
	r := NewRefresher(NewProvider(), []Collector{c}, nil, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Refresh(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, c.calls.Load(), int32(2))
}

func TestArchiveRoundTripAndWarmStart(t *testing.T) {
	store := newMemStore()
	archive := NewArchive(store)

	p := NewProvider()
	r := NewRefresher(p, []Collector{&stubCollector{name: "file", snippets: []model.FactSnippet{
		{Topic: "announcements", Payload: "Kayıt yenileme başladı", FetchedAt: time.Now()},
	}}}, archive, time.Second)
	_, err := r.Refresh(context.Background())
	require.NoError(t, err)

	cold := NewProvider()
	r2 := NewRefresher(cold, nil, archive, time.Second)
	require.True(t, r2.WarmStart(context.Background()))
	got, ok := cold.Lookup("announcements")
	require.True(t, ok)
	assert.Equal(t, "Kayıt yenileme başladı", got.Payload)

	// 已有数据时不再覆盖
	assert.False(t, r2.WarmStart(context.Background()))

	empty := NewRefresher(NewProvider(), nil, NewArchive(newMemStore()), time.Second)
	assert.False(t, empty.WarmStart(context.Background()))
}

func TestFileCollector(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
snippets:
  - topic: menu
    payload: "Ezogelin çorba, tavuk sote"
    ttl: 12h
  - topic: calendar
    payload: "Final sınavları 10 Haziran'da başlar"
    fetched_at: 2024-05-01T08:00:00Z
  - topic: ""
    payload: "ignored"
`), 0o644))

	snippets, err := NewFileCollector(path, 24*time.Hour).Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, snippets, 2)
	assert.Equal(t, 12*time.Hour, snippets[0].TTL)
	assert.False(t, snippets[0].FetchedAt.IsZero(), "falls back to file mtime")
	assert.Equal(t, 24*time.Hour, snippets[1].TTL)
	assert.Equal(t, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), snippets[1].FetchedAt.UTC())

	_, err = NewFileCollector(filepath.Join(t.TempDir(), "none.yaml"), 0).Collect(context.Background())
	assert.Error(t, err)
}

type fakeWeather struct{ c weather.Conditions }

func (f fakeWeather) Current(context.Context, string) (weather.Conditions, error) { return f.c, nil }

func TestWeatherCollectorFormatsSnippet(t *testing.T) {
	c := NewWeatherCollector(fakeWeather{weather.Conditions{
		City: "Artvin", Main: "Rain", Description: "hafif yağmur",
		TempC: 9.6, FeelsLikeC: 7.4, Humidity: 88, WindKmh: 12.2, CloudPct: 75,
	}}, "Artvin,TR", 3*time.Hour)

	snippets, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, snippets, 1)
	assert.Equal(t, "weather", snippets[0].Topic)
	assert.Equal(t, 3*time.Hour, snippets[0].TTL)
	assert.Equal(t, "🌧️ Artvin: 10°C (hissedilen 7°C), hafif yağmur, nem %88, rüzgar 12 km/s, bulutluluk %75", snippets[0].Payload)
}
