package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/lake-powell-etl/internal/domain"
	"github.com/couchcryptid/lake-powell-etl/internal/reconcile"
	"github.com/jonboulle/clockwork"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func freezeClock(t *testing.T, at time.Time) {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(at))
	t.Cleanup(func() { domain.SetClock(nil) })
}

func waterRecords(start, end time.Time) []domain.WaterRecord {
	var out []domain.WaterRecord
	for i, d := range domain.DateRange(start, end) {
		out = append(out, domain.WaterRecord{
			Date:      d,
			Elevation: 3550 + float64(i)*0.1,
			Content:   8000000 + int64(i)*1000,
			Inflow:    5000,
			Outflow:   7000,
		})
	}
	return out
}

// --- store ---

type fakeStore struct {
	mu        sync.Mutex
	water     map[time.Time]domain.WaterRecord
	weather   map[time.Time]domain.WeatherRecord
	failDates map[time.Time]bool
	latestErr error
	bulkCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		water:     map[time.Time]domain.WaterRecord{},
		weather:   map[time.Time]domain.WeatherRecord{},
		failDates: map[time.Time]bool{},
	}
}

func (s *fakeStore) LatestWaterDate(context.Context) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latestErr != nil {
		return nil, s.latestErr
	}
	return latest(s.water), nil
}

func (s *fakeStore) UpsertWater(_ context.Context, rec domain.WaterRecord, overwrite bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDates[rec.Date] {
		return errors.New("constraint violation")
	}
	if _, ok := s.water[rec.Date]; ok && !overwrite {
		return nil
	}
	s.water[rec.Date] = rec
	return nil
}

func (s *fakeStore) BulkUpsertWater(_ context.Context, recs []domain.WaterRecord, overwrite bool) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bulkCalls++
	for _, rec := range recs {
		if s.failDates[rec.Date] {
			return 0, 0, errors.New("constraint violation")
		}
	}
	inserted, updated := 0, 0
	for _, rec := range recs {
		if _, ok := s.water[rec.Date]; ok {
			if overwrite {
				s.water[rec.Date] = rec
				updated++
			}
			continue
		}
		s.water[rec.Date] = rec
		inserted++
	}
	return inserted, updated, nil
}

func (s *fakeStore) ExistingWaterDates(_ context.Context, start, end time.Time) (map[time.Time]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[time.Time]bool{}
	for d := range s.water {
		if !d.Before(start) && !d.After(end) {
			out[d] = true
		}
	}
	return out, nil
}

func (s *fakeStore) LatestWeatherDate(context.Context) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return latest(s.weather), nil
}

func (s *fakeStore) InsertWeather(_ context.Context, rec domain.WeatherRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.weather[rec.Date]; ok {
		return false, nil
	}
	s.weather[rec.Date] = rec
	return true, nil
}

func (s *fakeStore) waterDates() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Time
	for d := range s.water {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func latest[V any](m map[time.Time]V) *time.Time {
	var newest *time.Time
	for d := range m {
		if newest == nil || d.After(*newest) {
			newest = &d
		}
	}
	return newest
}

// --- fetchers ---

type rangeCall struct{ start, end time.Time }

type fakeFetcher struct {
	mu    sync.Mutex
	calls []rangeCall
	fn    func(start, end time.Time) ([]domain.WaterRecord, error)
}

func (f *fakeFetcher) FetchRange(_ context.Context, start, end time.Time) ([]domain.WaterRecord, string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, rangeCall{start, end})
	f.mu.Unlock()
	recs, err := f.fn(start, end)
	if err != nil {
		return nil, "", err
	}
	if len(recs) == 0 {
		return nil, "", reconcile.ErrNoData
	}
	return recs, "fake", nil
}

func serveAll() func(start, end time.Time) ([]domain.WaterRecord, error) {
	return func(start, end time.Time) ([]domain.WaterRecord, error) {
		return waterRecords(start, end), nil
	}
}

type fakeWeather struct {
	err   error
	calls int
}

func (w *fakeWeather) Fetch(_ context.Context, d time.Time) (*domain.WeatherRecord, error) {
	w.calls++
	if w.err != nil {
		return nil, w.err
	}
	if !d.Equal(domain.Today()) {
		return nil, nil
	}
	return &domain.WeatherRecord{Date: d, HighTemp: domain.Float(71), LowTemp: domain.Float(48)}, nil
}

type published struct {
	runID string
	recs  []domain.WaterRecord
}

type fakeSink struct {
	mu    sync.Mutex
	calls []published
}

func (s *fakeSink) PublishBatch(_ context.Context, runID string, recs []domain.WaterRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, published{runID: runID, recs: recs})
	return nil
}
