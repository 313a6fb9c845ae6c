package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bobby-s-dev/weather-dashboard/internal/models"
	"github.com/bobby-s-dev/weather-dashboard/internal/services"
	"github.com/bobby-s-dev/weather-dashboard/pkg/client"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultInterval = 60 * time.Second

var (
	ErrEmptyLocation = errors.New("location is empty")
	ErrNotRunning    = errors.New("scheduler is not running")
)

// RefreshScheduler keeps the dashboard fresh for one tracked location:
// a fetch on start and on every location change, then one per interval.
//
// Ticks for the same location may overlap; the last completion wins.
// With SkipIfStillRunning a tick is dropped instead while a fetch for the
// tracked location is still in flight. A fetch whose location was
// replaced before it completed is discarded.
type RefreshScheduler struct {
	fetcher   services.WeatherFetcher
	dashboard *services.Dashboard
	timers    TimerFactory
	recorder  services.FetchRecorder
	logger    *zap.Logger
	interval  time.Duration
	clock     func() time.Time

	mu          sync.Mutex
	location    string
	generation  uint64
	timer       Timer
	running     bool
	skipOverlap bool
	active      int // fetches in flight for the current generation
	skipped     int
	lastRun     time.Time
	nextRun     time.Time

	inFlight sync.WaitGroup
}

func NewScheduler(fetcher services.WeatherFetcher, dashboard *services.Dashboard, timers TimerFactory, interval time.Duration, logger *zap.Logger) *RefreshScheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &RefreshScheduler{
		fetcher:   fetcher,
		dashboard: dashboard,
		timers:    timers,
		logger:    logger,
		interval:  interval,
		clock:     time.Now,
	}
}

// UseRecorder sets where completed fetches are recorded. Call before Start.
func (s *RefreshScheduler) UseRecorder(recorder services.FetchRecorder) {
	s.mu.Lock()
	s.recorder = recorder
	s.mu.Unlock()
}

// SkipIfStillRunning makes a tick a no-op while a fetch for the tracked
// location has not completed. ForceRun and location changes still fetch.
func (s *RefreshScheduler) SkipIfStillRunning(skip bool) {
	s.mu.Lock()
	s.skipOverlap = skip
	s.mu.Unlock()
}

// Start fetches location immediately and arms the recurring timer.
// It does nothing if the scheduler is already running.
func (s *RefreshScheduler) Start(location string) error {
	if strings.TrimSpace(location) == "" {
		return ErrEmptyLocation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Debug("Scheduler already running", zap.String("location", s.location))
		return nil
	}
	return s.startLocked(location)
}

// SetLocation switches the tracked location. The current timer is
// cancelled and the new location is fetched at once on a fresh timer.
// Setting the location already tracked by a running scheduler is a no-op.
func (s *RefreshScheduler) SetLocation(location string) error {
	if strings.TrimSpace(location) == "" {
		return ErrEmptyLocation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running && location == s.location {
		return nil
	}

	s.logger.Info("Location changed",
		zap.String("from", s.location),
		zap.String("to", location))

	s.stopTimerLocked()
	return s.startLocked(location)
}

// Stop cancels the recurring timer. Fetches already in flight still
// complete and publish their result. Stop is idempotent.
func (s *RefreshScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.logger.Info("Stopping scheduler", zap.String("location", s.location))
	s.stopTimerLocked()
}

// ForceRun fetches the tracked location now without touching the timer.
func (s *RefreshScheduler) ForceRun() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrNotRunning
	}

	s.logger.Info("Manually triggering weather fetch", zap.String("location", s.location))
	s.dispatchLocked()
	return nil
}

// Wait blocks until every dispatched fetch has completed.
func (s *RefreshScheduler) Wait() {
	s.inFlight.Wait()
}

func (s *RefreshScheduler) Location() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.location
}

func (s *RefreshScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *RefreshScheduler) GetStatus() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	return map[string]interface{}{
		"running":     s.running,
		"interval":    s.interval.String(),
		"location":    s.location,
		"last_run":    s.lastRun,
		"next_run":    s.nextRun,
		"timer_armed": s.timer != nil,
		"in_flight":   s.active,
		"skipped":     s.skipped,
	}
}

func (s *RefreshScheduler) startLocked(location string) error {
	generation := s.generation + 1

	timer, err := s.timers.Every(s.interval, func() { s.tick(generation) })
	if err != nil {
		return fmt.Errorf("arming refresh timer: %w", err)
	}

	s.location = location
	s.generation = generation
	s.active = 0
	s.timer = timer
	s.running = true
	s.nextRun = s.clock().Add(s.interval)

	s.logger.Info("Scheduler started",
		zap.String("location", location),
		zap.Duration("interval", s.interval),
		zap.Time("next_run", s.nextRun))

	// Run immediately on start
	s.dispatchLocked()
	return nil
}

func (s *RefreshScheduler) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.running = false
	s.nextRun = time.Time{}
}

func (s *RefreshScheduler) tick(generation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A tick from a timer that was cancelled while firing.
	if !s.running || generation != s.generation {
		return
	}

	s.nextRun = s.clock().Add(s.interval)
	if s.skipOverlap && s.active > 0 {
		s.skipped++
		s.logger.Debug("Skipping tick, previous fetch still running",
			zap.String("location", s.location),
			zap.Int("in_flight", s.active))
		return
	}
	s.logger.Debug("Scheduler tick", zap.Time("next_run", s.nextRun))
	s.dispatchLocked()
}

func (s *RefreshScheduler) dispatchLocked() {
	s.lastRun = s.clock()
	s.active++
	s.inFlight.Add(1)
	go s.runFetch(s.location, s.generation)
}

func (s *RefreshScheduler) runFetch(location string, generation uint64) {
	defer s.inFlight.Done()

	fetchID := uuid.NewString()
	startTime := s.clock()

	s.mu.Lock()
	if generation != s.generation {
		s.mu.Unlock()
		s.logger.Debug("Skipping fetch for replaced location",
			zap.String("fetch_id", fetchID),
			zap.String("location", location))
		return
	}
	s.dashboard.SetLoading(location)
	s.mu.Unlock()

	s.logger.Info("Starting weather fetch",
		zap.String("fetch_id", fetchID),
		zap.String("location", location))

	report, err := s.fetch(location)
	completedAt := s.clock()

	record := models.FetchRecord{
		ID:          fetchID,
		Location:    location,
		StartedAt:   startTime,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startTime),
	}

	s.mu.Lock()
	if generation == s.generation {
		s.active--
	}
	switch {
	case generation != s.generation:
		s.dashboard.RecordDiscard()
		record.Outcome = models.OutcomeDiscarded
	case err != nil:
		s.dashboard.SetError(location, err.Error())
		record.Outcome = models.OutcomeErrored
		record.ErrorKind = string(client.KindOf(err))
		record.Message = err.Error()
	default:
		s.dashboard.SetReady(location, report, completedAt)
		record.Outcome = models.OutcomeReady
		record.Temperature = report.Current.Temperature
	}
	recorder := s.recorder
	s.mu.Unlock()

	switch record.Outcome {
	case models.OutcomeDiscarded:
		s.logger.Info("Discarded fetch for replaced location",
			zap.String("fetch_id", fetchID),
			zap.String("location", location),
			zap.Duration("duration", record.Duration))
	case models.OutcomeErrored:
		s.logger.Warn("Weather fetch failed",
			zap.String("fetch_id", fetchID),
			zap.String("location", location),
			zap.String("kind", record.ErrorKind),
			zap.Error(err),
			zap.NamedError("cause", errors.Unwrap(err)),
			zap.Duration("duration", record.Duration))
	default:
		s.logger.Info("Weather fetch completed",
			zap.String("fetch_id", fetchID),
			zap.String("location", location),
			zap.Duration("duration", record.Duration))
	}

	if recorder != nil {
		s.record(recorder, record)
	}
}

// fetch calls the fetcher, turning a panic into a failed fetch.
func (s *RefreshScheduler) fetch(location string) (report *models.Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Weather fetcher panicked",
				zap.String("location", location),
				zap.Any("panic", r),
				zap.Stack("stack"))
			report = nil
			err = &client.FetchError{
				Kind:    client.KindInternal,
				Message: client.MessageCityNotFound,
				Err:     fmt.Errorf("fetcher panicked: %v", r),
			}
		}
	}()
	return s.fetcher.FetchWeather(context.Background(), location)
}

func (s *RefreshScheduler) record(recorder services.FetchRecorder, record models.FetchRecord) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Fetch recorder panicked",
				zap.String("fetch_id", record.ID),
				zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := recorder.RecordFetch(ctx, record); err != nil {
		s.logger.Warn("Failed to record fetch",
			zap.String("fetch_id", record.ID),
			zap.Error(err))
	}
}
