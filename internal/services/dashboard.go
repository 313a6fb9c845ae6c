package services

import (
	"context"
	"sync"
	"time"

	"github.com/bobby-s-dev/weather-dashboard/internal/models"
	"go.uber.org/zap"
)

// WeatherFetcher performs one fetch attempt for a location.
type WeatherFetcher interface {
	FetchWeather(ctx context.Context, location string) (*models.Report, error)
}

// FetchRecorder stores completed fetch attempts.
type FetchRecorder interface {
	RecordFetch(ctx context.Context, record models.FetchRecord) error
}

// Dashboard owns the single RefreshState shown to the presentation layer,
// together with the last successful report and its completion time.
type Dashboard struct {
	logger *zap.Logger

	mu             sync.RWMutex
	state          models.RefreshState
	lastReport     *models.Report
	lastUpdated    time.Time
	lastFetchTime  time.Time
	successCount   int
	failureCount   int
	discardedCount int

	subMu       sync.Mutex
	subscribers map[int]chan models.Snapshot
	nextSubID   int
	closed      bool
}

func NewDashboard(logger *zap.Logger) *Dashboard {
	return &Dashboard{
		logger:      logger,
		state:       models.IdleState(),
		subscribers: make(map[int]chan models.Snapshot),
	}
}

// SetLoading marks a fetch for location as dispatched. The last
// successful report is kept.
func (d *Dashboard) SetLoading(location string) {
	d.mu.Lock()
	d.state = models.LoadingState(location)
	d.lastFetchTime = time.Now()
	d.publish(d.snapshotLocked())
	d.mu.Unlock()
}

// SetReady publishes a successful fetch completed at completedAt.
func (d *Dashboard) SetReady(location string, report *models.Report, completedAt time.Time) {
	d.mu.Lock()
	d.state = models.ReadyState(location, report)
	d.lastReport = report
	d.lastUpdated = completedAt
	d.successCount++
	d.publish(d.snapshotLocked())
	d.mu.Unlock()

	d.logger.Debug("Weather state ready",
		zap.String("location", location),
		zap.Time("last_updated", completedAt))
}

// SetError publishes a failed fetch. LastUpdated is left untouched.
func (d *Dashboard) SetError(location, message string) {
	d.mu.Lock()
	d.state = models.ErroredState(location, message)
	d.failureCount++
	d.publish(d.snapshotLocked())
	d.mu.Unlock()

	d.logger.Debug("Weather state errored",
		zap.String("location", location),
		zap.String("message", message))
}

// RecordDiscard counts a completion dropped because its location was
// replaced while it was in flight.
func (d *Dashboard) RecordDiscard() {
	d.mu.Lock()
	d.discardedCount++
	d.mu.Unlock()
}

func (d *Dashboard) Snapshot() models.Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshotLocked()
}

func (d *Dashboard) State() models.RefreshState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// LastUpdated returns the completion time of the last successful fetch,
// or the zero time if there has been none.
func (d *Dashboard) LastUpdated() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastUpdated
}

func (d *Dashboard) snapshotLocked() models.Snapshot {
	snap := models.Snapshot{
		State:      d.state,
		LastReport: d.lastReport,
	}
	if !d.lastUpdated.IsZero() {
		lastUpdated := d.lastUpdated
		snap.LastUpdated = &lastUpdated
	}
	return snap
}

// Subscribe returns a channel that receives a snapshot after every state
// transition, and a function that unsubscribes. A slow reader only ever
// sees the latest snapshot; publishing never blocks.
func (d *Dashboard) Subscribe() (<-chan models.Snapshot, func()) {
	d.subMu.Lock()
	defer d.subMu.Unlock()

	ch := make(chan models.Snapshot, 1)
	if d.closed {
		close(ch)
		return ch, func() {}
	}

	id := d.nextSubID
	d.nextSubID++
	d.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			d.subMu.Lock()
			defer d.subMu.Unlock()
			if sub, ok := d.subscribers[id]; ok {
				delete(d.subscribers, id)
				close(sub)
			}
		})
	}
}

// publish must be called with d.mu held so subscribers observe
// transitions in the order they were applied.
func (d *Dashboard) publish(snap models.Snapshot) {
	d.subMu.Lock()
	defer d.subMu.Unlock()

	for _, ch := range d.subscribers {
		select {
		case ch <- snap:
			continue
		default:
		}
		// Replace the pending snapshot with the newer one.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// Close ends every subscription. Later subscriptions are closed at once.
func (d *Dashboard) Close() {
	d.subMu.Lock()
	defer d.subMu.Unlock()

	if d.closed {
		return
	}
	d.closed = true
	for id, ch := range d.subscribers {
		delete(d.subscribers, id)
		close(ch)
	}
}

func (d *Dashboard) GetStats() map[string]interface{} {
	d.mu.RLock()
	stats := map[string]interface{}{
		"status":          d.state.Status(),
		"location":        d.state.Location(),
		"last_fetch_time": d.lastFetchTime,
		"last_updated":    d.lastUpdated,
		"success_count":   d.successCount,
		"failure_count":   d.failureCount,
		"discarded_count": d.discardedCount,
	}
	d.mu.RUnlock()

	d.subMu.Lock()
	stats["subscribers"] = len(d.subscribers)
	d.subMu.Unlock()

	return stats
}
