package syncqueue

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/estoca-ai/estoca-worker/internal/cachestore"
	"github.com/estoca-ai/estoca-worker/internal/logger"
	"github.com/estoca-ai/estoca-worker/internal/strategy"
)

// probeTimeout bounds a single connectivity probe.
const probeTimeout = 5 * time.Second

// TriggerFunc fires a sync event for tag.
type TriggerFunc func(tag string)

// Monitor probes the upstream periodically and fires a sync event when
// connectivity comes back after an outage.
type Monitor struct {
	fetcher  strategy.Fetcher
	probe    cachestore.Key
	interval time.Duration
	tag      string
	trigger  TriggerFunc
	log      logger.Logger

	online   atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMonitor creates a monitor. It assumes the upstream starts online.
func NewMonitor(fetcher strategy.Fetcher, probe cachestore.Key, interval time.Duration, tag string, trigger TriggerFunc, log logger.Logger) *Monitor {
	m := &Monitor{
		fetcher:  fetcher,
		probe:    probe,
		interval: interval,
		tag:      tag,
		trigger:  trigger,
		log:      log.Module("connectivity"),
		stopCh:   make(chan struct{}),
	}
	m.online.Store(true)
	return m
}

// Online reports the last observed connectivity.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Start launches the probe loop. A non-positive interval disables it.
func (m *Monitor) Start() {
	if m.interval <= 0 {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Check(context.Background())
			case <-m.stopCh:
				return
			}
		}
	}()
	m.log.Info("connectivity monitor started", logger.Duration("interval", m.interval))
}

// Stop ends the probe loop and waits for it. Safe to call multiple times.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	m.wg.Wait()
}

// Check probes once and fires the trigger on an offline to online transition.
// Any HTTP response counts as online; only a network failure counts as offline.
func (m *Monitor) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	_, err := m.fetcher.Fetch(ctx, &strategy.Request{
		Key:    cachestore.Key{Method: http.MethodHead, URL: m.probe.URL},
		Header: http.Header{},
	})
	online := err == nil
	was := m.online.Swap(online)

	switch {
	case online && !was:
		m.log.Info("upstream reachable again, firing sync", logger.String("tag", m.tag))
		if m.trigger != nil {
			m.trigger(m.tag)
		}
	case !online && was:
		m.log.Warn("upstream unreachable", logger.Error(err))
	}
	return online
}
