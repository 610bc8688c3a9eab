package cache

import (
	"context"
	"time"

	"Friday_1.0/pkg/logger"
)

// Sweeper periodically purges expired cache entries and applies history
// memory pressure, so neither grows unbounded between requests.
type Sweeper struct {
	cache    *Cache
	history  *History
	interval time.Duration
	log      *logger.Logger
	stop     chan struct{}
	done     chan struct{}
}

// NewSweeper builds a sweeper over the given cache and history. Either
// may be nil; the corresponding sweep is skipped.
func NewSweeper(cache *Cache, history *History, interval time.Duration) *Sweeper {
	return &Sweeper{
		cache:    cache,
		history:  history,
		interval: interval,
		log:      logger.New("CacheSweeper", ""),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the background sweep loop. Call Stop to end it.
func (s *Sweeper) Start() {
	go s.run()
}

// Stop ends the sweep loop and waits for the in-flight pass to finish.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Sweeper) run() {
	defer close(s.done)

	interval := s.interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	expired, dropped := 0, 0
	if s.cache != nil {
		expired = s.cache.SweepExpired(ctx)
	}
	if s.history != nil {
		dropped = s.history.ApplyPressure()
	}
	if expired > 0 || dropped > 0 {
		s.log.WithPayload(map[string]interface{}{
			"expired_entries": expired,
			"history_dropped": dropped,
		}).Info("Sweep pass complete")
	}
}
