package sandbox

import (
	"context"
	"time"

	"command-deck-server-go/internal/platform/logging"
	"command-deck-server-go/internal/util/work"
)

// DefaultHealthInterval is how often the sweeper re-probes every sandbox.
const DefaultHealthInterval = 5 * time.Minute

const (
	sweepWorkers = 4
	sweepRetries = 1

	// Rows suspected down are probed before rows believed healthy.
	priorityDown = 1
	priorityUp   = 0
)

// Sweeper re-probes every registered sandbox on a fixed interval so row
// status stays fresh without client-triggered checks. Probes fan out over
// a small worker pool.
type Sweeper struct {
	service  *Service
	logger   *logging.Logger
	interval time.Duration

	queue  *work.Queue[uint]
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper builds a sweeper. interval <= 0 selects the default.
func NewSweeper(service *Service, logger *logging.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	return &Sweeper{
		service:  service,
		logger:   logger,
		interval: interval,
	}
}

// Start launches the sweep loop. An initial sweep runs immediately so
// statuses settle right after boot.
func (s *Sweeper) Start(ctx context.Context) {
	if s.done != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.queue = work.NewQueue[uint](sweepWorkers, func(sandboxID uint) error {
		return s.service.checkByID(runCtx, sandboxID)
	})

	go s.loop(runCtx)
}

// Stop halts the loop and waits for in-flight probes to finish.
func (s *Sweeper) Stop() {
	if s.done == nil {
		return
	}
	s.cancel()
	<-s.done
	s.queue.Stop()
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	rows, err := s.service.listForSweep(ctx)
	if err != nil {
		s.logger.ErrorTag("Sandbox", "sweep listing failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	for _, row := range rows {
		priority := priorityUp
		if row.Status != StatusConnected {
			priority = priorityDown
		}
		if err := s.queue.SubmitWithRetries(row.ID, priority, sweepRetries); err != nil {
			return
		}
	}

	if len(rows) > 0 {
		s.logger.DebugTag("Sandbox", "sweep scheduled", map[string]interface{}{
			"count": len(rows),
		})
	}
}
