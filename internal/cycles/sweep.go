package cycles

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
)

const sweepTimeout = 30 * time.Second

// StartSweeper runs GetCurrentWithCountdown every interval so a due
// transition happens even without read traffic. Callers own the returned
// scheduler and must Shutdown it.
func (s *Service) StartSweeper(interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(s.schedule.Location))
	if err != nil {
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.sweep),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("scheduling sweep: %w", err)
	}

	sched.Start()
	s.logger.Info().Dur("interval", interval).Msg("transition sweeper started")
	return sched, nil
}

func (s *Service) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	if _, err := s.GetCurrentWithCountdown(ctx); err != nil {
		s.logger.Error().Err(err).Msg("transition sweep failed")
	}
}
