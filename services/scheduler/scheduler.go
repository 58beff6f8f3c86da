// Package schedulersvc runs the periodic background jobs of the API.
package schedulersvc

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/errors"

	"github.com/madrasa-app/madrasa/core"
	"github.com/madrasa-app/madrasa/core/account"
)

type Scheduler struct {
	scheduler gocron.Scheduler
	logger    core.Logger
}

func NewScheduler(logger core.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, errors.Wrap(err, "creating scheduler")
	}
	return &Scheduler{scheduler: s, logger: logger}, nil
}

// Every runs task every interval. A run still in progress when the next one is due delays it.
func (s *Scheduler) Every(name string, interval, timeout time.Duration, task func(ctx context.Context) error) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			if err := task(ctx); err != nil {
				s.logger.Error(fmt.Sprintf("job %s failed: %v", name, err), err)
			}
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	return errors.Wrapf(err, "registering job %s", name)
}

func (s *Scheduler) Start() {
	s.logger.Info(fmt.Sprintf("job scheduler starting: %d jobs", len(s.scheduler.Jobs())))
	s.scheduler.Start()
}

func (s *Scheduler) Shutdown() error {
	s.logger.Info("job scheduler shutting down")
	return s.scheduler.Shutdown()
}

// RegisterOTPSweeper schedules the removal of expired OTP challenges.
func RegisterOTPSweeper(s *Scheduler, svc *account.Service, conf *core.Config) error {
	interval := conf.OTP.SweepInterval
	return s.Every("otp-sweeper", interval, interval, func(ctx context.Context) error {
		n, err := svc.PurgeExpiredOTPs(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			s.logger.Debug(fmt.Sprintf("purged %d expired otp challenges", n))
		}
		return nil
	})
}
