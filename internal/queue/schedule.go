package queue

import (
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/lexlink/internal/pipeline"
	"github.com/OFFIS-RIT/lexlink/pkg/common"
	"github.com/OFFIS-RIT/lexlink/pkg/logger"

	"github.com/robfig/cron/v3"
)

// EnqueueRuns publishes a full run message for every country. Publishing
// continues after a failure; the returned error joins all failures.
func EnqueueRuns(ch Channel, queueName string, countries []common.Country) error {
	var errs []error
	for _, c := range countries {
		msg, err := NewLinkageMsg(pipeline.Run, c)
		if err == nil {
			err = Enqueue(ch, queueName, msg)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c, err))
			continue
		}
		logger.Debug("[Queue] Scheduled linkage run", "country", c, "correlation_id", msg.CorrelationID)
	}
	return errors.Join(errs...)
}

// NewScheduler returns a stopped cron that enqueues runs for countries on
// every tick of schedule. schedule uses the standard five field format and
// the @hourly style descriptors.
func NewScheduler(schedule string, ch Channel, queueName string, countries []common.Country) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if err := EnqueueRuns(ch, queueName, countries); err != nil {
			logger.Error("[Queue] Failed to schedule linkage runs", "err", err)
			return
		}
		logger.Info("[Queue] Scheduled linkage runs", "countries", len(countries))
	})
	if err != nil {
		return nil, fmt.Errorf("invalid linkage schedule %q: %w", schedule, err)
	}
	return c, nil
}
