package queue

import (
	"context"
	"errors"
	"time"

	"github.com/OFFIS-RIT/lexlink/internal/pipeline"
	"github.com/OFFIS-RIT/lexlink/pkg/common"
	"github.com/OFFIS-RIT/lexlink/pkg/country"
	"github.com/OFFIS-RIT/lexlink/pkg/logger"
)

// ErrPermanent marks messages that can never succeed. They are dropped
// instead of being retried.
var ErrPermanent = errors.New("permanent message error")

// ProcessLinkageMessage runs the operation requested by body. A busy
// country lease is returned as an ordinary error so the message is retried
// later.
func ProcessLinkageMessage(
	ctx context.Context,
	passes pipeline.Passes,
	profiles *country.Registry,
	body []byte,
) error {
	msg, err := ParseLinkageMsg(body)
	if err != nil {
		return errors.Join(ErrPermanent, err)
	}
	if _, err := profiles.Get(msg.Country); err != nil {
		return errors.Join(ErrPermanent, err)
	}

	started := time.Now()
	logger.Info("[Queue] Processing linkage message",
		"operation", msg.Operation, "country", msg.Country, "correlation_id", msg.CorrelationID)

	_, err = pipeline.Execute(ctx, passes, []common.Country{msg.Country}, msg.Operation)
	if err != nil {
		return err
	}
	logger.Info("[Queue] Linkage message done",
		"operation", msg.Operation, "country", msg.Country, "correlation_id", msg.CorrelationID,
		"duration", time.Since(started))
	return nil
}
