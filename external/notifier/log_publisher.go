package notifier

import (
	"context"

	"github.com/riskibarqy/rank-tracker/internal/domain/report"
	"github.com/riskibarqy/rank-tracker/internal/platform/logging"
)

// LogChannel is the channel ref served by LogPublisher.
const LogChannel = "log"

// LogPublisher writes reports to the structured log.
type LogPublisher struct {
	logger *logging.Logger
}

func NewLogPublisher(logger *logging.Logger) *LogPublisher {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, channelRef string, formatted report.Formatted) error {
	p.logger.InfoContext(ctx, "report",
		"channel", channelRef,
		"title", formatted.Title,
		"entries", len(formatted.Entries),
		"body", formatted.PlainText(),
	)
	return nil
}
