package notifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/riskibarqy/rank-tracker/internal/domain/report"
	"github.com/riskibarqy/rank-tracker/internal/usecase"
)

// Router dispatches a channel ref to the publisher that serves it.
type Router struct {
	webhooks *WebhookPublisher
	log      *LogPublisher
}

var _ usecase.Publisher = (*Router)(nil)

func NewRouter(webhooks *WebhookPublisher, log *LogPublisher) *Router {
	return &Router{webhooks: webhooks, log: log}
}

func (r *Router) Publish(ctx context.Context, channelRef string, formatted report.Formatted) error {
	ref := strings.TrimSpace(channelRef)
	switch {
	case ref == LogChannel && r.log != nil:
		return r.log.Publish(ctx, ref, formatted)
	case r.webhooks != nil && r.webhooks.Handles(ref):
		return r.webhooks.Publish(ctx, ref, formatted)
	default:
		return fmt.Errorf("%w: no publisher for channel %q", usecase.ErrDeliveryFailed, channelRef)
	}
}
