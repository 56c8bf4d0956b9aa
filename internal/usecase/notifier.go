package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/marginguard/marginguard/internal/domain"
	"go.uber.org/zap"
)

// Notifier fans an execution result out to the automation's notification
// channels. The channel set is re-filtered against the tier here even
// though writes were validated, so a stale or hand-edited configuration
// can never reach a channel its tier does not own.
type Notifier struct {
	transport domain.NotificationTransport
	logger    *zap.Logger
}

func NewNotifier(transport domain.NotificationTransport, logger *zap.Logger) *Notifier {
	return &Notifier{
		transport: transport,
		logger:    logger,
	}
}

type notificationPayload struct {
	AutomationID string                `json:"automation_id"`
	Success      bool                  `json:"success"`
	Actions      []domain.ActionRecord `json:"actions"`
	Errors       []string              `json:"errors,omitempty"`
}

// Dispatch emits one best-effort attempt per allowed channel and returns
// the per-channel decision records. Results without actions are not
// dispatched at all.
func (n *Notifier) Dispatch(ctx context.Context, tier domain.Tier, cfg domain.Configuration, result *domain.ExecutionResult) []domain.NotificationRecord {
	if len(result.Actions) == 0 {
		return nil
	}

	payload, err := json.Marshal(notificationPayload{
		AutomationID: result.AutomationID,
		Success:      result.Success,
		Actions:      result.Actions,
		Errors:       result.Errors,
	})
	if err != nil {
		n.logger.Error("notification payload marshal failed", zap.Error(err))
		return nil
	}

	caps := domain.CapabilitiesFor(tier)
	var records []domain.NotificationRecord

	for _, ch := range cfg.NotificationChannels {
		if !caps.AllowsChannel(ch) {
			n.logger.Warn("configured channel outside tier, skipping",
				zap.String("automation_id", result.AutomationID),
				zap.String("channel", string(ch)))
			records = append(records, domain.NotificationRecord{
				Channel: ch,
				Detail:  "channel not allowed on tier",
			})
			notificationsTotal.WithLabelValues(string(ch), "filtered").Inc()
			continue
		}

		rec := domain.NotificationRecord{Channel: ch, Dispatched: true}
		if err := n.transport.Send(ctx, ch, payload); err != nil {
			rec.Dispatched = false
			rec.Detail = fmt.Sprintf("send failed: %v", err)
			notificationsTotal.WithLabelValues(string(ch), "error").Inc()
			n.logger.Warn("notification dispatch failed",
				zap.String("channel", string(ch)), zap.Error(err))
		} else {
			notificationsTotal.WithLabelValues(string(ch), "ok").Inc()
		}
		records = append(records, rec)
	}

	return records
}
