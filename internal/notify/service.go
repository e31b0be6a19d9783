package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukerupert/chorewheel/internal/model"
)

// RecordChannel is the channel name logged for recipients with no open
// channel.
const RecordChannel = "record"

// DeliveryLog persists delivery records and remembers which reminders went
// out for which cycle.
type DeliveryLog interface {
	Record(ctx context.Context, rec *model.NotificationRecord) error
	WasSent(ctx context.Context, choreID int64, cycleStart time.Time, urgency model.Urgency) (bool, error)
	RecordSent(ctx context.Context, choreID int64, cycleStart time.Time, urgency model.Urgency) error
}

// Service hands intents to the transport and logs the outcome. Reminders
// are sent at most once per chore cycle and urgency.
type Service struct {
	transport Transport
	log       DeliveryLog
	logger    *slog.Logger
}

func NewService(transport Transport, log DeliveryLog, logger *slog.Logger) *Service {
	return &Service{transport: transport, log: log, logger: logger}
}

// Deliver sends every intent and returns one result per intent. Delivery
// problems are reported in the results and the log; they are never
// returned as errors.
func (s *Service) Deliver(ctx context.Context, intents []model.NotificationIntent) []model.DeliveryResult {
	results := make([]model.DeliveryResult, 0, len(intents))
	for _, intent := range intents {
		if ctx.Err() != nil {
			break
		}
		results = append(results, s.deliverOne(ctx, intent))
	}
	return results
}

func (s *Service) deliverOne(ctx context.Context, intent model.NotificationIntent) model.DeliveryResult {
	dedup := intent.Urgency.IsReminder()
	if dedup {
		sent, err := s.log.WasSent(ctx, intent.ChoreID, intent.CycleStart, intent.Urgency)
		if err != nil {
			s.logger.Error("check sent reminder", "chore_id", intent.ChoreID, "error", err)
		}
		if sent {
			return model.DeliveryResult{Intent: intent, Skipped: true}
		}
	}

	res := s.transport.Send(ctx, intent)
	s.record(ctx, res)

	if dedup {
		if err := s.log.RecordSent(ctx, intent.ChoreID, intent.CycleStart, intent.Urgency); err != nil {
			s.logger.Error("record sent reminder", "chore_id", intent.ChoreID, "error", err)
		}
	}

	s.logger.Debug("intent delivered",
		"chore_id", intent.ChoreID,
		"urgency", intent.Urgency,
		"recipients", len(intent.Recipients),
		"attempts", len(res.Attempts),
		"failed", res.Failed(),
	)
	return res
}

func (s *Service) record(ctx context.Context, res model.DeliveryResult) {
	intent := res.Intent
	var choreID *int64
	if intent.ChoreID != 0 {
		id := intent.ChoreID
		choreID = &id
	}

	byMember := map[int64][]model.DeliveryAttempt{}
	for _, a := range res.Attempts {
		byMember[a.MemberID] = append(byMember[a.MemberID], a)
	}

	for _, r := range intent.Recipients {
		memberID := r.MemberID
		base := model.NotificationRecord{
			HouseholdID: intent.HouseholdID,
			ChoreID:     choreID,
			MemberID:    &memberID,
			MemberName:  r.Name,
			ChoreTitle:  intent.ChoreTitle,
			Message:     intent.Message,
			Urgency:     intent.Urgency,
		}

		attempts := byMember[r.MemberID]
		if len(attempts) == 0 {
			rec := base
			rec.Channel = RecordChannel
			rec.Status = model.NotificationRecorded
			s.write(ctx, &rec)
			continue
		}
		for _, a := range attempts {
			rec := base
			rec.Channel = string(a.Channel)
			rec.Status = model.NotificationSent
			if a.Err != nil {
				rec.Status = model.NotificationFailed
				rec.Error = a.Err.Error()
			}
			s.write(ctx, &rec)
		}
	}
}

func (s *Service) write(ctx context.Context, rec *model.NotificationRecord) {
	if err := s.log.Record(ctx, rec); err != nil {
		s.logger.Error("record notification", "chore_id", rec.ChoreID, "channel", rec.Channel, "error", err)
	}
}
