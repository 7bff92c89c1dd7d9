package scheduler

import (
	"encoding/json"
	"fmt"
	"time"

	"followup_backend/internal/followups/domain"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const TaskFollowupCycle = "followups.cycle"

const TaskFollowupRun = "followups.run"

const TaskFollowupSend = "followups.send"

// FollowupRunPayload asks the worker for one pass carrying event signals.
type FollowupRunPayload struct {
	OrganizationID string               `json:"organizationId"`
	Signals        []domain.EventSignal `json:"signals"`
}

// FollowupSendPayload is a composed follow-up waiting for its send time.
type FollowupSendPayload struct {
	OrganizationID string    `json:"organizationId"`
	LeadID         string    `json:"leadId"`
	RuleID         string    `json:"ruleId"`
	Recipient      string    `json:"recipient"`
	Body           string    `json:"body"`
	Source         string    `json:"source"`
	Style          string    `json:"style"`
	Trigger        string    `json:"trigger,omitempty"`
	SendAt         time.Time `json:"sendAt"`
	QualifiedAt    time.Time `json:"qualifiedAt"`
}

func NewFollowupCycleTask() *asynq.Task {
	return asynq.NewTask(TaskFollowupCycle, nil)
}

func NewFollowupRunTask(payload FollowupRunPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFollowupRun, data), nil
}

func ParseFollowupRunPayload(task *asynq.Task) (FollowupRunPayload, error) {
	var payload FollowupRunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return FollowupRunPayload{}, err
	}
	return payload, nil
}

func NewFollowupSendTask(payload FollowupSendPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFollowupSend, data), nil
}

func ParseFollowupSendPayload(task *asynq.Task) (FollowupSendPayload, error) {
	var payload FollowupSendPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return FollowupSendPayload{}, err
	}
	return payload, nil
}

// sendTaskID makes re-dispatching the same reservation a no-op.
func sendTaskID(send domain.ScheduledSend) string {
	return fmt.Sprintf("followup:%s:%s:%d", send.LeadID, send.RuleID, send.QualifiedAt.UTC().UnixMicro())
}

func parseIDs(raw ...string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, len(raw))
	for i, r := range raw {
		id, err := uuid.Parse(r)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", r, err)
		}
		ids[i] = id
	}
	return ids, nil
}
