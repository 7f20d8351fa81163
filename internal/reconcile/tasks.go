// Package reconcile routes inbound events that carried no usable identifier
// into a durable manual-review queue. The webhook handlers enqueue through
// Redis so a burst of unidentifiable traffic never blocks the request path;
// a worker drains the queue into Postgres where reviewers pick items up.
package reconcile

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// TaskManualReview is the asynq task type for unidentifiable inbound events.
const TaskManualReview = "leads.manual_review"

// ManualReviewPayload carries everything a reviewer needs to identify the
// contact by hand: the source, the tenant, and the untouched inbound payload.
type ManualReviewPayload struct {
	OrganizationID string          `json:"organizationId"`
	Source         string          `json:"source"`
	CorrelationID  string          `json:"correlationId"`
	RawPayload     json.RawMessage `json:"rawPayload"`
	Reason         string          `json:"reason"`
}

// NewManualReviewTask builds the asynq task for a manual-review item.
func NewManualReviewTask(payload ManualReviewPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskManualReview, data), nil
}

// ParseManualReviewPayload decodes a manual-review task payload.
func ParseManualReviewPayload(task *asynq.Task) (ManualReviewPayload, error) {
	var payload ManualReviewPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ManualReviewPayload{}, err
	}
	return payload, nil
}
