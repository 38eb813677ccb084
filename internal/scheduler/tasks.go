package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskDispatchLead = "matching.dispatch_lead"

const TaskSweepExpired = "matching.sweep_expired"

type DispatchLeadPayload struct {
	LeadID string `json:"leadId"`
}

func NewDispatchLeadTask(payload DispatchLeadPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDispatchLead, data), nil
}

func ParseDispatchLeadPayload(task *asynq.Task) (DispatchLeadPayload, error) {
	var payload DispatchLeadPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return DispatchLeadPayload{}, err
	}
	return payload, nil
}

func NewSweepExpiredTask() *asynq.Task {
	return asynq.NewTask(TaskSweepExpired, nil)
}
