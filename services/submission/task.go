package submission

import (
	"encoding/json"

	"questplane/pkg/taskname"

	"github.com/hibiken/asynq"
)

// RewardCreditPayload is emitted once per approved submission that
// carries a positive reward. ReferenceID is the submission ID, the
// consumer deduplicates on it.
type RewardCreditPayload struct {
	Wallet      string `json:"wallet"`
	Points      int64  `json:"points"`
	Source      string `json:"source"`
	ReferenceID string `json:"reference_id"`
	TraceID     string `json:"trace_id,omitempty"`
}

func NewRewardCreditTask(p RewardCreditPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.RewardCredit, payload,
		asynq.Queue("critical"), asynq.MaxRetry(10)), nil
}
