package taskname

const (
	// Reward tasks
	RewardCredit = "reward:credit"

	// Streak tasks
	StreakRecordActivity = "streak:record_activity"
)
