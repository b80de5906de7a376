package dispatch

// PrioritizedJob is one entry of the dispatch ordering.
type PrioritizedJob struct {
	JobID         string `json:"job_id"`
	Rank          int    `json:"rank"`
	ScheduledSlot string `json:"scheduled_slot,omitempty"` // HH:MM
	Reason        string `json:"reason,omitempty"`
}

// Result is the dispatch stage output embedded in the plan record.
type Result struct {
	PrioritizedJobs       []PrioritizedJob `json:"prioritized_jobs"`
	SchedulingConstraints map[string]any   `json:"scheduling_constraints"`
	Recommendations       []string         `json:"recommendations"`
	AgentReasoning        string           `json:"agent_reasoning"`
}
