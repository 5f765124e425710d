package conveyor

import "time"

// Schedule triggers a run of a definition family's published version on
// a cron expression.
type Schedule struct {
	ID           string     `json:"id"`
	DefinitionID string     `json:"definitionId"`
	CronExpr     string     `json:"cronExpr"`
	Timezone     string     `json:"timezone,omitempty"`
	Input        Variables  `json:"input,omitempty"`
	Disabled     bool       `json:"disabled"`
	LastRunAt    *time.Time `json:"lastRunAt,omitempty"`
	NextRunAt    time.Time  `json:"nextRunAt"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}
