package monitor

import "time"

type Status struct {
	PostgreSQL   bool      `json:"postgresql"`
	Redis        bool      `json:"redis"`
	Scheduler    bool      `json:"scheduler"`
	PendingTasks int       `json:"pending_tasks"`
	LastCheck    time.Time `json:"last_check"`
}
