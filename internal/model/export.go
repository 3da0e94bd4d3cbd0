package model

import "time"

// SessionExport is the top-level JSON structure written by the export command.
type SessionExport struct {
	UID        string          `json:"uid"`
	Email      string          `json:"email"`
	ExportedAt time.Time       `json:"exported_at"`
	Account    ExportedAccount `json:"account"`
	Sessions   []SessionRecord `json:"sessions"`
}

// ExportedAccount is the rollup subset of a UserAccount included in exports.
type ExportedAccount struct {
	Entitlement         string   `json:"entitlement"`
	UsageCount          int      `json:"usage_count"`
	SessionsCompleted   int      `json:"sessions_completed"`
	RollingAverageScore *float64 `json:"rolling_average_score,omitempty"`
}
