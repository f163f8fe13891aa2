package database

import "time"

// CommandRecord é uma linha do journal: o diagnóstico terminal de um comando git.
type CommandRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CommandID  string    `gorm:"uniqueIndex;not null" json:"commandId"`
	Repo       string    `gorm:"index;not null" json:"repo"`
	Action     string    `gorm:"index;not null" json:"action"`
	Args       string    `gorm:"type:text" json:"args"` // JSON de []string já sanitizado
	Status     string    `gorm:"not null" json:"status"`
	ExitCode   int       `json:"exitCode"`
	DurationMs int64     `json:"durationMs"`
	Attempt    int       `gorm:"default:1" json:"attempt"`
	ErrorKind  string    `gorm:"index" json:"errorKind,omitempty"`
	Stderr     string    `gorm:"type:text" json:"stderr,omitempty"`
	CreatedAt  time.Time `gorm:"index" json:"createdAt"`
}
