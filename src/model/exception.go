package model

import "time"

// Exception stores unexpected failures with their stack and call context for
// later inspection. Expected control-flow outcomes (blocked trades, throttled
// alerts) never land here; they are lifecycle events.
type Exception struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Service   string    `gorm:"size:100" json:"service"`
	Module    string    `gorm:"size:100" json:"module"`
	Method    string    `gorm:"size:100" json:"method"`
	Message   string    `gorm:"size:1024" json:"message"`
	Stack     string    `gorm:"type:text" json:"stack"`
	Level     string    `gorm:"size:20" json:"level"`
	Context   string    `gorm:"type:text" json:"context"`
	CreatedAt time.Time `json:"created_at"`
}

func (Exception) TableName() string {
	return "exceptions"
}
