package domain

import "time"

// LogEntry is the durable, immutable record of one completed job.
// Entries are append-only: nothing in the system updates or deletes them.
type LogEntry struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	Filename   string    `gorm:"type:text;not null;uniqueIndex:idx_log_entries_filename" json:"filename"`
	Timestamp  time.Time `gorm:"not null;index:idx_log_entries_ts" json:"timestamp"`
	Transcript string    `gorm:"type:text;not null" json:"transcript"`
	Summary    string    `gorm:"type:text" json:"summary,omitempty"`
	SourceName string    `gorm:"type:text" json:"source_name,omitempty"`
	AudioKey   string    `gorm:"type:text" json:"audio_key,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for LogEntry.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (LogEntry) TableName() string {
	return "log_entries"
}

// QueryResult is the ephemeral answer to a free-text query. It is never
// persisted; SourceFilename points back at the LogEntry it was drawn from.
type QueryResult struct {
	Query          string    `json:"query"`
	Answer         string    `json:"answer"`
	SourceFilename string    `json:"source_filename,omitempty"`
	Score          float32   `json:"score"`
	Timestamp      time.Time `json:"timestamp,omitempty"`
}
