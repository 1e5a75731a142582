package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/timmy/voicelog/internal/domain"
	"gorm.io/gorm"
)

// LogEntryRepository handles persistence of completed voice log entries.
// The table is append-only: entries are never updated or deleted.
type LogEntryRepository struct {
	db *gorm.DB

	// serializes Append so filename derivation and insert are atomic
	// when two jobs complete in the same second
	mu sync.Mutex
}

// NewLogEntryRepository creates a new LogEntryRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *LogEntryRepository: repository instance bound to db.
func NewLogEntryRepository(db *gorm.DB) *LogEntryRepository {
	return &LogEntryRepository{db: db}
}

// Append persists a new log entry, deriving a unique filename from the entry
// timestamp. Concurrent appends within the same second get numeric suffixes
// (log_20260102_150405.md, log_20260102_150405_1.md, ...).
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - entry: entry to persist; Filename is assigned by this method.
// Returns:
//   - error: wraps domain.ErrWriteFailure if the insert fails.
func (r *LogEntryRepository) Append(ctx context.Context, entry *domain.LogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	base := fmt.Sprintf("log_%s", entry.Timestamp.Format("20060102_150405"))
	filename := base + ".md"
	for suffix := 1; ; suffix++ {
		taken, err := r.filenameExists(ctx, filename)
		if err != nil {
			return fmt.Errorf("%w: checking filename %s: %v", domain.ErrWriteFailure, filename, err)
		}
		if !taken {
			break
		}
		filename = fmt.Sprintf("%s_%d.md", base, suffix)
	}
	entry.Filename = filename

	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("%w: inserting %s: %v", domain.ErrWriteFailure, filename, err)
	}
	return nil
}

func (r *LogEntryRepository) filenameExists(ctx context.Context, filename string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.LogEntry{}).
		Where("filename = ?", filename).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListNewestFirst retrieves entries ordered by timestamp descending with pagination.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of records to return; <= 0 means no limit.
//   - offset: number of records to skip.
// Returns:
//   - []domain.LogEntry: matching entries, newest first.
//   - error: non-nil if the query fails.
func (r *LogEntryRepository) ListNewestFirst(ctx context.Context, limit, offset int) ([]domain.LogEntry, error) {
	var entries []domain.LogEntry
	query := r.db.WithContext(ctx).Order("timestamp DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// Latest retrieves the most recent entry.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - *domain.LogEntry: newest entry by timestamp.
//   - error: domain.ErrNotFound if the store is empty.
func (r *LogEntryRepository) Latest(ctx context.Context) (*domain.LogEntry, error) {
	var entry domain.LogEntry
	err := r.db.WithContext(ctx).Order("timestamp DESC, id DESC").First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// GetByFilename retrieves an entry by its unique filename.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - filename: the derived log filename.
// Returns:
//   - *domain.LogEntry: entry if found.
//   - error: domain.ErrNotFound if no entry has that filename.
func (r *LogEntryRepository) GetByFilename(ctx context.Context, filename string) (*domain.LogEntry, error) {
	var entry domain.LogEntry
	err := r.db.WithContext(ctx).First(&entry, "filename = ?", filename).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// Count returns the total number of stored entries.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - int64: number of entries.
//   - error: non-nil if the query fails.
func (r *LogEntryRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.LogEntry{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
