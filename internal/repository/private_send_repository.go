package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"privatesend-backend/internal/metrics"
	"privatesend-backend/internal/models"

	"gorm.io/gorm"
)

var (
	// ErrNotFound no record with that id
	ErrNotFound = errors.New("private send not found")
	// ErrDuplicateID a record with that id already exists
	ErrDuplicateID = errors.New("private send id already exists")
)

// ListFilter admin listing filter; zero values match everything
type ListFilter struct {
	Outcome       models.Outcome
	SenderAddress string
	Page          int
	PageSize      int
}

// Normalized applies paging defaults
func (f ListFilter) Normalized() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 20
	}
	return f
}

// PrivateSendRepository defines the interface for the send ledger
type PrivateSendRepository interface {
	// Create fails with ErrDuplicateID when the id is taken
	Create(ctx context.Context, record *models.PrivateSendRecord) error
	GetByID(ctx context.Context, id string) (*models.PrivateSendRecord, error)
	List(ctx context.Context, filter ListFilter) ([]*models.PrivateSendRecord, int64, error)

	// ApplyEvent moves the record to the event's stage and copies whatever the event carries
	ApplyEvent(ctx context.Context, event *models.StageEvent) error
}

// eventUpdates columns changed by a stage event
func eventUpdates(event *models.StageEvent) map[string]interface{} {
	updates := map[string]interface{}{
		"stage":      event.Stage,
		"outcome":    event.Outcome,
		"updated_at": event.Timestamp,
	}
	if event.DepositSignature != "" {
		updates["deposit_signature"] = event.DepositSignature
	}
	if event.WithdrawSignature != "" {
		updates["withdraw_signature"] = event.WithdrawSignature
	}
	if event.FailedStage != "" {
		updates["failed_stage"] = event.FailedStage
	}
	if event.Error != "" {
		updates["last_error"] = event.Error
	}
	if event.Stage.Terminal() {
		completedAt := event.Timestamp
		updates["completed_at"] = &completedAt
	}
	return updates
}

// privateSendRepository implements PrivateSendRepository on gorm
type privateSendRepository struct {
	db *gorm.DB
}

// NewPrivateSendRepository creates a new gorm-backed PrivateSendRepository
func NewPrivateSendRepository(db *gorm.DB) PrivateSendRepository {
	return &privateSendRepository{db: db}
}

func observe(queryType string, start time.Time) {
	metrics.DBQueryDuration.WithLabelValues(queryType).Observe(time.Since(start).Seconds())
}

// Create inserts a new record. The primary key makes it the claim on the request id.
func (r *privateSendRepository) Create(ctx context.Context, record *models.PrivateSendRecord) error {
	defer observe("private_send_create", time.Now())
	err := r.db.WithContext(ctx).Create(record).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateID
	}
	return err
}

// GetByID retrieves a record by request id
func (r *privateSendRepository) GetByID(ctx context.Context, id string) (*models.PrivateSendRecord, error) {
	defer observe("private_send_get", time.Now())
	var record models.PrivateSendRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// List pages through records, newest first
func (r *privateSendRepository) List(ctx context.Context, filter ListFilter) ([]*models.PrivateSendRecord, int64, error) {
	defer observe("private_send_list", time.Now())
	filter = filter.Normalized()

	query := r.db.WithContext(ctx).Model(&models.PrivateSendRecord{})
	if filter.Outcome != "" {
		query = query.Where("outcome = ?", filter.Outcome)
	}
	if filter.SenderAddress != "" {
		query = query.Where("sender_address = ?", filter.SenderAddress)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []*models.PrivateSendRecord
	err := query.
		Order("created_at DESC").
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&records).Error
	return records, total, err
}

// ApplyEvent updates the record in place
func (r *privateSendRepository) ApplyEvent(ctx context.Context, event *models.StageEvent) error {
	defer observe("private_send_update", time.Now())
	result := r.db.WithContext(ctx).
		Model(&models.PrivateSendRecord{}).
		Where("id = ?", event.RequestID).
		Updates(eventUpdates(event))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// memoryPrivateSendRepository keeps the ledger in process when no database is configured
type memoryPrivateSendRepository struct {
	mu      sync.RWMutex
	records map[string]*models.PrivateSendRecord
}

// NewMemoryPrivateSendRepository creates an in-memory PrivateSendRepository
func NewMemoryPrivateSendRepository() PrivateSendRepository {
	return &memoryPrivateSendRepository{records: make(map[string]*models.PrivateSendRecord)}
}

func (r *memoryPrivateSendRepository) Create(_ context.Context, record *models.PrivateSendRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[record.ID]; exists {
		return ErrDuplicateID
	}
	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}
	stored := *record
	r.records[record.ID] = &stored
	return nil
}

func (r *memoryPrivateSendRepository) GetByID(_ context.Context, id string) (*models.PrivateSendRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *record
	return &copied, nil
}

func (r *memoryPrivateSendRepository) List(_ context.Context, filter ListFilter) ([]*models.PrivateSendRecord, int64, error) {
	filter = filter.Normalized()

	r.mu.RLock()
	matched := make([]*models.PrivateSendRecord, 0, len(r.records))
	for _, record := range r.records {
		if filter.Outcome != "" && record.Outcome != filter.Outcome {
			continue
		}
		if filter.SenderAddress != "" && record.SenderAddress != filter.SenderAddress {
			continue
		}
		copied := *record
		matched = append(matched, &copied)
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	start := (filter.Page - 1) * filter.PageSize
	if start >= len(matched) {
		return []*models.PrivateSendRecord{}, total, nil
	}
	end := start + filter.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r *memoryPrivateSendRepository) ApplyEvent(_ context.Context, event *models.StageEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[event.RequestID]
	if !ok {
		return ErrNotFound
	}

	record.Stage = event.Stage
	record.Outcome = event.Outcome
	record.UpdatedAt = event.Timestamp
	if event.DepositSignature != "" {
		record.DepositSignature = event.DepositSignature
	}
	if event.WithdrawSignature != "" {
		record.WithdrawSignature = event.WithdrawSignature
	}
	if event.FailedStage != "" {
		record.FailedStage = event.FailedStage
	}
	if event.Error != "" {
		record.LastError = event.Error
	}
	if event.Stage.Terminal() {
		completedAt := event.Timestamp
		record.CompletedAt = &completedAt
	}
	return nil
}
