package edits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultVotingPeriod = 7 * 24 * time.Hour

var (
	// ErrConflict indicates that an open edit already claims the same change.
	ErrConflict = errors.New("edits: conflicting open edit")
	// ErrNotFound indicates that no edit exists with the requested id.
	ErrNotFound = errors.New("edits: edit not found")

	errMissingDatabase = errors.New("database handle is required")
	errMissingEditor   = errors.New("editor identifier is required")
	errUnknownType     = errors.New("unknown edit type")
	noOpLogger         = zap.NewNop()
)

// ServiceError carries a stable code describing the failed queue operation.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opQueueNew = "edits.queue.new"
	opSubmit   = "edits.submit"
	opGet      = "edits.get"
	opClose    = "edits.close"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// Submission describes an edit to enqueue.
type Submission struct {
	Type        Type
	EditorID    int64
	Data        interface{}
	EditNote    string
	ConflictKey string
}

// Submitter enqueues edits for moderation.
type Submitter interface {
	Submit(ctx context.Context, submission Submission) (int64, error)
}

// QueueConfig configures the gorm-backed edit queue.
type QueueConfig struct {
	Database     *gorm.DB
	Clock        func() time.Time
	VotingPeriod time.Duration
	Logger       *zap.Logger
}

// Queue inserts edits; approval and application happen elsewhere.
type Queue struct {
	db           *gorm.DB
	clock        func() time.Time
	votingPeriod time.Duration
	logger       *zap.Logger
}

// NewQueue constructs a Queue.
func NewQueue(cfg QueueConfig) (*Queue, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opQueueNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	votingPeriod := cfg.VotingPeriod
	if votingPeriod <= 0 {
		votingPeriod = defaultVotingPeriod
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Queue{
		db:           cfg.Database,
		clock:        clock,
		votingPeriod: votingPeriod,
		logger:       logger,
	}, nil
}

// AttachConflictKey names the open-edit claim on a (medium, cdtoc) pair.
func AttachConflictKey(mediumID, cdtocID int64) string {
	return fmt.Sprintf("attach:%d:%d", mediumID, cdtocID)
}

// Submit stores an open edit and its note, returning the edit id.
func (q *Queue) Submit(ctx context.Context, submission Submission) (int64, error) {
	if q == nil || q.db == nil {
		return 0, newServiceError(opSubmit, "missing_database", errMissingDatabase)
	}
	if submission.EditorID <= 0 {
		return 0, newServiceError(opSubmit, "missing_editor", errMissingEditor)
	}
	if !submission.Type.valid() {
		return 0, newServiceError(opSubmit, "unknown_type", fmt.Errorf("%w: %d", errUnknownType, submission.Type))
	}
	payload, err := json.Marshal(submission.Data)
	if err != nil {
		q.logError(opSubmit, "encode_failed", err, zap.Stringer("type", submission.Type))
		return 0, newServiceError(opSubmit, "encode_failed", err)
	}

	now := q.clock().UTC()
	edit := Edit{
		EditorID:   submission.EditorID,
		Type:       submission.Type,
		Status:     StatusOpen,
		DataJSON:   string(payload),
		OpenTime:   now,
		ExpireTime: now.Add(q.votingPeriod),
	}
	if key := strings.TrimSpace(submission.ConflictKey); key != "" {
		edit.ConflictKey = &key
	}

	txErr := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if edit.ConflictKey != nil {
			var open int64
			if err := tx.Model(&Edit{}).
				Where("conflict_key = ? AND status = ?", *edit.ConflictKey, StatusOpen).
				Count(&open).Error; err != nil {
				return newServiceError(opSubmit, "conflict_check_failed", err)
			}
			if open > 0 {
				return ErrConflict
			}
		}
		if err := tx.Create(&edit).Error; err != nil {
			if edit.ConflictKey != nil && isUniqueViolation(err) {
				return ErrConflict
			}
			return newServiceError(opSubmit, "insert_failed", err)
		}
		if note := strings.TrimSpace(submission.EditNote); note != "" {
			record := EditNote{EditID: edit.ID, EditorID: submission.EditorID, Text: note, PostTime: now}
			if err := tx.Create(&record).Error; err != nil {
				return newServiceError(opSubmit, "note_insert_failed", err)
			}
		}
		return nil
	})
	if txErr != nil {
		if !errors.Is(txErr, ErrConflict) {
			q.logError(opSubmit, "transaction_failed", txErr, zap.Stringer("type", submission.Type))
		}
		return 0, txErr
	}

	q.logger.Info("edit submitted",
		zap.Int64("edit_id", edit.ID),
		zap.Stringer("type", edit.Type),
		zap.Int64("editor_id", edit.EditorID))
	return edit.ID, nil
}

// Get loads a queued edit and its notes.
func (q *Queue) Get(ctx context.Context, id int64) (Edit, []EditNote, error) {
	if q == nil || q.db == nil {
		return Edit{}, nil, newServiceError(opGet, "missing_database", errMissingDatabase)
	}
	var edit Edit
	err := q.db.WithContext(ctx).Where("id = ?", id).Take(&edit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Edit{}, nil, ErrNotFound
	}
	if err != nil {
		q.logError(opGet, "query_failed", err, zap.Int64("edit_id", id))
		return Edit{}, nil, newServiceError(opGet, "query_failed", err)
	}
	var notes []EditNote
	if err := q.db.WithContext(ctx).Where("edit = ?", id).Order("post_time ASC, id ASC").Find(&notes).Error; err != nil {
		q.logError(opGet, "notes_query_failed", err, zap.Int64("edit_id", id))
		return Edit{}, nil, newServiceError(opGet, "notes_query_failed", err)
	}
	return edit, notes, nil
}

// Close records the moderation result of an open edit and releases its conflict key.
func (q *Queue) Close(ctx context.Context, id int64, status Status) error {
	if q == nil || q.db == nil {
		return newServiceError(opClose, "missing_database", errMissingDatabase)
	}
	if status == StatusOpen {
		return newServiceError(opClose, "invalid_status", fmt.Errorf("cannot close edit %d as open", id))
	}
	result := q.db.WithContext(ctx).Model(&Edit{}).
		Where("id = ? AND status = ?", id, StatusOpen).
		Updates(map[string]interface{}{"status": status, "conflict_key": nil})
	if result.Error != nil {
		q.logError(opClose, "update_failed", result.Error, zap.Int64("edit_id", id))
		return newServiceError(opClose, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t Type) valid() bool {
	switch t {
	case TypeAddDiscID, TypeRemoveDiscID, TypeMoveDiscID, TypeSetTrackLengths:
		return true
	default:
		return false
	}
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint") || strings.Contains(message, "duplicate key")
}

func (q *Queue) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	q.logger.Error("edit queue error", attrs...)
}
