package discid

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/discograph/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/cdtoc"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/edits"
	"go.uber.org/zap"
)

var (
	errMissingStore     = errors.New("catalog store dependency required")
	errMissingSubmitter = errors.New("edit submitter dependency required")
	errMissingEditor    = errors.New("authenticated editor required")
	noOpLogger          = zap.NewNop()
)

// ServiceError carries a stable code for infrastructure failures.
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
	opServiceNew       = "discid.service.new"
	opLookup           = "discid.lookup"
	opPrepareAttach    = "discid.prepare_attach"
	opAttach           = "discid.attach"
	opPrepareMove      = "discid.prepare_move"
	opMove             = "discid.move"
	opPrepareRemove    = "discid.prepare_remove"
	opRemove           = "discid.remove"
	opPrepareDurations = "discid.prepare_set_track_lengths"
	opSetDurations     = "discid.set_track_lengths"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// Recorder observes workflow results.
type Recorder interface {
	EditSubmitted(editType edits.Type)
	ValidationFailed(operation string, kind ErrorKind)
}

type noopRecorder struct{}

func (noopRecorder) EditSubmitted(edits.Type)           {}
func (noopRecorder) ValidationFailed(string, ErrorKind) {}

// Editor identifies the authenticated account submitting edits.
type Editor struct {
	ID   int64
	Name string
}

// ServiceConfig lists the collaborators of the disc id workflows.
type ServiceConfig struct {
	Mediums      catalog.MediumStore
	Releases     catalog.ReleaseStore
	Artists      catalog.ArtistStore
	CDTOCs       catalog.CDTOCStore
	MediumCDTOCs catalog.MediumCDTOCStore
	CDStubs      catalog.CDStubStore
	Edits        edits.Submitter
	Recorder     Recorder
	Logger       *zap.Logger
}

// Service implements the attach, move, remove and set-track-lengths workflows.
type Service struct {
	mediums      catalog.MediumStore
	releases     catalog.ReleaseStore
	artists      catalog.ArtistStore
	cdtocs       catalog.CDTOCStore
	mediumCDTOCs catalog.MediumCDTOCStore
	cdstubs      catalog.CDStubStore
	edits        edits.Submitter
	recorder     Recorder
	logger       *zap.Logger
}

// NewService validates dependencies and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Mediums == nil || cfg.Releases == nil || cfg.Artists == nil ||
		cfg.CDTOCs == nil || cfg.MediumCDTOCs == nil || cfg.CDStubs == nil {
		return nil, newServiceError(opServiceNew, "missing_store", errMissingStore)
	}
	if cfg.Edits == nil {
		return nil, newServiceError(opServiceNew, "missing_submitter", errMissingSubmitter)
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = noopRecorder{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		mediums:      cfg.Mediums,
		releases:     cfg.Releases,
		artists:      cfg.Artists,
		cdtocs:       cfg.CDTOCs,
		mediumCDTOCs: cfg.MediumCDTOCs,
		cdstubs:      cfg.CDStubs,
		edits:        cfg.Edits,
		recorder:     recorder,
		logger:       logger,
	}, nil
}

// Outcome is the result of a mutating workflow: either a created edit or a validation failure.
type Outcome struct {
	EditID  int64
	Release catalog.Release
	Failure *ValidationError
}

// Created reports whether an edit was queued.
func (o Outcome) Created() bool {
	return o.Failure == nil && o.EditID > 0
}

func created(editID int64, release catalog.Release) Outcome {
	return Outcome{EditID: editID, Release: release}
}

func rejected(failure *ValidationError) Outcome {
	return Outcome{Failure: failure}
}

// LookupView is a disc id together with every medium it is attached to.
type LookupView struct {
	CDTOC       catalog.CDTOCRecord
	TOC         cdtoc.CDTOC
	Attachments []catalog.Attachment
}

// Lookup resolves a disc id to its stored table of contents and attachments.
func (s *Service) Lookup(ctx context.Context, discID string) (LookupView, error) {
	discID = strings.TrimSpace(discID)
	if !cdtoc.IsValidDiscID(discID) {
		return LookupView{}, s.fail(opLookup, invalid(KindInvalidParameter, "discid", discID))
	}
	record, err := s.cdtocs.FindCDTOCByDiscID(ctx, discID)
	if errors.Is(err, catalog.ErrNotFound) {
		return LookupView{}, s.fail(opLookup, invalid(KindCDTOCNotFound, "discid", discID))
	}
	if err != nil {
		return LookupView{}, s.storageError(opLookup, "cdtoc_lookup_failed", err)
	}
	toc, err := record.TOC()
	if err != nil {
		return LookupView{}, s.storageError(opLookup, "cdtoc_decode_failed", err)
	}
	attachments, err := s.mediumCDTOCs.ListAttachments(ctx, record.ID)
	if err != nil {
		return LookupView{}, s.storageError(opLookup, "attachments_failed", err)
	}
	return LookupView{CDTOC: record, TOC: toc, Attachments: attachments}, nil
}

func parseTOC(raw string) (cdtoc.CDTOC, *ValidationError) {
	if strings.TrimSpace(raw) == "" {
		return cdtoc.CDTOC{}, invalid(KindMissingParameter, "toc", "")
	}
	toc, err := cdtoc.Parse(raw)
	if err != nil {
		return cdtoc.CDTOC{}, invalid(KindInvalidTocFormat, "toc", raw)
	}
	return toc, nil
}

func parseID(field, raw string) (int64, *ValidationError) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, invalid(KindMissingParameter, field, "")
	}
	value, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || value <= 0 {
		return 0, invalid(KindInvalidParameter, field, raw)
	}
	return value, nil
}

// loadEligibleMedium resolves a medium by raw id and checks that it may receive the disc.
func (s *Service) loadEligibleMedium(ctx context.Context, operation, field, raw string, toc cdtoc.CDTOC) (catalog.Medium, catalog.Release, error) {
	mediumID, failure := parseID(field, raw)
	if failure != nil {
		return catalog.Medium{}, catalog.Release{}, failure
	}
	medium, err := s.mediums.GetMedium(ctx, mediumID)
	if errors.Is(err, catalog.ErrNotFound) {
		return catalog.Medium{}, catalog.Release{}, invalid(KindMediumNotFound, field, raw)
	}
	if err != nil {
		return catalog.Medium{}, catalog.Release{}, s.storageError(operation, "medium_lookup_failed", err)
	}

	if existing, err := s.cdtocs.FindCDTOCByDiscID(ctx, toc.DiscID()); err == nil {
		_, linkErr := s.mediumCDTOCs.FindMediumCDTOC(ctx, medium.ID, existing.ID)
		if linkErr == nil {
			return catalog.Medium{}, catalog.Release{}, invalid(KindDuplicateAttachment, field, raw)
		}
		if !errors.Is(linkErr, catalog.ErrNotFound) {
			return catalog.Medium{}, catalog.Release{}, s.storageError(operation, "attachment_lookup_failed", linkErr)
		}
	} else if !errors.Is(err, catalog.ErrNotFound) {
		return catalog.Medium{}, catalog.Release{}, s.storageError(operation, "cdtoc_lookup_failed", err)
	}

	allowed, err := s.mediums.MayHaveDiscIDs(ctx, medium)
	if err != nil {
		return catalog.Medium{}, catalog.Release{}, s.storageError(operation, "format_lookup_failed", err)
	}
	if !allowed {
		return catalog.Medium{}, catalog.Release{}, invalid(KindIneligibleMedium, field, raw)
	}
	if medium.TrackCount != toc.TrackCount() {
		return catalog.Medium{}, catalog.Release{}, invalid(KindTrackCountMismatch, field, raw)
	}

	release, err := s.releases.GetRelease(ctx, medium.ReleaseID)
	if err != nil {
		return catalog.Medium{}, catalog.Release{}, s.storageError(operation, "release_lookup_failed", err)
	}
	return medium, release, nil
}

func requireEditor(operation string, editor Editor) error {
	if editor.ID <= 0 {
		return newServiceError(operation, "missing_editor", errMissingEditor)
	}
	return nil
}

func (s *Service) submit(ctx context.Context, operation string, submission edits.Submission, release catalog.Release) (Outcome, error) {
	editID, err := s.edits.Submit(ctx, submission)
	if errors.Is(err, edits.ErrConflict) {
		return s.reject(operation, invalid(KindDuplicateAttachment, "", "")), nil
	}
	if err != nil {
		return Outcome{}, s.storageError(operation, "submit_failed", err)
	}
	s.recorder.EditSubmitted(submission.Type)
	s.logger.Info("disc id edit created",
		zap.String("operation", operation),
		zap.Int64("edit_id", editID),
		zap.Stringer("type", submission.Type),
		zap.Int64("release_id", release.ID))
	return created(editID, release), nil
}

// fail records a validation failure and returns it as an error.
func (s *Service) fail(operation string, failure *ValidationError) error {
	s.recorder.ValidationFailed(operation, failure.Kind)
	s.logger.Debug("disc id request rejected",
		zap.String("operation", operation),
		zap.String("kind", string(failure.Kind)),
		zap.String("field", failure.Field))
	return failure
}

func (s *Service) reject(operation string, failure *ValidationError) Outcome {
	_ = s.fail(operation, failure)
	return rejected(failure)
}

// resolveFailure splits an error into a validation failure or an infrastructure error.
func (s *Service) resolveFailure(operation string, err error) (Outcome, error) {
	var failure *ValidationError
	if errors.As(err, &failure) {
		return s.reject(operation, failure), nil
	}
	return Outcome{}, err
}

func (s *Service) storageError(operation, reason string, err error) error {
	s.logger.Error("disc id service error",
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err))
	return newServiceError(operation, reason, err)
}
