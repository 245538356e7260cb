package discid

import (
	"context"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/discograph/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/edits"
)

// RemoveRequest identifies the attachment to detach.
type RemoveRequest struct {
	CDTOCID  string
	MediumID string
}

// RemoveView is the confirmation state of the remove page.
type RemoveView struct {
	Link    catalog.MediumCDTOC
	CDTOC   catalog.CDTOCRecord
	Medium  catalog.Medium
	Release catalog.Release
}

// PrepareRemove resolves the medium and disc pair named by the query parameters.
func (s *Service) PrepareRemove(ctx context.Context, request RemoveRequest) (RemoveView, error) {
	view, err := s.resolvePair(ctx, opPrepareRemove, request)
	if err != nil {
		return RemoveView{}, s.failOrPass(opPrepareRemove, err)
	}
	return view, nil
}

// Remove queues a remove disc id edit; an edit note is mandatory.
func (s *Service) Remove(ctx context.Context, editor Editor, request RemoveRequest, editNote string) (Outcome, error) {
	if err := requireEditor(opRemove, editor); err != nil {
		return Outcome{}, err
	}
	view, err := s.resolvePair(ctx, opRemove, request)
	if err != nil {
		return s.resolveFailure(opRemove, err)
	}
	if strings.TrimSpace(editNote) == "" {
		return s.reject(opRemove, invalid(KindMissingEditNote, "edit_note", "")), nil
	}

	return s.submit(ctx, opRemove, edits.Submission{
		Type:     edits.TypeRemoveDiscID,
		EditorID: editor.ID,
		EditNote: editNote,
		Data: edits.RemoveDiscIDData{
			MediumCDTOCID: view.Link.ID,
			MediumID:      view.Medium.ID,
			ReleaseID:     view.Release.ID,
			CDTOCID:       view.CDTOC.ID,
			DiscID:        view.CDTOC.DiscID,
		},
	}, view.Release)
}

func (s *Service) resolvePair(ctx context.Context, operation string, request RemoveRequest) (RemoveView, error) {
	cdtocID, failure := parseID("cdtoc_id", request.CDTOCID)
	if failure != nil {
		return RemoveView{}, failure
	}
	mediumID, failure := parseID("medium_id", request.MediumID)
	if failure != nil {
		return RemoveView{}, failure
	}

	medium, err := s.mediums.GetMedium(ctx, mediumID)
	if errors.Is(err, catalog.ErrNotFound) {
		return RemoveView{}, invalid(KindMediumNotFound, "medium_id", request.MediumID)
	}
	if err != nil {
		return RemoveView{}, s.storageError(operation, "medium_lookup_failed", err)
	}
	record, err := s.cdtocs.GetCDTOC(ctx, cdtocID)
	if errors.Is(err, catalog.ErrNotFound) {
		return RemoveView{}, invalid(KindCDTOCNotFound, "cdtoc_id", request.CDTOCID)
	}
	if err != nil {
		return RemoveView{}, s.storageError(operation, "cdtoc_lookup_failed", err)
	}
	link, err := s.mediumCDTOCs.FindMediumCDTOC(ctx, medium.ID, record.ID)
	if errors.Is(err, catalog.ErrNotFound) {
		return RemoveView{}, invalid(KindMediumNotFound, "medium_id", request.MediumID)
	}
	if err != nil {
		return RemoveView{}, s.storageError(operation, "attachment_lookup_failed", err)
	}
	release, err := s.releases.GetRelease(ctx, medium.ReleaseID)
	if err != nil {
		return RemoveView{}, s.storageError(operation, "release_lookup_failed", err)
	}
	return RemoveView{Link: link, CDTOC: record, Medium: medium, Release: release}, nil
}
