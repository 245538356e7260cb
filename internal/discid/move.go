package discid

import (
	"context"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/discograph/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/cdtoc"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/edits"
)

// MoveRequest carries the raw query parameters of the move page.
type MoveRequest struct {
	MediumCDTOCID  string
	TargetMediumID string
	ReleaseName    string
	Page           catalog.Page
}

// MoveView is the read-only state of the move page.
type MoveView struct {
	Link          catalog.MediumCDTOC
	CDTOC         catalog.CDTOCRecord
	TOC           cdtoc.CDTOC
	Medium        catalog.Medium
	Release       catalog.Release
	TargetMedium  *catalog.Medium
	TargetRelease *catalog.Release
	Candidates    *catalog.ReleasePage
}

type resolvedLink struct {
	link    catalog.MediumCDTOC
	record  catalog.CDTOCRecord
	toc     cdtoc.CDTOC
	medium  catalog.Medium
	release catalog.Release
}

// PrepareMove resolves the attachment and either validates the target or lists candidate releases.
func (s *Service) PrepareMove(ctx context.Context, request MoveRequest) (MoveView, error) {
	current, err := s.resolveLink(ctx, opPrepareMove, request.MediumCDTOCID)
	if err != nil {
		return MoveView{}, s.failOrPass(opPrepareMove, err)
	}
	view := MoveView{
		Link:    current.link,
		CDTOC:   current.record,
		TOC:     current.toc,
		Medium:  current.medium,
		Release: current.release,
	}

	if strings.TrimSpace(request.TargetMediumID) == "" {
		candidates, err := s.releases.SearchReleases(ctx, request.ReleaseName, current.toc.TrackCount(), request.Page)
		if err != nil {
			return MoveView{}, s.storageError(opPrepareMove, "release_search_failed", err)
		}
		view.Candidates = &candidates
		return view, nil
	}

	target, release, err := s.loadMoveTarget(ctx, opPrepareMove, current, request.TargetMediumID)
	if err != nil {
		return MoveView{}, s.failOrPass(opPrepareMove, err)
	}
	view.TargetMedium = &target
	view.TargetRelease = &release
	return view, nil
}

// MoveSubmission confirms moving an attachment to another medium.
type MoveSubmission struct {
	MediumCDTOCID  string
	TargetMediumID string
	EditNote       string
}

// Move validates the target medium and queues a move disc id edit.
func (s *Service) Move(ctx context.Context, editor Editor, submission MoveSubmission) (Outcome, error) {
	if err := requireEditor(opMove, editor); err != nil {
		return Outcome{}, err
	}
	current, err := s.resolveLink(ctx, opMove, submission.MediumCDTOCID)
	if err != nil {
		return s.resolveFailure(opMove, err)
	}
	target, release, err := s.loadMoveTarget(ctx, opMove, current, submission.TargetMediumID)
	if err != nil {
		return s.resolveFailure(opMove, err)
	}

	return s.submit(ctx, opMove, edits.Submission{
		Type:     edits.TypeMoveDiscID,
		EditorID: editor.ID,
		EditNote: submission.EditNote,
		Data: edits.MoveDiscIDData{
			MediumCDTOCID: current.link.ID,
			CDTOCID:       current.record.ID,
			DiscID:        current.record.DiscID,
			OldMediumID:   current.medium.ID,
			OldReleaseID:  current.release.ID,
			NewMediumID:   target.ID,
			NewReleaseID:  release.ID,
		},
		ConflictKey: edits.AttachConflictKey(target.ID, current.record.ID),
	}, release)
}

func (s *Service) loadMoveTarget(ctx context.Context, operation string, current resolvedLink, rawTarget string) (catalog.Medium, catalog.Release, error) {
	targetID, failure := parseID("medium", rawTarget)
	if failure != nil {
		return catalog.Medium{}, catalog.Release{}, failure
	}
	if targetID == current.medium.ID {
		return catalog.Medium{}, catalog.Release{}, invalid(KindInvalidParameter, "medium", rawTarget)
	}
	return s.loadEligibleMedium(ctx, operation, "medium", rawTarget, current.toc)
}

// resolveLink loads a medium/cdtoc attachment by its raw id together with its medium and release.
func (s *Service) resolveLink(ctx context.Context, operation, rawID string) (resolvedLink, error) {
	linkID, failure := parseID("toc", rawID)
	if failure != nil {
		return resolvedLink{}, failure
	}
	link, err := s.mediumCDTOCs.GetMediumCDTOC(ctx, linkID)
	if errors.Is(err, catalog.ErrNotFound) {
		return resolvedLink{}, invalid(KindCDTOCNotFound, "toc", rawID)
	}
	if err != nil {
		return resolvedLink{}, s.storageError(operation, "attachment_lookup_failed", err)
	}
	record, err := s.cdtocs.GetCDTOC(ctx, link.CDTOCID)
	if err != nil {
		return resolvedLink{}, s.storageError(operation, "cdtoc_lookup_failed", err)
	}
	toc, err := record.TOC()
	if err != nil {
		return resolvedLink{}, s.storageError(operation, "cdtoc_decode_failed", err)
	}
	medium, err := s.mediums.GetMedium(ctx, link.MediumID)
	if err != nil {
		return resolvedLink{}, s.storageError(operation, "medium_lookup_failed", err)
	}
	release, err := s.releases.GetRelease(ctx, medium.ReleaseID)
	if err != nil {
		return resolvedLink{}, s.storageError(operation, "release_lookup_failed", err)
	}
	return resolvedLink{link: link, record: record, toc: toc, medium: medium, release: release}, nil
}
