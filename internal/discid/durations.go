package discid

import (
	"context"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/discograph/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/cdtoc"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/edits"
)

// TrackLengthChange pairs a track's stored length with the length derived from the disc.
type TrackLengthChange struct {
	Track       catalog.Track
	OldLengthMs *int64
	NewLengthMs int64
}

// SetTrackLengthsView is the confirmation state of the set-durations page.
type SetTrackLengthsView struct {
	CDTOC   catalog.CDTOCRecord
	TOC     cdtoc.CDTOC
	Medium  catalog.Medium
	Release catalog.Release
	Changes []TrackLengthChange
}

// PrepareSetTrackLengths loads the medium's tracks and the lengths the disc would give them.
func (s *Service) PrepareSetTrackLengths(ctx context.Context, discID, rawMediumID string) (SetTrackLengthsView, error) {
	view, err := s.resolveDurations(ctx, opPrepareDurations, discID, rawMediumID)
	if err != nil {
		return SetTrackLengthsView{}, s.failOrPass(opPrepareDurations, err)
	}
	return view, nil
}

// SetTrackLengths queues an edit that copies track lengths from the disc onto the medium.
func (s *Service) SetTrackLengths(ctx context.Context, editor Editor, discID, rawMediumID, editNote string) (Outcome, error) {
	if err := requireEditor(opSetDurations, editor); err != nil {
		return Outcome{}, err
	}
	view, err := s.resolveDurations(ctx, opSetDurations, discID, rawMediumID)
	if err != nil {
		return s.resolveFailure(opSetDurations, err)
	}

	oldLengths := make([]*int64, 0, len(view.Changes))
	newLengths := make([]int64, 0, len(view.Changes))
	for _, change := range view.Changes {
		oldLengths = append(oldLengths, change.OldLengthMs)
		newLengths = append(newLengths, change.NewLengthMs)
	}

	return s.submit(ctx, opSetDurations, edits.Submission{
		Type:     edits.TypeSetTrackLengths,
		EditorID: editor.ID,
		EditNote: editNote,
		Data: edits.SetTrackLengthsData{
			MediumID:     view.Medium.ID,
			ReleaseID:    view.Release.ID,
			CDTOCID:      view.CDTOC.ID,
			OldLengthsMs: oldLengths,
			NewLengthsMs: newLengths,
		},
	}, view.Release)
}

func (s *Service) resolveDurations(ctx context.Context, operation, discID, rawMediumID string) (SetTrackLengthsView, error) {
	mediumID, failure := parseID("medium", rawMediumID)
	if failure != nil {
		return SetTrackLengthsView{}, failure
	}
	discID = strings.TrimSpace(discID)
	if !cdtoc.IsValidDiscID(discID) {
		return SetTrackLengthsView{}, invalid(KindInvalidParameter, "discid", discID)
	}

	medium, err := s.mediums.GetMedium(ctx, mediumID)
	if errors.Is(err, catalog.ErrNotFound) {
		return SetTrackLengthsView{}, invalid(KindMediumNotFound, "medium", rawMediumID)
	}
	if err != nil {
		return SetTrackLengthsView{}, s.storageError(operation, "medium_lookup_failed", err)
	}
	record, err := s.cdtocs.FindCDTOCByDiscID(ctx, discID)
	if errors.Is(err, catalog.ErrNotFound) {
		return SetTrackLengthsView{}, invalid(KindCDTOCNotFound, "discid", discID)
	}
	if err != nil {
		return SetTrackLengthsView{}, s.storageError(operation, "cdtoc_lookup_failed", err)
	}
	if _, err := s.mediumCDTOCs.FindMediumCDTOC(ctx, medium.ID, record.ID); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return SetTrackLengthsView{}, invalid(KindMediumNotFound, "medium", rawMediumID)
		}
		return SetTrackLengthsView{}, s.storageError(operation, "attachment_lookup_failed", err)
	}
	toc, err := record.TOC()
	if err != nil {
		return SetTrackLengthsView{}, s.storageError(operation, "cdtoc_decode_failed", err)
	}

	tracks, err := s.mediums.ListTracks(ctx, medium.ID)
	if err != nil {
		return SetTrackLengthsView{}, s.storageError(operation, "track_listing_failed", err)
	}
	details := toc.TrackDetails()
	if len(tracks) != len(details) {
		return SetTrackLengthsView{}, invalid(KindTrackCountMismatch, "medium", rawMediumID)
	}

	release, err := s.releases.GetRelease(ctx, medium.ReleaseID)
	if err != nil {
		return SetTrackLengthsView{}, s.storageError(operation, "release_lookup_failed", err)
	}

	changes := make([]TrackLengthChange, 0, len(tracks))
	for index, track := range tracks {
		changes = append(changes, TrackLengthChange{
			Track:       track,
			OldLengthMs: track.LengthMs,
			NewLengthMs: details[index].LengthMs,
		})
	}
	return SetTrackLengthsView{CDTOC: record, TOC: toc, Medium: medium, Release: release, Changes: changes}, nil
}
