package discid

import (
	"context"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/discograph/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/cdtoc"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/edits"
)

// AttachState names the branch the attach page resolved to.
type AttachState string

const (
	StateAttachToMedium AttachState = "attach_to_medium"
	StateBrowseByArtist AttachState = "browse_by_artist"
	StateSearchArtists  AttachState = "search_artists"
	StateSearchReleases AttachState = "search_releases"
	StateShowLookupPage AttachState = "show_lookup_page"
)

// AttachRequest carries the raw query parameters of the attach page.
type AttachRequest struct {
	TOC         string
	MediumID    string
	ArtistID    string
	ArtistName  string
	ReleaseName string
	Page        catalog.Page
}

// AttachView is the read-only state of the attach page.
type AttachView struct {
	State       AttachState
	TOC         cdtoc.CDTOC
	Attachments []catalog.Attachment
	Medium      *catalog.Medium
	Release     *catalog.Release
	Artist      *catalog.Artist
	Releases    *catalog.ReleasePage
	Artists     *catalog.ArtistPage
	CDStub      *catalog.CDStub
}

// SelectAttachState picks the attach branch; the first present parameter wins.
func SelectAttachState(request AttachRequest) AttachState {
	switch {
	case strings.TrimSpace(request.MediumID) != "":
		return StateAttachToMedium
	case strings.TrimSpace(request.ArtistID) != "":
		return StateBrowseByArtist
	case strings.TrimSpace(request.ArtistName) != "":
		return StateSearchArtists
	case strings.TrimSpace(request.ReleaseName) != "":
		return StateSearchReleases
	default:
		return StateShowLookupPage
	}
}

// PrepareAttach parses the TOC and resolves the attach page branch without creating an edit.
func (s *Service) PrepareAttach(ctx context.Context, request AttachRequest) (AttachView, error) {
	toc, failure := parseTOC(request.TOC)
	if failure != nil {
		return AttachView{}, s.fail(opPrepareAttach, failure)
	}
	view := AttachView{State: SelectAttachState(request), TOC: toc}

	attachments, err := s.existingAttachments(ctx, toc)
	if err != nil {
		return AttachView{}, err
	}
	view.Attachments = attachments

	switch view.State {
	case StateAttachToMedium:
		medium, release, err := s.loadEligibleMedium(ctx, opPrepareAttach, "medium", request.MediumID, toc)
		if err != nil {
			return AttachView{}, s.failOrPass(opPrepareAttach, err)
		}
		view.Medium = &medium
		view.Release = &release
	case StateBrowseByArtist:
		artistID, failure := parseID("artist", request.ArtistID)
		if failure != nil {
			return AttachView{}, s.fail(opPrepareAttach, failure)
		}
		artist, err := s.artists.GetArtist(ctx, artistID)
		if errors.Is(err, catalog.ErrNotFound) {
			return AttachView{}, s.fail(opPrepareAttach, invalid(KindInvalidParameter, "artist", request.ArtistID))
		}
		if err != nil {
			return AttachView{}, s.storageError(opPrepareAttach, "artist_lookup_failed", err)
		}
		releases, err := s.releases.ListReleasesByArtist(ctx, artist.ID, toc.TrackCount(), request.Page)
		if err != nil {
			return AttachView{}, s.storageError(opPrepareAttach, "release_listing_failed", err)
		}
		view.Artist = &artist
		view.Releases = &releases
	case StateSearchArtists:
		artists, err := s.artists.SearchArtists(ctx, request.ArtistName, request.Page)
		if err != nil {
			return AttachView{}, s.storageError(opPrepareAttach, "artist_search_failed", err)
		}
		view.Artists = &artists
	case StateSearchReleases:
		releases, err := s.releases.SearchReleases(ctx, request.ReleaseName, toc.TrackCount(), request.Page)
		if err != nil {
			return AttachView{}, s.storageError(opPrepareAttach, "release_search_failed", err)
		}
		view.Releases = &releases
	default:
		stub, err := s.cdstubs.FindCDStubByDiscID(ctx, toc.DiscID())
		switch {
		case err == nil:
			view.CDStub = &stub
		case errors.Is(err, catalog.ErrNotFound):
		default:
			return AttachView{}, s.storageError(opPrepareAttach, "cdstub_lookup_failed", err)
		}
	}
	return view, nil
}

// AttachSubmission confirms attaching a disc to a medium.
type AttachSubmission struct {
	TOC      string
	MediumID string
	EditNote string
}

// Attach validates the target medium and queues an add disc id edit.
func (s *Service) Attach(ctx context.Context, editor Editor, submission AttachSubmission) (Outcome, error) {
	if err := requireEditor(opAttach, editor); err != nil {
		return Outcome{}, err
	}
	toc, failure := parseTOC(submission.TOC)
	if failure != nil {
		return s.reject(opAttach, failure), nil
	}
	medium, release, err := s.loadEligibleMedium(ctx, opAttach, "medium", submission.MediumID, toc)
	if err != nil {
		return s.resolveFailure(opAttach, err)
	}

	record, err := s.cdtocs.FindOrInsertCDTOC(ctx, toc)
	if err != nil {
		return Outcome{}, s.storageError(opAttach, "cdtoc_insert_failed", err)
	}

	return s.submit(ctx, opAttach, edits.Submission{
		Type:     edits.TypeAddDiscID,
		EditorID: editor.ID,
		EditNote: submission.EditNote,
		Data: edits.AddDiscIDData{
			MediumID:  medium.ID,
			ReleaseID: release.ID,
			CDTOCID:   record.ID,
			DiscID:    record.DiscID,
			TOC:       toc.String(),
		},
		ConflictKey: edits.AttachConflictKey(medium.ID, record.ID),
	}, release)
}

func (s *Service) existingAttachments(ctx context.Context, toc cdtoc.CDTOC) ([]catalog.Attachment, error) {
	record, err := s.cdtocs.FindCDTOCByDiscID(ctx, toc.DiscID())
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, s.storageError(opPrepareAttach, "cdtoc_lookup_failed", err)
	}
	attachments, err := s.mediumCDTOCs.ListAttachments(ctx, record.ID)
	if err != nil {
		return nil, s.storageError(opPrepareAttach, "attachments_failed", err)
	}
	return attachments, nil
}

// failOrPass records validation failures and passes infrastructure errors through.
func (s *Service) failOrPass(operation string, err error) error {
	var failure *ValidationError
	if errors.As(err, &failure) {
		return s.fail(operation, failure)
	}
	return err
}
