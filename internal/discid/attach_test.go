package discid

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/MarcoPoloResearchLab/discograph/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/cdtoc"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/edits"
)

func TestSelectAttachStateFirstParameterWins(t *testing.T) {
	testCases := []struct {
		name     string
		request  AttachRequest
		expected AttachState
	}{
		{name: "medium beats everything", request: AttachRequest{MediumID: "1", ArtistID: "2", ArtistName: "a", ReleaseName: "r"}, expected: StateAttachToMedium},
		{name: "artist id beats names", request: AttachRequest{ArtistID: "2", ArtistName: "a", ReleaseName: "r"}, expected: StateBrowseByArtist},
		{name: "artist name beats release name", request: AttachRequest{ArtistName: "a", ReleaseName: "r"}, expected: StateSearchArtists},
		{name: "release name", request: AttachRequest{ReleaseName: "r"}, expected: StateSearchReleases},
		{name: "nothing", request: AttachRequest{}, expected: StateShowLookupPage},
		{name: "blank medium ignored", request: AttachRequest{MediumID: "  ", ReleaseName: "r"}, expected: StateSearchReleases},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if state := SelectAttachState(testCase.request); state != testCase.expected {
				t.Fatalf("expected %s, got %s", testCase.expected, state)
			}
		})
	}
}

func TestAttachCreatesAddDiscIDEdit(t *testing.T) {
	env := newTestEnvironment(t)
	_, credit := env.createArtist(t, "Example Artist")
	release := env.createRelease(t, "Example Album", credit)
	medium := env.createMedium(t, release, 1, env.formatID(t, "CD"), 6)

	outcome, err := env.service.Attach(background, testEditor, AttachSubmission{
		TOC:      sixTrackTOC,
		MediumID: idString(medium.ID),
		EditNote: "ripped from my copy",
	})
	if err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	if !outcome.Created() {
		t.Fatalf("expected created edit, got failure %+v", outcome.Failure)
	}
	if outcome.Release.ID != release.ID {
		t.Fatalf("expected release %d, got %d", release.ID, outcome.Release.ID)
	}

	edit := env.loadEdit(t, outcome.EditID)
	if edit.Type != edits.TypeAddDiscID {
		t.Fatalf("expected add disc id edit, got %d", edit.Type)
	}
	if edit.EditorID != testEditor.ID {
		t.Fatalf("expected editor %d, got %d", testEditor.ID, edit.EditorID)
	}
	var data edits.AddDiscIDData
	if err := json.Unmarshal([]byte(edit.DataJSON), &data); err != nil {
		t.Fatalf("failed to decode edit data: %v", err)
	}
	toc, _ := cdtoc.Parse(sixTrackTOC)
	if data.MediumID != medium.ID || data.DiscID != toc.DiscID() {
		t.Fatalf("unexpected edit data %+v", data)
	}

	var record catalog.CDTOCRecord
	if err := env.db.Where("discid = ?", toc.DiscID()).Take(&record).Error; err != nil {
		t.Fatalf("expected stored cdtoc: %v", err)
	}
	if record.ID != data.CDTOCID {
		t.Fatalf("expected edit to reference cdtoc %d, got %d", record.ID, data.CDTOCID)
	}
	if len(env.recorder.submitted) != 1 || env.recorder.submitted[0] != edits.TypeAddDiscID {
		t.Fatalf("expected one recorded submission, got %v", env.recorder.submitted)
	}
}

func TestAttachRejectsExistingAttachment(t *testing.T) {
	env := newTestEnvironment(t)
	_, credit := env.createArtist(t, "Example Artist")
	release := env.createRelease(t, "Example Album", credit)
	medium := env.createMedium(t, release, 1, env.formatID(t, "CD"), 6)
	env.attach(t, medium, sixTrackTOC)

	outcome, err := env.service.Attach(background, testEditor, AttachSubmission{TOC: sixTrackTOC, MediumID: idString(medium.ID)})
	expectFailure(t, outcome, err, ErrDuplicateAttachment)
	if !errors.Is(outcome.Failure, ErrDuplicateAttachment) {
		t.Fatalf("expected errors.Is to match duplicate attachment")
	}
	if count := env.editCount(t); count != 0 {
		t.Fatalf("expected no edits, got %d", count)
	}
}

func TestAttachRejectsSecondOpenEditForSamePair(t *testing.T) {
	env := newTestEnvironment(t)
	_, credit := env.createArtist(t, "Example Artist")
	release := env.createRelease(t, "Example Album", credit)
	medium := env.createMedium(t, release, 1, env.formatID(t, "CD"), 6)
	submission := AttachSubmission{TOC: sixTrackTOC, MediumID: idString(medium.ID)}

	first, err := env.service.Attach(background, testEditor, submission)
	if err != nil || !first.Created() {
		t.Fatalf("expected first attach to succeed, got %+v, %v", first.Failure, err)
	}
	second, err := env.service.Attach(background, testEditor, submission)
	expectFailure(t, second, err, ErrDuplicateAttachment)
	if count := env.editCount(t); count != 1 {
		t.Fatalf("expected exactly one edit, got %d", count)
	}
}

func TestAttachRejectsInvalidRequests(t *testing.T) {
	env := newTestEnvironment(t)
	_, credit := env.createArtist(t, "Example Artist")
	release := env.createRelease(t, "Example Album", credit)
	cd := env.createMedium(t, release, 1, env.formatID(t, "CD"), 6)
	vinyl := env.createMedium(t, release, 2, env.formatID(t, "Vinyl"), 6)
	shortCD := env.createMedium(t, release, 3, env.formatID(t, "CD"), 5)

	testCases := []struct {
		name       string
		submission AttachSubmission
		expected   *ValidationError
	}{
		{name: "missing toc", submission: AttachSubmission{MediumID: idString(cd.ID)}, expected: ErrMissingParameter},
		{name: "malformed toc", submission: AttachSubmission{TOC: "1 6 abc", MediumID: idString(cd.ID)}, expected: ErrInvalidTocFormat},
		{name: "missing medium", submission: AttachSubmission{TOC: sixTrackTOC}, expected: ErrMissingParameter},
		{name: "non numeric medium", submission: AttachSubmission{TOC: sixTrackTOC, MediumID: "abc"}, expected: ErrInvalidParameter},
		{name: "unknown medium", submission: AttachSubmission{TOC: sixTrackTOC, MediumID: "99999"}, expected: ErrMediumNotFound},
		{name: "vinyl medium", submission: AttachSubmission{TOC: sixTrackTOC, MediumID: idString(vinyl.ID)}, expected: ErrIneligibleMedium},
		{name: "track count mismatch", submission: AttachSubmission{TOC: sixTrackTOC, MediumID: idString(shortCD.ID)}, expected: ErrTrackCountMismatch},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			outcome, err := env.service.Attach(background, testEditor, testCase.submission)
			expectFailure(t, outcome, err, testCase.expected)
		})
	}
	if count := env.editCount(t); count != 0 {
		t.Fatalf("expected no edits, got %d", count)
	}
	if len(env.recorder.failures) != len(testCases) {
		t.Fatalf("expected %d recorded failures, got %d", len(testCases), len(env.recorder.failures))
	}
}

func TestAttachRequiresEditor(t *testing.T) {
	env := newTestEnvironment(t)
	_, err := env.service.Attach(background, Editor{}, AttachSubmission{TOC: sixTrackTOC, MediumID: "1"})
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("expected service error, got %v", err)
	}
	if serviceErr.Code() != "discid.attach.missing_editor" {
		t.Fatalf("unexpected code %s", serviceErr.Code())
	}
}

func TestPrepareAttachBrowseByArtistListsMatchingTrackCounts(t *testing.T) {
	env := newTestEnvironment(t)
	artist, credit := env.createArtist(t, "Example Artist")
	six := env.createRelease(t, "Six Tracks", credit)
	env.createMedium(t, six, 1, env.formatID(t, "CD"), 6)
	five := env.createRelease(t, "Five Tracks", credit)
	env.createMedium(t, five, 1, env.formatID(t, "CD"), 5)
	vinyl := env.createRelease(t, "Six Tracks On Vinyl", credit)
	env.createMedium(t, vinyl, 1, env.formatID(t, "Vinyl"), 6)

	view, err := env.service.PrepareAttach(background, AttachRequest{TOC: sixTrackTOC, ArtistID: idString(artist.ID)})
	if err != nil {
		t.Fatalf("prepare attach failed: %v", err)
	}
	if view.State != StateBrowseByArtist {
		t.Fatalf("expected browse by artist, got %s", view.State)
	}
	if view.Releases == nil || len(view.Releases.Items) != 1 {
		t.Fatalf("expected one candidate release, got %+v", view.Releases)
	}
	candidate := view.Releases.Items[0]
	if candidate.Release.ID != six.ID {
		t.Fatalf("expected release %d, got %d", six.ID, candidate.Release.ID)
	}
	if candidate.ArtistCredit != "Example Artist" || len(candidate.Mediums) != 1 {
		t.Fatalf("unexpected candidate %+v", candidate)
	}
	if count := env.editCount(t); count != 0 {
		t.Fatalf("expected no edits, got %d", count)
	}
}

func TestPrepareAttachSearchesCaseInsensitively(t *testing.T) {
	env := newTestEnvironment(t)
	_, credit := env.createArtist(t, "Quiet Orchestra")
	release := env.createRelease(t, "Evening Music", credit)
	env.createMedium(t, release, 1, nil, 6)

	artists, err := env.service.PrepareAttach(background, AttachRequest{TOC: sixTrackTOC, ArtistName: "quiet"})
	if err != nil {
		t.Fatalf("artist search failed: %v", err)
	}
	if artists.State != StateSearchArtists || artists.Artists == nil || len(artists.Artists.Items) != 1 {
		t.Fatalf("expected one artist, got %+v", artists.Artists)
	}

	releases, err := env.service.PrepareAttach(background, AttachRequest{TOC: sixTrackTOC, ReleaseName: "EVENING"})
	if err != nil {
		t.Fatalf("release search failed: %v", err)
	}
	if releases.State != StateSearchReleases || releases.Releases == nil || len(releases.Releases.Items) != 1 {
		t.Fatalf("expected one release, got %+v", releases.Releases)
	}
}

func TestPrepareAttachFallsBackToCDStub(t *testing.T) {
	env := newTestEnvironment(t)
	toc, _ := cdtoc.Parse(sixTrackTOC)
	stub := catalog.ReleaseRaw{Title: "Home Recording", Artist: "Someone"}
	if err := env.db.Create(&stub).Error; err != nil {
		t.Fatalf("failed to create stub: %v", err)
	}
	raw := catalog.CDTOCRaw{ReleaseRawID: stub.ID, DiscID: toc.DiscID(), TrackCount: 6, LeadoutOffset: 242457, TrackOffsets: "150 44942 61305 72755 96360 130485"}
	if err := env.db.Create(&raw).Error; err != nil {
		t.Fatalf("failed to create stub toc: %v", err)
	}
	for sequence := 1; sequence <= 2; sequence++ {
		if err := env.db.Create(&catalog.TrackRaw{ReleaseRawID: stub.ID, Title: "Untitled", Sequence: sequence}).Error; err != nil {
			t.Fatalf("failed to create stub track: %v", err)
		}
	}

	view, err := env.service.PrepareAttach(background, AttachRequest{TOC: sixTrackTOC})
	if err != nil {
		t.Fatalf("prepare attach failed: %v", err)
	}
	if view.State != StateShowLookupPage {
		t.Fatalf("expected lookup page, got %s", view.State)
	}
	if view.CDStub == nil || view.CDStub.Release.Title != "Home Recording" || len(view.CDStub.Tracks) != 2 {
		t.Fatalf("expected cd stub, got %+v", view.CDStub)
	}
}

func TestPrepareAttachListsExistingAttachments(t *testing.T) {
	env := newTestEnvironment(t)
	_, credit := env.createArtist(t, "Example Artist")
	release := env.createRelease(t, "Example Album", credit)
	medium := env.createMedium(t, release, 1, env.formatID(t, "CD"), 6)
	env.attach(t, medium, sixTrackTOC)

	view, err := env.service.PrepareAttach(background, AttachRequest{TOC: sixTrackTOC})
	if err != nil {
		t.Fatalf("prepare attach failed: %v", err)
	}
	if len(view.Attachments) != 1 || view.Attachments[0].Release.ID != release.ID {
		t.Fatalf("expected one attachment, got %+v", view.Attachments)
	}
	if view.CDStub != nil {
		t.Fatalf("expected no cd stub")
	}
}

func TestLookupResolvesAttachments(t *testing.T) {
	env := newTestEnvironment(t)
	_, credit := env.createArtist(t, "Example Artist")
	release := env.createRelease(t, "Example Album", credit)
	medium := env.createMedium(t, release, 1, env.formatID(t, "CD"), 6)
	record, _ := env.attach(t, medium, sixTrackTOC)

	view, err := env.service.Lookup(background, record.DiscID)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if view.TOC.String() != sixTrackTOC || len(view.Attachments) != 1 {
		t.Fatalf("unexpected lookup view %+v", view)
	}

	_, err = env.service.Lookup(background, "not-a-disc-id")
	if !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected invalid parameter, got %v", err)
	}
	_, err = env.service.Lookup(background, "aaaaaaaaaaaaaaaaaaaaaaaaaaa-")
	if !errors.Is(err, ErrCDTOCNotFound) {
		t.Fatalf("expected cdtoc not found, got %v", err)
	}
}
