package discid

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/discograph/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/cdtoc"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/database"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/edits"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const sixTrackTOC = "1 6 242457 150 44942 61305 72755 96360 130485"

var testEditor = Editor{ID: 7, Name: "tester"}

type testEnvironment struct {
	db       *gorm.DB
	service  *Service
	recorder *recordingRecorder
	sequence int
}

type recordingRecorder struct {
	submitted []edits.Type
	failures  []ErrorKind
}

func (r *recordingRecorder) EditSubmitted(editType edits.Type) {
	r.submitted = append(r.submitted, editType)
}

func (r *recordingRecorder) ValidationFailed(_ string, kind ErrorKind) {
	r.failures = append(r.failures, kind)
}

func newTestEnvironment(t *testing.T) *testEnvironment {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "discid.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	store, err := catalog.NewStore(catalog.StoreConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}
	queue, err := edits.NewQueue(edits.QueueConfig{
		Database: db,
		Clock:    func() time.Time { return time.Unix(1760000000, 0) },
	})
	if err != nil {
		t.Fatalf("failed to build queue: %v", err)
	}
	recorder := &recordingRecorder{}
	service, err := NewService(ServiceConfig{
		Mediums:      store,
		Releases:     store,
		Artists:      store,
		CDTOCs:       store,
		MediumCDTOCs: store,
		CDStubs:      store,
		Edits:        queue,
		Recorder:     recorder,
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return &testEnvironment{db: db, service: service, recorder: recorder}
}

func (env *testEnvironment) nextGID() string {
	env.sequence++
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", env.sequence)
}

func (env *testEnvironment) formatID(t *testing.T, name string) *int64 {
	t.Helper()
	var format catalog.MediumFormat
	if err := env.db.Where("name = ?", name).Take(&format).Error; err != nil {
		t.Fatalf("missing format %s: %v", name, err)
	}
	return &format.ID
}

func (env *testEnvironment) createArtist(t *testing.T, name string) (catalog.Artist, catalog.ArtistCredit) {
	t.Helper()
	artist := catalog.Artist{GID: env.nextGID(), Name: name, SortName: name}
	if err := env.db.Create(&artist).Error; err != nil {
		t.Fatalf("failed to create artist: %v", err)
	}
	credit := catalog.ArtistCredit{Name: name}
	if err := env.db.Create(&credit).Error; err != nil {
		t.Fatalf("failed to create artist credit: %v", err)
	}
	creditName := catalog.ArtistCreditName{ArtistCreditID: credit.ID, Position: 0, ArtistID: artist.ID, Name: name}
	if err := env.db.Create(&creditName).Error; err != nil {
		t.Fatalf("failed to create artist credit name: %v", err)
	}
	return artist, credit
}

func (env *testEnvironment) createRelease(t *testing.T, name string, credit catalog.ArtistCredit) catalog.Release {
	t.Helper()
	group := catalog.ReleaseGroup{GID: env.nextGID(), Name: name, ArtistCreditID: credit.ID}
	if err := env.db.Create(&group).Error; err != nil {
		t.Fatalf("failed to create release group: %v", err)
	}
	release := catalog.Release{GID: env.nextGID(), Name: name, ArtistCreditID: credit.ID, ReleaseGroupID: group.ID}
	if err := env.db.Create(&release).Error; err != nil {
		t.Fatalf("failed to create release: %v", err)
	}
	return release
}

func (env *testEnvironment) createMedium(t *testing.T, release catalog.Release, position int, formatID *int64, trackCount int) catalog.Medium {
	t.Helper()
	medium := catalog.Medium{ReleaseID: release.ID, Position: position, FormatID: formatID, TrackCount: trackCount}
	if err := env.db.Create(&medium).Error; err != nil {
		t.Fatalf("failed to create medium: %v", err)
	}
	for index := 1; index <= trackCount; index++ {
		recording := catalog.Recording{GID: env.nextGID(), Name: fmt.Sprintf("Track %d", index), ArtistCreditID: release.ArtistCreditID}
		if err := env.db.Create(&recording).Error; err != nil {
			t.Fatalf("failed to create recording: %v", err)
		}
		track := catalog.Track{
			GID:            env.nextGID(),
			MediumID:       medium.ID,
			RecordingID:    recording.ID,
			Position:       index,
			Number:         fmt.Sprintf("%d", index),
			Name:           recording.Name,
			ArtistCreditID: release.ArtistCreditID,
		}
		if err := env.db.Create(&track).Error; err != nil {
			t.Fatalf("failed to create track: %v", err)
		}
	}
	return medium
}

func (env *testEnvironment) attach(t *testing.T, medium catalog.Medium, rawTOC string) (catalog.CDTOCRecord, catalog.MediumCDTOC) {
	t.Helper()
	toc, err := cdtoc.Parse(rawTOC)
	if err != nil {
		t.Fatalf("failed to parse toc: %v", err)
	}
	record := catalog.NewCDTOCRecord(toc)
	if err := env.db.Where("discid = ?", record.DiscID).FirstOrCreate(&record).Error; err != nil {
		t.Fatalf("failed to create cdtoc: %v", err)
	}
	link := catalog.MediumCDTOC{MediumID: medium.ID, CDTOCID: record.ID}
	if err := env.db.Create(&link).Error; err != nil {
		t.Fatalf("failed to create medium cdtoc: %v", err)
	}
	return record, link
}

func (env *testEnvironment) editCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	if err := env.db.Model(&edits.Edit{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count edits: %v", err)
	}
	return count
}

func (env *testEnvironment) loadEdit(t *testing.T, id int64) edits.Edit {
	t.Helper()
	var edit edits.Edit
	if err := env.db.Where("id = ?", id).Take(&edit).Error; err != nil {
		t.Fatalf("failed to load edit %d: %v", id, err)
	}
	return edit
}

func idString(id int64) string {
	return fmt.Sprintf("%d", id)
}

func expectFailure(t *testing.T, outcome Outcome, err error, expected *ValidationError) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected infrastructure error: %v", err)
	}
	if outcome.Created() {
		t.Fatalf("expected %s, got created edit %d", expected.Kind, outcome.EditID)
	}
	if outcome.Failure == nil || outcome.Failure.Kind != expected.Kind {
		t.Fatalf("expected failure %s, got %+v", expected.Kind, outcome.Failure)
	}
}

var background = context.Background()
