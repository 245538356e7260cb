package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/discograph/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/cdtoc"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/database"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/discid"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/edits"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	sixTrackTOC       = "1 6 242457 150 44942 61305 72755 96360 130485"
	testSessionSecret = "router-session-secret"
	testCookieName    = "discograph_session"
)

type routerFixture struct {
	db       *gorm.DB
	handler  http.Handler
	issuer   *auth.SessionIssuer
	sequence int
}

func newRouterFixture(t *testing.T, logger *zap.Logger) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(filepath.Join(t.TempDir(), "server.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	store, err := catalog.NewStore(catalog.StoreConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}
	queue, err := edits.NewQueue(edits.QueueConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build queue: %v", err)
	}
	registry := prometheus.NewRegistry()
	recorder, err := metrics.NewDiscIDMetrics(registry)
	if err != nil {
		t.Fatalf("failed to register metrics: %v", err)
	}
	service, err := discid.NewService(discid.ServiceConfig{
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
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSessionSecret),
		CookieName:    testCookieName,
	})
	if err != nil {
		t.Fatalf("failed to build validator: %v", err)
	}
	issuer, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{SigningSecret: []byte(testSessionSecret)})
	if err != nil {
		t.Fatalf("failed to build issuer: %v", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	handler, err := NewHTTPHandler(Dependencies{
		DiscIDs:        service,
		Releases:       store,
		Edits:          queue,
		Sessions:       validator,
		LoginPath:      "/login",
		PageSize:       10,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Logger:         logger,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return &routerFixture{db: db, handler: handler, issuer: issuer}
}

func (f *routerFixture) nextGID() string {
	f.sequence++
	return fmt.Sprintf("00000000-0000-4000-9000-%012d", f.sequence)
}

func (f *routerFixture) createRelease(t *testing.T, name string, formatName string, trackCount int) (catalog.Release, catalog.Medium) {
	t.Helper()
	credit := catalog.ArtistCredit{Name: "Artist of " + name}
	if err := f.db.Create(&credit).Error; err != nil {
		t.Fatalf("failed to create artist credit: %v", err)
	}
	group := catalog.ReleaseGroup{GID: f.nextGID(), Name: name, ArtistCreditID: credit.ID}
	if err := f.db.Create(&group).Error; err != nil {
		t.Fatalf("failed to create release group: %v", err)
	}
	release := catalog.Release{GID: f.nextGID(), Name: name, ArtistCreditID: credit.ID, ReleaseGroupID: group.ID}
	if err := f.db.Create(&release).Error; err != nil {
		t.Fatalf("failed to create release: %v", err)
	}
	var format catalog.MediumFormat
	if err := f.db.Where("name = ?", formatName).Take(&format).Error; err != nil {
		t.Fatalf("missing format %s: %v", formatName, err)
	}
	medium := catalog.Medium{ReleaseID: release.ID, Position: 1, FormatID: &format.ID, TrackCount: trackCount}
	if err := f.db.Create(&medium).Error; err != nil {
		t.Fatalf("failed to create medium: %v", err)
	}
	for index := 1; index <= trackCount; index++ {
		recording := catalog.Recording{GID: f.nextGID(), Name: fmt.Sprintf("Song %d", index), ArtistCreditID: credit.ID}
		if err := f.db.Create(&recording).Error; err != nil {
			t.Fatalf("failed to create recording: %v", err)
		}
		track := catalog.Track{
			GID:            f.nextGID(),
			MediumID:       medium.ID,
			RecordingID:    recording.ID,
			Position:       index,
			Number:         fmt.Sprintf("%d", index),
			Name:           recording.Name,
			ArtistCreditID: credit.ID,
		}
		if err := f.db.Create(&track).Error; err != nil {
			t.Fatalf("failed to create track: %v", err)
		}
	}
	return release, medium
}

func (f *routerFixture) attach(t *testing.T, medium catalog.Medium, rawTOC string) (catalog.CDTOCRecord, catalog.MediumCDTOC) {
	t.Helper()
	toc, err := cdtoc.Parse(rawTOC)
	if err != nil {
		t.Fatalf("failed to parse toc: %v", err)
	}
	record := catalog.NewCDTOCRecord(toc)
	if err := f.db.Where("discid = ?", record.DiscID).FirstOrCreate(&record).Error; err != nil {
		t.Fatalf("failed to create cdtoc: %v", err)
	}
	link := catalog.MediumCDTOC{MediumID: medium.ID, CDTOCID: record.ID}
	if err := f.db.Create(&link).Error; err != nil {
		t.Fatalf("failed to create medium cdtoc: %v", err)
	}
	return record, link
}

func (f *routerFixture) sessionCookie(t *testing.T) *http.Cookie {
	t.Helper()
	token, expiresAt, err := f.issuer.Issue(7, "router-editor")
	if err != nil {
		t.Fatalf("failed to issue session: %v", err)
	}
	return &http.Cookie{Name: testCookieName, Value: token, Expires: expiresAt}
}

func (f *routerFixture) do(request *http.Request) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, request)
	return recorder
}

func (f *routerFixture) get(path string, cookie *http.Cookie, headers map[string]string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	if cookie != nil {
		request.AddCookie(cookie)
	}
	for key, value := range headers {
		request.Header.Set(key, value)
	}
	return f.do(request)
}

func (f *routerFixture) postForm(path string, cookie *http.Cookie, form url.Values) *httptest.ResponseRecorder {
	request := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		request.AddCookie(cookie)
	}
	return f.do(request)
}

func discIDOf(t *testing.T, rawTOC string) string {
	t.Helper()
	toc, err := cdtoc.Parse(rawTOC)
	if err != nil {
		t.Fatalf("failed to parse toc: %v", err)
	}
	return toc.DiscID()
}
