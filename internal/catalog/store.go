package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/discograph/backend/internal/cdtoc"
	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"
)

const (
	defaultPageSize       = 25
	maxPageSize           = 100
	defaultFormatCacheTTL = 10 * time.Minute
)

var (
	// ErrNotFound indicates that the requested entity does not exist.
	ErrNotFound = errors.New("catalog: not found")

	errMissingDatabase = errors.New("catalog: database handle is required")
)

// MediumStore loads mediums and their tracks.
type MediumStore interface {
	GetMedium(ctx context.Context, id int64) (Medium, error)
	ListTracks(ctx context.Context, mediumID int64) ([]Track, error)
	MayHaveDiscIDs(ctx context.Context, medium Medium) (bool, error)
}

// ReleaseStore loads releases and lists disc id candidates.
type ReleaseStore interface {
	GetRelease(ctx context.Context, id int64) (Release, error)
	ListReleasesByArtist(ctx context.Context, artistID int64, trackCount int, page Page) (ReleasePage, error)
	SearchReleases(ctx context.Context, name string, trackCount int, page Page) (ReleasePage, error)
}

// ArtistStore loads and searches artists.
type ArtistStore interface {
	GetArtist(ctx context.Context, id int64) (Artist, error)
	SearchArtists(ctx context.Context, name string, page Page) (ArtistPage, error)
}

// CDTOCStore loads and stores disc tables of contents.
type CDTOCStore interface {
	GetCDTOC(ctx context.Context, id int64) (CDTOCRecord, error)
	FindCDTOCByDiscID(ctx context.Context, discID string) (CDTOCRecord, error)
	FindOrInsertCDTOC(ctx context.Context, toc cdtoc.CDTOC) (CDTOCRecord, error)
}

// MediumCDTOCStore loads links between mediums and disc tables of contents.
type MediumCDTOCStore interface {
	GetMediumCDTOC(ctx context.Context, id int64) (MediumCDTOC, error)
	FindMediumCDTOC(ctx context.Context, mediumID, cdtocID int64) (MediumCDTOC, error)
	ListAttachments(ctx context.Context, cdtocID int64) ([]Attachment, error)
}

// CDStubStore loads unverified disc submissions.
type CDStubStore interface {
	FindCDStubByDiscID(ctx context.Context, discID string) (CDStub, error)
}

// Page selects a 1-based page of results.
type Page struct {
	Number int
	Size   int
}

func (p Page) normalized() Page {
	number := p.Number
	if number < 1 {
		number = 1
	}
	size := p.Size
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return Page{Number: number, Size: size}
}

func (p Page) offset() int {
	return (p.Number - 1) * p.Size
}

// ReleaseCandidate is a release with the mediums a disc could be attached to.
type ReleaseCandidate struct {
	Release      Release
	ArtistCredit string
	Mediums      []Medium
}

// ReleasePage is one page of release candidates.
type ReleasePage struct {
	Items    []ReleaseCandidate
	Total    int64
	Page     int
	PageSize int
}

// ArtistPage is one page of artists.
type ArtistPage struct {
	Items    []Artist
	Total    int64
	Page     int
	PageSize int
}

// Attachment is a medium link together with its display context.
type Attachment struct {
	Link    MediumCDTOC
	Medium  Medium
	Release Release
}

// StoreConfig configures the gorm-backed catalog store.
type StoreConfig struct {
	Database       *gorm.DB
	FormatCacheTTL time.Duration
}

// Store implements every catalog store interface on top of gorm.
type Store struct {
	db      *gorm.DB
	formats *cache.Cache
}

// NewStore constructs a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	ttl := cfg.FormatCacheTTL
	if ttl <= 0 {
		ttl = defaultFormatCacheTTL
	}
	return &Store{
		db:      cfg.Database,
		formats: cache.New(ttl, 2*ttl),
	}, nil
}

func (s *Store) GetMedium(ctx context.Context, id int64) (Medium, error) {
	var medium Medium
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&medium).Error; err != nil {
		return Medium{}, wrapLookup("medium", id, err)
	}
	return medium, nil
}

func (s *Store) ListTracks(ctx context.Context, mediumID int64) ([]Track, error) {
	var tracks []Track
	if err := s.db.WithContext(ctx).
		Where("medium = ?", mediumID).
		Order("position ASC").
		Find(&tracks).Error; err != nil {
		return nil, fmt.Errorf("catalog: list tracks of medium %d: %w", mediumID, err)
	}
	return tracks, nil
}

// MayHaveDiscIDs reports whether the medium's format allows disc ids. Mediums without a format may.
func (s *Store) MayHaveDiscIDs(ctx context.Context, medium Medium) (bool, error) {
	if medium.FormatID == nil {
		return true, nil
	}
	key := strconv.FormatInt(*medium.FormatID, 10)
	if cached, ok := s.formats.Get(key); ok {
		if allowed, ok := cached.(bool); ok {
			return allowed, nil
		}
	}
	var format MediumFormat
	if err := s.db.WithContext(ctx).Where("id = ?", *medium.FormatID).Take(&format).Error; err != nil {
		return false, wrapLookup("medium format", *medium.FormatID, err)
	}
	s.formats.SetDefault(key, format.HasDiscIDs)
	return format.HasDiscIDs, nil
}

func (s *Store) GetRelease(ctx context.Context, id int64) (Release, error) {
	var release Release
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&release).Error; err != nil {
		return Release{}, wrapLookup("release", id, err)
	}
	return release, nil
}

// ListReleasesByArtist lists releases credited to the artist that have an eligible medium with trackCount tracks.
func (s *Store) ListReleasesByArtist(ctx context.Context, artistID int64, trackCount int, page Page) (ReleasePage, error) {
	credits := s.db.Model(&ArtistCreditName{}).Select("artist_credit").Where("artist = ?", artistID)
	query := s.candidateQuery(ctx, trackCount).Where("artist_credit IN (?)", credits)
	return s.pageCandidates(ctx, query, trackCount, page)
}

// SearchReleases lists releases whose name contains name and that have an eligible medium with trackCount tracks.
func (s *Store) SearchReleases(ctx context.Context, name string, trackCount int, page Page) (ReleasePage, error) {
	query := s.candidateQuery(ctx, trackCount).Where(`LOWER(name) LIKE ? ESCAPE '\'`, likePattern(name))
	return s.pageCandidates(ctx, query, trackCount, page)
}

func (s *Store) candidateQuery(ctx context.Context, trackCount int) *gorm.DB {
	mediums := s.eligibleMediums(trackCount).Select(`"release"`)
	return s.db.WithContext(ctx).Model(&Release{}).Where("id IN (?)", mediums)
}

// eligibleMediums selects mediums with trackCount tracks whose format allows disc ids or is unset.
func (s *Store) eligibleMediums(trackCount int) *gorm.DB {
	eligibleFormats := s.db.Model(&MediumFormat{}).Select("id").Where("has_discids = ?", true)
	return s.db.Model(&Medium{}).
		Where("track_count = ?", trackCount).
		Where("format IS NULL OR format IN (?)", eligibleFormats)
}

func (s *Store) pageCandidates(ctx context.Context, query *gorm.DB, trackCount int, page Page) (ReleasePage, error) {
	page = page.normalized()
	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return ReleasePage{}, fmt.Errorf("catalog: count release candidates: %w", err)
	}
	var releases []Release
	if err := query.Session(&gorm.Session{}).
		Order("name ASC, id ASC").
		Limit(page.Size).
		Offset(page.offset()).
		Find(&releases).Error; err != nil {
		return ReleasePage{}, fmt.Errorf("catalog: list release candidates: %w", err)
	}

	result := ReleasePage{Items: make([]ReleaseCandidate, 0, len(releases)), Total: total, Page: page.Number, PageSize: page.Size}
	if len(releases) == 0 {
		return result, nil
	}

	releaseIDs := make([]int64, 0, len(releases))
	creditIDs := make([]int64, 0, len(releases))
	for _, release := range releases {
		releaseIDs = append(releaseIDs, release.ID)
		creditIDs = append(creditIDs, release.ArtistCreditID)
	}

	var mediums []Medium
	if err := s.eligibleMediums(trackCount).WithContext(ctx).
		Where(`"release" IN ?`, releaseIDs).
		Order("position ASC").
		Find(&mediums).Error; err != nil {
		return ReleasePage{}, fmt.Errorf("catalog: list candidate mediums: %w", err)
	}
	mediumsByRelease := make(map[int64][]Medium, len(releases))
	for _, medium := range mediums {
		mediumsByRelease[medium.ReleaseID] = append(mediumsByRelease[medium.ReleaseID], medium)
	}

	var credits []ArtistCredit
	if err := s.db.WithContext(ctx).Where("id IN ?", creditIDs).Find(&credits).Error; err != nil {
		return ReleasePage{}, fmt.Errorf("catalog: load artist credits: %w", err)
	}
	creditNames := make(map[int64]string, len(credits))
	for _, credit := range credits {
		creditNames[credit.ID] = credit.Name
	}

	for _, release := range releases {
		result.Items = append(result.Items, ReleaseCandidate{
			Release:      release,
			ArtistCredit: creditNames[release.ArtistCreditID],
			Mediums:      mediumsByRelease[release.ID],
		})
	}
	return result, nil
}

func (s *Store) GetArtist(ctx context.Context, id int64) (Artist, error) {
	var artist Artist
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&artist).Error; err != nil {
		return Artist{}, wrapLookup("artist", id, err)
	}
	return artist, nil
}

func (s *Store) SearchArtists(ctx context.Context, name string, page Page) (ArtistPage, error) {
	page = page.normalized()
	query := s.db.WithContext(ctx).Model(&Artist{}).
		Where(`LOWER(name) LIKE ? ESCAPE '\' OR LOWER(sort_name) LIKE ? ESCAPE '\'`, likePattern(name), likePattern(name))

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return ArtistPage{}, fmt.Errorf("catalog: count artists: %w", err)
	}
	var artists []Artist
	if err := query.Session(&gorm.Session{}).
		Order("sort_name ASC, id ASC").
		Limit(page.Size).
		Offset(page.offset()).
		Find(&artists).Error; err != nil {
		return ArtistPage{}, fmt.Errorf("catalog: search artists: %w", err)
	}
	return ArtistPage{Items: artists, Total: total, Page: page.Number, PageSize: page.Size}, nil
}

func (s *Store) GetCDTOC(ctx context.Context, id int64) (CDTOCRecord, error) {
	var record CDTOCRecord
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&record).Error; err != nil {
		return CDTOCRecord{}, wrapLookup("cdtoc", id, err)
	}
	return record, nil
}

func (s *Store) FindCDTOCByDiscID(ctx context.Context, discID string) (CDTOCRecord, error) {
	var record CDTOCRecord
	if err := s.db.WithContext(ctx).Where("discid = ?", discID).Take(&record).Error; err != nil {
		return CDTOCRecord{}, wrapLookup("cdtoc", discID, err)
	}
	return record, nil
}

// FindOrInsertCDTOC returns the stored row for toc, inserting it first when absent.
func (s *Store) FindOrInsertCDTOC(ctx context.Context, toc cdtoc.CDTOC) (CDTOCRecord, error) {
	existing, err := s.FindCDTOCByDiscID(ctx, toc.DiscID())
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return CDTOCRecord{}, err
	}
	record := NewCDTOCRecord(toc)
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		// A concurrent insert of the same disc id wins; read its row back.
		if raced, lookupErr := s.FindCDTOCByDiscID(ctx, toc.DiscID()); lookupErr == nil {
			return raced, nil
		}
		return CDTOCRecord{}, fmt.Errorf("catalog: insert cdtoc %s: %w", toc.DiscID(), err)
	}
	return record, nil
}

func (s *Store) GetMediumCDTOC(ctx context.Context, id int64) (MediumCDTOC, error) {
	var link MediumCDTOC
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&link).Error; err != nil {
		return MediumCDTOC{}, wrapLookup("medium cdtoc", id, err)
	}
	return link, nil
}

func (s *Store) FindMediumCDTOC(ctx context.Context, mediumID, cdtocID int64) (MediumCDTOC, error) {
	var link MediumCDTOC
	if err := s.db.WithContext(ctx).
		Where("medium = ? AND cdtoc = ?", mediumID, cdtocID).
		Take(&link).Error; err != nil {
		return MediumCDTOC{}, wrapLookup("medium cdtoc", fmt.Sprintf("%d/%d", mediumID, cdtocID), err)
	}
	return link, nil
}

// ListAttachments returns every medium the disc is attached to, with its release.
func (s *Store) ListAttachments(ctx context.Context, cdtocID int64) ([]Attachment, error) {
	var links []MediumCDTOC
	if err := s.db.WithContext(ctx).Where("cdtoc = ?", cdtocID).Order("id ASC").Find(&links).Error; err != nil {
		return nil, fmt.Errorf("catalog: list attachments of cdtoc %d: %w", cdtocID, err)
	}
	attachments := make([]Attachment, 0, len(links))
	for _, link := range links {
		medium, err := s.GetMedium(ctx, link.MediumID)
		if err != nil {
			return nil, err
		}
		release, err := s.GetRelease(ctx, medium.ReleaseID)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, Attachment{Link: link, Medium: medium, Release: release})
	}
	return attachments, nil
}

// ReleaseDiscID is one disc id attached to a medium of a release.
type ReleaseDiscID struct {
	Medium Medium
	Link   MediumCDTOC
	CDTOC  CDTOCRecord
}

// ListReleaseDiscIDs returns the disc ids attached to the release's mediums, ordered by medium position.
func (s *Store) ListReleaseDiscIDs(ctx context.Context, releaseID int64) ([]ReleaseDiscID, error) {
	var mediums []Medium
	if err := s.db.WithContext(ctx).Where(`"release" = ?`, releaseID).Order("position ASC").Find(&mediums).Error; err != nil {
		return nil, fmt.Errorf("catalog: list mediums of release %d: %w", releaseID, err)
	}
	var result []ReleaseDiscID
	for _, medium := range mediums {
		var links []MediumCDTOC
		if err := s.db.WithContext(ctx).Where("medium = ?", medium.ID).Order("id ASC").Find(&links).Error; err != nil {
			return nil, fmt.Errorf("catalog: list disc ids of medium %d: %w", medium.ID, err)
		}
		for _, link := range links {
			record, err := s.GetCDTOC(ctx, link.CDTOCID)
			if err != nil {
				return nil, err
			}
			result = append(result, ReleaseDiscID{Medium: medium, Link: link, CDTOC: record})
		}
	}
	return result, nil
}

func (s *Store) FindCDStubByDiscID(ctx context.Context, discID string) (CDStub, error) {
	var toc CDTOCRaw
	if err := s.db.WithContext(ctx).Where("discid = ?", discID).Order("id ASC").Take(&toc).Error; err != nil {
		return CDStub{}, wrapLookup("cdstub", discID, err)
	}
	var release ReleaseRaw
	if err := s.db.WithContext(ctx).Where("id = ?", toc.ReleaseRawID).Take(&release).Error; err != nil {
		return CDStub{}, wrapLookup("cdstub release", toc.ReleaseRawID, err)
	}
	var tracks []TrackRaw
	if err := s.db.WithContext(ctx).
		Where(`"release" = ?`, release.ID).
		Order("sequence ASC").
		Find(&tracks).Error; err != nil {
		return CDStub{}, fmt.Errorf("catalog: list cdstub tracks: %w", err)
	}
	return CDStub{Release: release, TOC: toc, Tracks: tracks}, nil
}

func wrapLookup(kind string, key interface{}, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %v", ErrNotFound, kind, key)
	}
	return fmt.Errorf("catalog: load %s %v: %w", kind, key, err)
}

// likePattern builds a substring pattern for LIKE ... ESCAPE '\', matching wildcards literally.
func likePattern(value string) string {
	escaped := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(strings.ToLower(strings.TrimSpace(value)))
	return "%" + escaped + "%"
}
