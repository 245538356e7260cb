package catalog

import (
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/discograph/backend/internal/cdtoc"
)

// Artist is a credited performer.
type Artist struct {
	ID       int64  `gorm:"column:id;primaryKey;autoIncrement"`
	GID      string `gorm:"column:gid;size:36;not null;uniqueIndex"`
	Name     string `gorm:"column:name;not null;index"`
	SortName string `gorm:"column:sort_name;not null"`
	Comment  string `gorm:"column:comment;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (Artist) TableName() string {
	return "artist"
}

// ArtistCredit groups the artists credited on a release, recording or track.
type ArtistCredit struct {
	ID   int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name string `gorm:"column:name;not null"`
}

// TableName provides the explicit table binding for GORM.
func (ArtistCredit) TableName() string {
	return "artist_credit"
}

// ArtistCreditName is one artist within an artist credit.
type ArtistCreditName struct {
	ArtistCreditID int64  `gorm:"column:artist_credit;primaryKey"`
	Position       int    `gorm:"column:position;primaryKey"`
	ArtistID       int64  `gorm:"column:artist;not null;index"`
	Name           string `gorm:"column:name;not null"`
	JoinPhrase     string `gorm:"column:join_phrase;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (ArtistCreditName) TableName() string {
	return "artist_credit_name"
}

// ReleaseGroup clusters the releases of one logical album.
type ReleaseGroup struct {
	ID             int64  `gorm:"column:id;primaryKey;autoIncrement"`
	GID            string `gorm:"column:gid;size:36;not null;uniqueIndex"`
	Name           string `gorm:"column:name;not null"`
	ArtistCreditID int64  `gorm:"column:artist_credit;not null"`
}

// TableName provides the explicit table binding for GORM.
func (ReleaseGroup) TableName() string {
	return "release_group"
}

// Release is a concrete issue of a release group.
type Release struct {
	ID             int64  `gorm:"column:id;primaryKey;autoIncrement"`
	GID            string `gorm:"column:gid;size:36;not null;uniqueIndex"`
	Name           string `gorm:"column:name;not null;index"`
	ArtistCreditID int64  `gorm:"column:artist_credit;not null;index"`
	ReleaseGroupID int64  `gorm:"column:release_group;not null;index"`
	Barcode        string `gorm:"column:barcode;not null;default:''"`
	Comment        string `gorm:"column:comment;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (Release) TableName() string {
	return "release"
}

// MediumFormat is the physical format of a medium and controls disc id eligibility.
type MediumFormat struct {
	ID         int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name       string `gorm:"column:name;not null;uniqueIndex"`
	HasDiscIDs bool   `gorm:"column:has_discids;not null;default:false"`
}

// TableName provides the explicit table binding for GORM.
func (MediumFormat) TableName() string {
	return "medium_format"
}

// Medium is one disc or side of a release.
type Medium struct {
	ID         int64  `gorm:"column:id;primaryKey;autoIncrement"`
	ReleaseID  int64  `gorm:"column:release;not null;index"`
	Position   int    `gorm:"column:position;not null"`
	FormatID   *int64 `gorm:"column:format"`
	Name       string `gorm:"column:name;not null;default:''"`
	TrackCount int    `gorm:"column:track_count;not null;default:0;index"`
}

// TableName provides the explicit table binding for GORM.
func (Medium) TableName() string {
	return "medium"
}

// Recording is a distinct audio recording.
type Recording struct {
	ID             int64  `gorm:"column:id;primaryKey;autoIncrement"`
	GID            string `gorm:"column:gid;size:36;not null;uniqueIndex"`
	Name           string `gorm:"column:name;not null"`
	ArtistCreditID int64  `gorm:"column:artist_credit;not null"`
	LengthMs       *int64 `gorm:"column:length"`
}

// TableName provides the explicit table binding for GORM.
func (Recording) TableName() string {
	return "recording"
}

// Track places a recording on a medium.
type Track struct {
	ID             int64  `gorm:"column:id;primaryKey;autoIncrement"`
	GID            string `gorm:"column:gid;size:36;not null;uniqueIndex"`
	MediumID       int64  `gorm:"column:medium;not null;index"`
	RecordingID    int64  `gorm:"column:recording;not null;index"`
	Position       int    `gorm:"column:position;not null"`
	Number         string `gorm:"column:number;not null"`
	Name           string `gorm:"column:name;not null"`
	ArtistCreditID int64  `gorm:"column:artist_credit;not null"`
	LengthMs       *int64 `gorm:"column:length"`
}

// TableName provides the explicit table binding for GORM.
func (Track) TableName() string {
	return "track"
}

// CDTOCRecord is a stored disc table of contents.
type CDTOCRecord struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement"`
	DiscID        string    `gorm:"column:discid;size:28;not null;uniqueIndex"`
	FreeDBID      string    `gorm:"column:freedb_id;size:8;not null;index"`
	TrackCount    int       `gorm:"column:track_count;not null"`
	LeadoutOffset int       `gorm:"column:leadout_offset;not null"`
	TrackOffsets  string    `gorm:"column:track_offset;type:text;not null"`
	Degraded      bool      `gorm:"column:degraded;not null;default:false"`
	Created       time.Time `gorm:"column:created;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (CDTOCRecord) TableName() string {
	return "cdtoc"
}

// NewCDTOCRecord converts a parsed table of contents into its storage shape.
func NewCDTOCRecord(toc cdtoc.CDTOC) CDTOCRecord {
	offsets := toc.TrackOffsets()
	parts := make([]string, len(offsets))
	for index, offset := range offsets {
		parts[index] = strconv.Itoa(offset)
	}
	return CDTOCRecord{
		DiscID:        toc.DiscID(),
		FreeDBID:      toc.FreeDBID(),
		TrackCount:    toc.TrackCount(),
		LeadoutOffset: toc.LeadoutOffset(),
		TrackOffsets:  strings.Join(parts, " "),
	}
}

// TOC rebuilds the parsed table of contents from the stored columns.
func (r CDTOCRecord) TOC() (cdtoc.CDTOC, error) {
	fields := strings.Fields(r.TrackOffsets)
	offsets := make([]int, 0, len(fields))
	for _, field := range fields {
		offset, err := strconv.Atoi(field)
		if err != nil {
			return cdtoc.CDTOC{}, cdtoc.ErrInvalidTocFormat
		}
		offsets = append(offsets, offset)
	}
	return cdtoc.New(1, r.TrackCount, r.LeadoutOffset, offsets)
}

// MediumCDTOC links a disc table of contents to a medium.
type MediumCDTOC struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	MediumID     int64     `gorm:"column:medium;not null;uniqueIndex:idx_medium_cdtoc_pair,priority:1"`
	CDTOCID      int64     `gorm:"column:cdtoc;not null;uniqueIndex:idx_medium_cdtoc_pair,priority:2;index"`
	EditsPending int       `gorm:"column:edits_pending;not null;default:0"`
	LastUpdated  time.Time `gorm:"column:last_updated;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (MediumCDTOC) TableName() string {
	return "medium_cdtoc"
}

// ReleaseMeta carries derived per-release data.
type ReleaseMeta struct {
	ReleaseID        int64     `gorm:"column:id;primaryKey"`
	DateAdded        time.Time `gorm:"column:date_added;autoCreateTime"`
	InfoURL          string    `gorm:"column:info_url;not null;default:''"`
	AmazonASIN       string    `gorm:"column:amazon_asin;size:10;not null;default:''"`
	CoverArtPresence string    `gorm:"column:cover_art_presence;not null;default:'absent'"`
}

// TableName provides the explicit table binding for GORM.
func (ReleaseMeta) TableName() string {
	return "release_meta"
}

// ReleaseGroupMeta carries derived per-release-group data.
type ReleaseGroupMeta struct {
	ReleaseGroupID int64 `gorm:"column:id;primaryKey"`
	ReleaseCount   int   `gorm:"column:release_count;not null;default:0"`
	Rating         *int  `gorm:"column:rating"`
	RatingCount    *int  `gorm:"column:rating_count"`
}

// TableName provides the explicit table binding for GORM.
func (ReleaseGroupMeta) TableName() string {
	return "release_group_meta"
}
