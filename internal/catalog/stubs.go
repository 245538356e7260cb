package catalog

import "time"

// ReleaseRaw is an unverified, user-submitted release awaiting reconciliation.
type ReleaseRaw struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Title        string    `gorm:"column:title;not null"`
	Artist       string    `gorm:"column:artist;not null;default:''"`
	Added        time.Time `gorm:"column:added;autoCreateTime"`
	LastModified time.Time `gorm:"column:last_modified;autoUpdateTime"`
	LookupCount  int       `gorm:"column:lookup_count;not null;default:0"`
	ModifyCount  int       `gorm:"column:modify_count;not null;default:0"`
	Source       int       `gorm:"column:source;not null;default:0"`
	Barcode      string    `gorm:"column:barcode;not null;default:''"`
	Comment      string    `gorm:"column:comment;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (ReleaseRaw) TableName() string {
	return "release_raw"
}

// CDTOCRaw is the disc table of contents submitted with a CD stub.
type CDTOCRaw struct {
	ID            int64  `gorm:"column:id;primaryKey;autoIncrement"`
	ReleaseRawID  int64  `gorm:"column:release;not null;index"`
	DiscID        string `gorm:"column:discid;size:28;not null;index"`
	TrackCount    int    `gorm:"column:track_count;not null"`
	LeadoutOffset int    `gorm:"column:leadout_offset;not null"`
	TrackOffsets  string `gorm:"column:track_offset;type:text;not null"`
}

// TableName provides the explicit table binding for GORM.
func (CDTOCRaw) TableName() string {
	return "cdtoc_raw"
}

// TrackRaw is one track of a CD stub.
type TrackRaw struct {
	ID           int64  `gorm:"column:id;primaryKey;autoIncrement"`
	ReleaseRawID int64  `gorm:"column:release;not null;index"`
	Title        string `gorm:"column:title;not null"`
	Artist       string `gorm:"column:artist;not null;default:''"`
	Sequence     int    `gorm:"column:sequence;not null"`
}

// TableName provides the explicit table binding for GORM.
func (TrackRaw) TableName() string {
	return "track_raw"
}

// CDStub is a stub release together with the disc that identifies it.
type CDStub struct {
	Release ReleaseRaw
	TOC     CDTOCRaw
	Tracks  []TrackRaw
}
