package catalog

import "time"

// Statistic is one collected database statistic.
type Statistic struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name          string    `gorm:"column:name;not null;index"`
	Value         int64     `gorm:"column:value;not null"`
	DateCollected time.Time `gorm:"column:date_collected;not null"`
}

func (Statistic) TableName() string {
	return "statistic"
}

type CoverArt struct {
	ID        int64     `gorm:"column:id;primaryKey"`
	ReleaseID int64     `gorm:"column:release;not null;index"`
	Comment   string    `gorm:"column:comment;not null;default:''"`
	Ordering  int       `gorm:"column:ordering;not null"`
	MimeType  string    `gorm:"column:mime_type;not null"`
	DateAdded time.Time `gorm:"column:date_uploaded;autoCreateTime"`
}

func (CoverArt) TableName() string {
	return "cover_art"
}

type ArtType struct {
	ID   int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name string `gorm:"column:name;not null;uniqueIndex"`
}

func (ArtType) TableName() string {
	return "art_type"
}

type CoverArtType struct {
	CoverArtID int64 `gorm:"column:id;primaryKey"`
	TypeID     int64 `gorm:"column:type_id;primaryKey"`
}

func (CoverArtType) TableName() string {
	return "cover_art_type"
}

// WikiDocsIndex pins transcluded documentation pages to a revision.
type WikiDocsIndex struct {
	Page     string `gorm:"column:page;primaryKey"`
	Revision int    `gorm:"column:revision;not null"`
}

func (WikiDocsIndex) TableName() string {
	return "wikidocs_index"
}

type LinkTypeDocumentation struct {
	ID            int64  `gorm:"column:id;primaryKey"`
	Documentation string `gorm:"column:documentation;type:text;not null"`
	Examples      bool   `gorm:"column:examples_deleted;not null;default:false"`
}

func (LinkTypeDocumentation) TableName() string {
	return "link_type_documentation"
}

// Models lists every table owned by the catalog, in migration order.
func Models() []interface{} {
	return []interface{}{
		&Artist{},
		&ArtistCredit{},
		&ArtistCreditName{},
		&ReleaseGroup{},
		&Release{},
		&MediumFormat{},
		&Medium{},
		&Recording{},
		&Track{},
		&CDTOCRecord{},
		&MediumCDTOC{},
		&ReleaseMeta{},
		&ReleaseGroupMeta{},
		&ReleaseRaw{},
		&CDTOCRaw{},
		&TrackRaw{},
		&Editor{},
		&EditorCollection{},
		&EditorCollectionRelease{},
		&Statistic{},
		&CoverArt{},
		&ArtType{},
		&CoverArtType{},
		&WikiDocsIndex{},
		&LinkTypeDocumentation{},
	}
}
