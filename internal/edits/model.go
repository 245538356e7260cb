package edits

import (
	"fmt"
	"time"
)

// Type enumerates the moderated edit kinds submitted by disc id workflows.
type Type int

const (
	// TypeAddDiscID attaches a disc table of contents to a medium.
	TypeAddDiscID Type = 55
	// TypeRemoveDiscID detaches a disc table of contents from a medium.
	TypeRemoveDiscID Type = 56
	// TypeMoveDiscID moves an attachment to another medium.
	TypeMoveDiscID Type = 57
	// TypeSetTrackLengths copies track durations from a disc table of contents.
	TypeSetTrackLengths Type = 58
)

// Status is the moderation state of an edit.
type Status int

const (
	StatusOpen       Status = 1
	StatusApplied    Status = 2
	StatusFailedVote Status = 3
	StatusCancelled  Status = 9
)

func (t Type) String() string {
	switch t {
	case TypeAddDiscID:
		return "add_discid"
	case TypeRemoveDiscID:
		return "remove_discid"
	case TypeMoveDiscID:
		return "move_discid"
	case TypeSetTrackLengths:
		return "set_track_lengths"
	default:
		return fmt.Sprintf("edit_type_%d", int(t))
	}
}

// Edit is a pending, moderatable change record.
type Edit struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	EditorID    int64     `gorm:"column:editor;not null;index"`
	Type        Type      `gorm:"column:type;not null;index"`
	Status      Status    `gorm:"column:status;not null;index"`
	DataJSON    string    `gorm:"column:data;type:text;not null"`
	ConflictKey *string   `gorm:"column:conflict_key;size:190;uniqueIndex"`
	OpenTime    time.Time `gorm:"column:open_time;not null"`
	ExpireTime  time.Time `gorm:"column:expire_time;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Edit) TableName() string {
	return "edit"
}

// EditNote is the justification attached to an edit.
type EditNote struct {
	ID       int64     `gorm:"column:id;primaryKey;autoIncrement"`
	EditID   int64     `gorm:"column:edit;not null;index"`
	EditorID int64     `gorm:"column:editor;not null"`
	Text     string    `gorm:"column:text;type:text;not null"`
	PostTime time.Time `gorm:"column:post_time;not null"`
}

// TableName provides the explicit table binding for GORM.
func (EditNote) TableName() string {
	return "edit_note"
}

// AddDiscIDData is the payload of an add disc id edit.
type AddDiscIDData struct {
	MediumID  int64  `json:"medium_id"`
	ReleaseID int64  `json:"release_id"`
	CDTOCID   int64  `json:"cdtoc_id"`
	DiscID    string `json:"discid"`
	TOC       string `json:"toc"`
}

// RemoveDiscIDData is the payload of a remove disc id edit.
type RemoveDiscIDData struct {
	MediumCDTOCID int64  `json:"medium_cdtoc_id"`
	MediumID      int64  `json:"medium_id"`
	ReleaseID     int64  `json:"release_id"`
	CDTOCID       int64  `json:"cdtoc_id"`
	DiscID        string `json:"discid"`
}

// MoveDiscIDData is the payload of a move disc id edit.
type MoveDiscIDData struct {
	MediumCDTOCID int64  `json:"medium_cdtoc_id"`
	CDTOCID       int64  `json:"cdtoc_id"`
	DiscID        string `json:"discid"`
	OldMediumID   int64  `json:"old_medium_id"`
	OldReleaseID  int64  `json:"old_release_id"`
	NewMediumID   int64  `json:"new_medium_id"`
	NewReleaseID  int64  `json:"new_release_id"`
}

// SetTrackLengthsData is the payload of a set track lengths edit.
type SetTrackLengthsData struct {
	MediumID     int64    `json:"medium_id"`
	ReleaseID    int64    `json:"release_id"`
	CDTOCID      int64    `json:"cdtoc_id"`
	OldLengthsMs []*int64 `json:"old_lengths_ms"`
	NewLengthsMs []int64  `json:"new_lengths_ms"`
}

// Models lists every table owned by the edit queue.
func Models() []interface{} {
	return []interface{}{&Edit{}, &EditNote{}}
}
