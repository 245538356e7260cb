package catalog

import "time"

// Editor is a registered account able to submit edits.
type Editor struct {
	ID               int64      `gorm:"column:id;primaryKey;autoIncrement"`
	Name             string     `gorm:"column:name;size:64;not null;uniqueIndex"`
	Privs            int        `gorm:"column:privs;not null;default:0"`
	Email            string     `gorm:"column:email;size:64;not null;default:''"`
	Website          string     `gorm:"column:website;size:255;not null;default:''"`
	Bio              string     `gorm:"column:bio;type:text;not null;default:''"`
	MemberSince      time.Time  `gorm:"column:member_since;autoCreateTime"`
	EmailConfirmDate *time.Time `gorm:"column:email_confirm_date"`
	LastLoginDate    *time.Time `gorm:"column:last_login_date"`
	Password         string     `gorm:"column:password;size:128;not null;default:''"`
	HaPassword       string     `gorm:"column:ha1;size:32;not null;default:''"`
	Deleted          bool       `gorm:"column:deleted;not null;default:false"`
}

// TableName provides the explicit table binding for GORM.
func (Editor) TableName() string {
	return "editor"
}

// EditorCollection is a private list of releases kept by an editor.
type EditorCollection struct {
	ID       int64  `gorm:"column:id;primaryKey;autoIncrement"`
	GID      string `gorm:"column:gid;size:36;not null;uniqueIndex"`
	EditorID int64  `gorm:"column:editor;not null;index"`
	Name     string `gorm:"column:name;not null"`
	Public   bool   `gorm:"column:public;not null;default:false"`
}

// TableName provides the explicit table binding for GORM.
func (EditorCollection) TableName() string {
	return "editor_collection"
}

// EditorCollectionRelease is a release inside an editor collection.
type EditorCollectionRelease struct {
	CollectionID int64     `gorm:"column:collection;primaryKey"`
	ReleaseID    int64     `gorm:"column:release;primaryKey"`
	Added        time.Time `gorm:"column:added;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (EditorCollectionRelease) TableName() string {
	return "editor_collection_release"
}
