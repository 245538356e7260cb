package export

import "time"

// ReplicationControl is the singleton row tracking the schema version and replication checkpoint.
type ReplicationControl struct {
	ID                         int64      `gorm:"column:id;primaryKey"`
	CurrentSchemaSequence      int        `gorm:"column:current_schema_sequence;not null"`
	CurrentReplicationSequence *int64     `gorm:"column:current_replication_sequence"`
	LastReplicationDate        *time.Time `gorm:"column:last_replication_date"`
}

// TableName provides the explicit table binding for GORM.
func (ReplicationControl) TableName() string {
	return tableReplicationControl
}

// PendingChange is one staged row change awaiting the next replication packet.
type PendingChange struct {
	SeqID int64  `gorm:"column:seqid;primaryKey;autoIncrement"`
	Table string `gorm:"column:tablename;not null"`
	Op    string `gorm:"column:op;size:1;not null"`
	XID   int64  `gorm:"column:xid;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (PendingChange) TableName() string {
	return tablePending
}

// PendingData holds the key or new values of a staged change.
type PendingData struct {
	SeqID int64  `gorm:"column:seqid;primaryKey"`
	IsKey bool   `gorm:"column:iskey;primaryKey"`
	Data  string `gorm:"column:data;type:text;not null"`
}

// TableName provides the explicit table binding for GORM.
func (PendingData) TableName() string {
	return tablePendingData
}

// Models lists the tables owned by the export job.
func Models() []interface{} {
	return []interface{}{&ReplicationControl{}, &PendingChange{}, &PendingData{}}
}
