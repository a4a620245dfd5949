package model

import "time"

// KVEntry is one row of the SQL-backed key-value table.
type KVEntry struct {
	Key       string    `gorm:"primaryKey;size:512"`
	Value     string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName pins the table name independently of gorm's pluralisation.
func (KVEntry) TableName() string {
	return "kv_entries"
}
