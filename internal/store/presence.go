package store

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ChatUser is one presence record: the last-seen state of a display name in a
// room. The (room, name) pair is unique; IsActive flips on join/leave.
type ChatUser struct {
	ID       uint      `gorm:"primarykey"`
	Room     string    `gorm:"size:128;not null;uniqueIndex:idx_users_room_name;index:idx_users_active_room,priority:2"`
	Name     string    `gorm:"size:128;not null;uniqueIndex:idx_users_room_name"`
	JoinedAt time.Time `gorm:"not null"`
	LastSeen time.Time `gorm:"not null"`
	IsActive bool      `gorm:"not null;default:false;index:idx_users_active_room,priority:1"`
}

// TableName returns the table name for the ChatUser model.
func (ChatUser) TableName() string {
	return "chat_users"
}

// SQLitePresence records join/leave presence in a SQLite database.
type SQLitePresence struct {
	db *gorm.DB
}

// OpenSQLitePresence opens (or creates) the presence database at path and
// runs migrations.
func OpenSQLitePresence(path string) (*SQLitePresence, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %s: %w", path, err)
	}
	if err := db.AutoMigrate(&ChatUser{}); err != nil {
		return nil, fmt.Errorf("migrate presence schema: %w", err)
	}
	return &SQLitePresence{db: db}, nil
}

// ResetActive marks every presence record inactive. Called once at startup so
// a crashed process does not leave ghosts online.
func (p *SQLitePresence) ResetActive() error {
	err := p.db.Model(&ChatUser{}).
		Where("is_active = ?", true).
		Update("is_active", false).Error
	if err != nil {
		return fmt.Errorf("reset presence states: %w", err)
	}
	return nil
}

// RecordJoin upserts the (room, name) record as active with a fresh last-seen
// time.
func (p *SQLitePresence) RecordJoin(room, name string) error {
	return p.upsert(room, name, true)
}

// RecordLeave upserts the (room, name) record as inactive with a fresh
// last-seen time.
func (p *SQLitePresence) RecordLeave(room, name string) error {
	return p.upsert(room, name, false)
}

func (p *SQLitePresence) upsert(room, name string, active bool) error {
	now := time.Now().UTC()
	user := ChatUser{
		Room:     room,
		Name:     name,
		JoinedAt: now,
		LastSeen: now,
		IsActive: active,
	}

	err := p.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "room"}, {Name: "name"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_seen": now,
			"is_active": active,
		}),
	}).Create(&user).Error
	if err != nil {
		return fmt.Errorf("record presence for %s@%s: %w", name, room, err)
	}
	return nil
}
