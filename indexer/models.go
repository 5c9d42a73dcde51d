package indexer

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Block is one executed block.
type Block struct {
	Height    uint64 `gorm:"primaryKey;autoIncrement:false"`
	Hash      string `gorm:"size:66;uniqueIndex"`
	StateRoot string `gorm:"size:66"`
	TxCount   int
	IndexedAt time.Time
}

// Event is one ledger event of an executed block, in emission order.
type Event struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Height     uint64    `gorm:"index:idx_event_height_seq,priority:1"`
	Seq        int       `gorm:"index:idx_event_height_seq,priority:2"`
	Type       string    `gorm:"size:64;index"`
	TxID       string    `gorm:"size:66;index"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time
}

// AutoMigrate performs all schema migrations for the indexer.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Block{}, &Event{})
}
