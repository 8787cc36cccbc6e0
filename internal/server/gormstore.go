package server

import (
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"otsync/internal/ot"
)

// snapshotRow and opRow are the gorm-mapped persistence records backing
// GormStore. Snapshot and op payloads are type-specific and opaque to the
// store, so they round-trip through JSON columns rather than a fixed
// relational shape.
type snapshotRow struct {
	Collection string `gorm:"primaryKey;column:collection"`
	DocID      string `gorm:"primaryKey;column:doc_id"`
	Version    uint64 `gorm:"column:version"`
	Type       string `gorm:"column:type"`
	Data       []byte `gorm:"column:data"`
	Meta       []byte `gorm:"column:meta"`
}

func (snapshotRow) TableName() string { return "ot_snapshots" }

type opRow struct {
	Collection string  `gorm:"primaryKey;column:collection"`
	DocID      string  `gorm:"primaryKey;column:doc_id"`
	Version    uint64  `gorm:"primaryKey;column:version"`
	Payload    []byte  `gorm:"column:payload"`
	Src        string  `gorm:"column:src"`
	Seq        *uint64 `gorm:"column:seq"`
	Timestamp  int64   `gorm:"column:ts"`
}

func (opRow) TableName() string { return "ot_ops" }

// GormStore is a durable Store backed by any gorm dialect (wired here for
// MySQL via gorm.io/driver/mysql). It satisfies the same Store contract as
// MemStore, so the commit loop is agnostic to which is selected; MemStore
// remains the default and the one exercised by the test suite.
type GormStore struct {
	db  *gorm.DB
	now func() int64
}

// NewGormStore wraps an already-connected *gorm.DB.
func NewGormStore(db *gorm.DB, now func() int64) *GormStore {
	return &GormStore{db: db, now: now}
}

// AutoMigrate creates the backing tables if they do not already exist.
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&snapshotRow{}, &opRow{})
}

func (s *GormStore) GetSnapshot(collection, id string) (ot.Snapshot, error) {
	var row snapshotRow
	err := s.db.Where("collection = ? AND doc_id = ?", collection, id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ot.NewSnapshot(id), nil
	}
	if err != nil {
		return ot.Snapshot{}, err
	}
	return rowToSnapshot(row)
}

func (s *GormStore) GetOps(collection, id string, from, to uint64) ([]LogEntry, error) {
	var rows []opRow
	err := s.db.Where("collection = ? AND doc_id = ? AND version >= ? AND version < ?", collection, id, from, to).
		Order("version asc").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if uint64(len(rows)) != to-from {
		return nil, fmt.Errorf("%w: have %d entries, want [%d,%d)", ot.ErrTransformOpsNotFound, len(rows), from, to)
	}
	out := make([]LogEntry, len(rows))
	for i, r := range rows {
		op, err := rowToOp(r)
		if err != nil {
			return nil, err
		}
		out[i] = LogEntry{Op: op, Timestamp: r.Timestamp}
	}
	return out, nil
}

func (s *GormStore) Commit(collection, id string, op *ot.Op, newSnapshot ot.Snapshot) (bool, error) {
	var committed bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var row snapshotRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("collection = ? AND doc_id = ?", collection, id).First(&row).Error
		var currentV uint64
		switch {
		case err == nil:
			currentV = row.Version
		case errors.Is(err, gorm.ErrRecordNotFound):
			currentV = 0
		default:
			return err
		}
		if op.V == nil || *op.V != currentV {
			return nil
		}

		opPayload, err := opToRow(collection, id, op, s.now())
		if err != nil {
			return err
		}
		if err := tx.Create(&opPayload).Error; err != nil {
			return err
		}

		snapPayload, err := snapshotToRow(collection, id, newSnapshot)
		if err != nil {
			return err
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection"}, {Name: "doc_id"}},
			UpdateAll: true,
		}).Create(&snapPayload).Error; err != nil {
			return err
		}

		committed = true
		return nil
	})
	return committed, err
}

func rowToSnapshot(row snapshotRow) (ot.Snapshot, error) {
	snap := ot.Snapshot{ID: row.DocID, V: row.Version, Type: row.Type}
	if len(row.Data) > 0 {
		if err := json.Unmarshal(row.Data, &snap.Data); err != nil {
			return ot.Snapshot{}, err
		}
	}
	if len(row.Meta) > 0 {
		if err := json.Unmarshal(row.Meta, &snap.Meta); err != nil {
			return ot.Snapshot{}, err
		}
	}
	return snap, nil
}

func snapshotToRow(collection, id string, snap ot.Snapshot) (snapshotRow, error) {
	row := snapshotRow{Collection: collection, DocID: id, Version: snap.V, Type: snap.Type}
	if snap.Data != nil {
		data, err := json.Marshal(snap.Data)
		if err != nil {
			return snapshotRow{}, err
		}
		row.Data = data
	}
	if snap.Meta != nil {
		meta, err := json.Marshal(snap.Meta)
		if err != nil {
			return snapshotRow{}, err
		}
		row.Meta = meta
	}
	return row, nil
}

func opToRow(collection, id string, op *ot.Op, ts int64) (opRow, error) {
	payload, err := json.Marshal(op)
	if err != nil {
		return opRow{}, err
	}
	var v uint64
	if op.V != nil {
		v = *op.V
	}
	return opRow{Collection: collection, DocID: id, Version: v, Payload: payload, Src: op.Src, Seq: op.Seq, Timestamp: ts}, nil
}

func rowToOp(row opRow) (ot.Op, error) {
	var op ot.Op
	if err := json.Unmarshal(row.Payload, &op); err != nil {
		return ot.Op{}, err
	}
	return op, nil
}
