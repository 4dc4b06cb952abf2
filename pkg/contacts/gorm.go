package contacts

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DBPool hands out gorm handles. The frame datastore pool satisfies it.
type DBPool interface {
	DB(ctx context.Context, readOnly bool) *gorm.DB
}

// ContactRow is the persisted form of a Contact. Position keeps insertion
// order and allows duplicate contacts.
type ContactRow struct {
	RowID     uint   `gorm:"primaryKey;autoIncrement"`
	Position  int    `gorm:"not null;index"`
	ContactID string `gorm:"type:varchar(50);not null"`
	Name      string `gorm:"type:varchar(255);not null"`
	Phone     string `gorm:"type:varchar(64);not null"`
}

func (ContactRow) TableName() string { return "samarth_contacts" }

// ProfileRow holds single-valued settings such as the display name.
type ProfileRow struct {
	Setting string `gorm:"primaryKey;type:varchar(64)"`
	Value   string `gorm:"type:text"`
}

func (ProfileRow) TableName() string { return "samarth_profile" }

// GormStore persists contacts through gorm.
type GormStore struct {
	pool  DBPool
	close func() error
}

// NewGormStore migrates the tables and returns a store on pool.
func NewGormStore(ctx context.Context, pool DBPool) (*GormStore, error) {
	if err := pool.DB(ctx, false).AutoMigrate(&ContactRow{}, &ProfileRow{}); err != nil {
		return nil, fmt.Errorf("migrate contact tables: %w", err)
	}
	return &GormStore{pool: pool, close: func() error { return nil }}, nil
}

type singleDB struct{ db *gorm.DB }

func (s singleDB) DB(ctx context.Context, _ bool) *gorm.DB { return s.db.WithContext(ctx) }

// OpenSQLite opens (or creates) a sqlite database file as a contact store.
func OpenSQLite(ctx context.Context, path string) (*GormStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path required")
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	s, err := NewGormStore(ctx, singleDB{db: db})
	if err != nil {
		return nil, err
	}
	s.close = func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return s, nil
}

func (s *GormStore) Contacts(ctx context.Context) ([]Contact, error) {
	var rows []ContactRow
	if err := s.pool.DB(ctx, true).Order("position ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	list := make([]Contact, 0, len(rows))
	for _, r := range rows {
		list = append(list, Contact{ID: r.ContactID, Name: r.Name, Phone: r.Phone})
	}
	return list, nil
}

// SaveContacts replaces the whole list in one transaction.
func (s *GormStore) SaveContacts(ctx context.Context, list []Contact) error {
	return s.pool.DB(ctx, false).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&ContactRow{}).Error; err != nil {
			return err
		}
		if len(list) == 0 {
			return nil
		}
		rows := make([]ContactRow, len(list))
		for i, c := range list {
			rows[i] = ContactRow{Position: i, ContactID: c.ID, Name: c.Name, Phone: c.Phone}
		}
		return tx.Create(&rows).Error
	})
}

func (s *GormStore) UserName(ctx context.Context) (string, error) {
	var row ProfileRow
	err := s.pool.DB(ctx, true).Where("setting = ?", UserNameKey).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return row.Value, nil
}

func (s *GormStore) SaveUserName(ctx context.Context, name string) error {
	return s.pool.DB(ctx, false).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&ProfileRow{Setting: UserNameKey, Value: name}).Error
}

func (s *GormStore) Close() error {
	return s.close()
}
