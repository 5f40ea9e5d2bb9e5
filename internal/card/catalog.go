package card

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Record is the persisted form of a Card in the catalog table.
type Record struct {
	ID             int    `gorm:"primaryKey;autoIncrement:false"`
	Name           string `gorm:"not null"`
	Image          string
	HP             int `gorm:"not null"`
	Attack         int `gorm:"not null"`
	Defense        int `gorm:"not null"`
	Speed          int `gorm:"not null"`
	SpecialAttack  int `gorm:"not null"`
	SpecialDefense int `gorm:"not null"`
}

func (Record) TableName() string { return "cards" }

func (r Record) toCard() Card {
	return Card{
		ID:    r.ID,
		Name:  r.Name,
		Image: r.Image,
		HP:    r.HP,
		Stats: map[string]int{
			StatAttack:         r.Attack,
			StatDefense:        r.Defense,
			StatSpeed:          r.Speed,
			StatSpecialAttack:  r.SpecialAttack,
			StatSpecialDefense: r.SpecialDefense,
		},
	}
}

func recordFrom(c Card) Record {
	return Record{
		ID:             c.ID,
		Name:           c.Name,
		Image:          c.Image,
		HP:             c.HP,
		Attack:         c.Stats[StatAttack],
		Defense:        c.Stats[StatDefense],
		Speed:          c.Stats[StatSpeed],
		SpecialAttack:  c.Stats[StatSpecialAttack],
		SpecialDefense: c.Stats[StatSpecialDefense],
	}
}

// Catalog draws cards from a Postgres table.
type Catalog struct {
	db  *gorm.DB
	log *zap.Logger
}

// OpenCatalog connects to Postgres, migrates the cards table and seeds it with
// the builtin deck when empty.
func OpenCatalog(ctx context.Context, dsn string, log *zap.Logger) (*Catalog, error) {
	cfg, err := connConfig(dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: stdlib.OpenDB(*cfg)}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open card catalog: %w", err)
	}
	c := NewCatalog(db, log)
	if err := c.Migrate(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	if err := c.Seed(ctx, Builtin()); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

const applicationName = "stat-clash"

// connConfig parses dsn and tags the connection so it is identifiable in
// pg_stat_activity.
func connConfig(dsn string) (*pgx.ConnConfig, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if _, ok := cfg.RuntimeParams["application_name"]; !ok {
		cfg.RuntimeParams["application_name"] = applicationName
	}
	return cfg, nil
}

func NewCatalog(db *gorm.DB, log *zap.Logger) *Catalog {
	if log == nil {
		log = zap.NewNop()
	}
	return &Catalog{db: db, log: log}
}

func (c *Catalog) Migrate(ctx context.Context) error {
	if err := c.db.WithContext(ctx).AutoMigrate(&Record{}); err != nil {
		return fmt.Errorf("migrate card catalog: %w", err)
	}
	return nil
}

// Seed inserts cards when the catalog is empty. Existing ids are left untouched.
func (c *Catalog) Seed(ctx context.Context, cards []Card) error {
	var n int64
	if err := c.db.WithContext(ctx).Model(&Record{}).Count(&n).Error; err != nil {
		return fmt.Errorf("count cards: %w", err)
	}
	if n > 0 {
		return nil
	}

	records := make([]Record, 0, len(cards))
	for _, card := range cards {
		records = append(records, recordFrom(card))
	}
	if err := seedQuery(c.db.WithContext(ctx), records).Error; err != nil {
		return fmt.Errorf("seed cards: %w", err)
	}
	c.log.Info("card catalog seeded", zap.Int("cards", len(records)))
	return nil
}

func (c *Catalog) Fetch(ctx context.Context) (Card, error) {
	var rec Record
	err := drawQuery(c.db.WithContext(ctx), &rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Card{}, ErrEmptyDeck
	}
	if err != nil {
		return Card{}, fmt.Errorf("draw card: %w", err)
	}
	return rec.toCard(), nil
}

// drawQuery picks one row uniformly at random.
func drawQuery(tx *gorm.DB, rec *Record) *gorm.DB {
	return tx.Order("RANDOM()").Take(rec)
}

func seedQuery(tx *gorm.DB, records []Record) *gorm.DB {
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&records)
}

func (c *Catalog) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
