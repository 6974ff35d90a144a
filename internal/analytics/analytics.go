package analytics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Package analytics records click and conversion events against tracking
// links and serves per-link aggregates for the dashboard.

// ClickEvent is one recorded click on a tracking link.
type ClickEvent struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	Link       string    `gorm:"index;size:2048;not null" json:"link"`
	Platform   string    `json:"platform,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Conversion is one recorded purchase/signup attributed to a tracking link.
type Conversion struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	Link        string    `gorm:"index;size:2048;not null" json:"link"`
	Network     string    `json:"network,omitempty"`
	AmountCents int64     `json:"amount_cents"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// LinkSummary aggregates activity for one link.
type LinkSummary struct {
	Link         string `json:"link"`
	Clicks       int64  `json:"clicks"`
	Conversions  int64  `json:"conversions"`
	RevenueCents int64  `json:"revenue_cents"`
}

// Repo persists analytics events in its own SQLite database.
type Repo struct {
	db  *gorm.DB
	now func() time.Time
}

// Open opens (and migrates) the analytics database at path.
func Open(path string) (*Repo, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("analytics db path is empty")
	}
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create analytics directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open analytics db: %w", err)
	}
	if err := db.AutoMigrate(&ClickEvent{}, &Conversion{}); err != nil {
		return nil, fmt.Errorf("migrate analytics tables: %w", err)
	}

	return &Repo{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (r *Repo) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordClick stores one click event.
func (r *Repo) RecordClick(link, platform string) error {
	if r == nil || r.db == nil {
		return nil
	}
	link = strings.TrimSpace(link)
	if link == "" {
		return fmt.Errorf("click link is empty")
	}
	evt := ClickEvent{Link: link, Platform: strings.TrimSpace(platform), OccurredAt: r.now().UTC()}
	if err := r.db.Create(&evt).Error; err != nil {
		return fmt.Errorf("record click: %w", err)
	}
	return nil
}

// RecordConversion stores one conversion event.
func (r *Repo) RecordConversion(link, network string, amountCents int64) error {
	if r == nil || r.db == nil {
		return nil
	}
	link = strings.TrimSpace(link)
	if link == "" {
		return fmt.Errorf("conversion link is empty")
	}
	if amountCents < 0 {
		return fmt.Errorf("conversion amount must not be negative")
	}
	evt := Conversion{Link: link, Network: strings.TrimSpace(network), AmountCents: amountCents, OccurredAt: r.now().UTC()}
	if err := r.db.Create(&evt).Error; err != nil {
		return fmt.Errorf("record conversion: %w", err)
	}
	return nil
}

// Summary aggregates clicks, conversions, and revenue per link.
func (r *Repo) Summary() ([]LinkSummary, error) {
	if r == nil || r.db == nil {
		return nil, nil
	}

	type clickRow struct {
		Link string
		N    int64
	}
	var clicks []clickRow
	if err := r.db.Model(&ClickEvent{}).
		Select("link, count(*) as n").
		Group("link").
		Scan(&clicks).Error; err != nil {
		return nil, fmt.Errorf("aggregate clicks: %w", err)
	}

	type convRow struct {
		Link    string
		N       int64
		Revenue int64
	}
	var convs []convRow
	if err := r.db.Model(&Conversion{}).
		Select("link, count(*) as n, coalesce(sum(amount_cents), 0) as revenue").
		Group("link").
		Scan(&convs).Error; err != nil {
		return nil, fmt.Errorf("aggregate conversions: %w", err)
	}

	byLink := map[string]*LinkSummary{}
	for _, c := range clicks {
		byLink[c.Link] = &LinkSummary{Link: c.Link, Clicks: c.N}
	}
	for _, c := range convs {
		s, ok := byLink[c.Link]
		if !ok {
			s = &LinkSummary{Link: c.Link}
			byLink[c.Link] = s
		}
		s.Conversions = c.N
		s.RevenueCents = c.Revenue
	}

	out := make([]LinkSummary, 0, len(byLink))
	for _, s := range byLink {
		out = append(out, *s)
	}
	return out, nil
}
