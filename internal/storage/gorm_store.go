package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/slickofficials/autoposter/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// postRecord is the relational mapping of a domain.Post. The unique index on
// Link turns the no-duplicate invariant into a database constraint.
type postRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Link      string `gorm:"uniqueIndex;size:2048;not null"`
	Caption   string
	MediaURL  string
	Platforms string
	Status    string `gorm:"index"`
	Attempts  int
	CreatedAt time.Time
	PostedAt  *time.Time
}

func (postRecord) TableName() string { return "posts" }

// programmeRecord is the relational mapping of a domain.Programme. The
// composite unique index keeps one row per (network, external id).
type programmeRecord struct {
	ID         uint   `gorm:"primaryKey"`
	Network    string `gorm:"uniqueIndex:idx_programmes_key;size:32;not null"`
	ExternalID string `gorm:"uniqueIndex:idx_programmes_key;size:256;not null"`
	Name       string
	URL        string
	Category   string
	DetectedAt time.Time
	AppliedAt  *time.Time
	Approved   bool `gorm:"index"`
	ApprovedAt *time.Time
}

func (programmeRecord) TableName() string { return "programmes" }

// gormStore implements Store backed by a SQLite database via GORM.
type gormStore struct {
	db *gorm.DB
}

// openGorm opens (and migrates) the SQLite-backed store.
func openGorm(path string) (Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.AutoMigrate(&postRecord{}, &programmeRecord{}); err != nil {
		return nil, fmt.Errorf("migrate tables: %w", err)
	}

	return &gormStore{db: db}, nil
}

// Close closes the underlying database connection.
func (g *gormStore) Close() error {
	if g == nil || g.db == nil {
		return nil
	}
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// LoadAll returns every stored post in insertion order.
func (g *gormStore) LoadAll() ([]domain.Post, error) {
	if g == nil || g.db == nil {
		return nil, nil
	}

	var records []postRecord
	if err := g.db.Order("created_at asc, id asc").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load posts: %w", err)
	}

	posts := make([]domain.Post, 0, len(records))
	for _, rec := range records {
		posts = append(posts, rec.toDomain())
	}
	return posts, nil
}

// AppendBatch inserts the batch in one transaction; conflicting links are
// ignored so the unique index never turns a duplicate into an error.
func (g *gormStore) AppendBatch(posts []domain.Post) error {
	if g == nil || g.db == nil || len(posts) == 0 {
		return nil
	}

	records := make([]postRecord, 0, len(posts))
	for _, p := range posts {
		if strings.TrimSpace(p.Link) == "" {
			continue
		}
		records = append(records, fromDomain(p))
	}
	if len(records) == 0 {
		return nil
	}

	err := g.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&records).Error
	if err != nil {
		return fmt.Errorf("append posts: %w", err)
	}
	return nil
}

// MarkPosted transitions the post with the given link to posted.
func (g *gormStore) MarkPosted(link string, at time.Time) error {
	return g.updatePost(link, map[string]any{
		"status":    string(domain.StatusPosted),
		"posted_at": at,
	})
}

// MarkFailed transitions the post with the given link to failed.
func (g *gormStore) MarkFailed(link string) error {
	return g.updatePost(link, map[string]any{
		"status": string(domain.StatusFailed),
	})
}

// IncrementAttempts bumps the attempt counter for the post.
func (g *gormStore) IncrementAttempts(link string) error {
	if g == nil || g.db == nil {
		return nil
	}
	res := g.db.Model(&postRecord{}).
		Where("link = ?", link).
		UpdateColumn("attempts", gorm.Expr("attempts + 1"))
	if res.Error != nil {
		return fmt.Errorf("increment attempts: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, link)
	}
	return nil
}

func (g *gormStore) updatePost(link string, fields map[string]any) error {
	if g == nil || g.db == nil {
		return nil
	}
	res := g.db.Model(&postRecord{}).Where("link = ?", link).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update post: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, link)
	}
	return nil
}

// LoadProgrammes returns every tracked programme in detection order.
func (g *gormStore) LoadProgrammes() ([]domain.Programme, error) {
	if g == nil || g.db == nil {
		return nil, nil
	}

	var records []programmeRecord
	if err := g.db.Order("detected_at asc, id asc").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load programmes: %w", err)
	}

	progs := make([]domain.Programme, 0, len(records))
	for _, rec := range records {
		progs = append(progs, rec.toDomainProgramme())
	}
	return progs, nil
}

// AppendProgrammes inserts the batch in one transaction; conflicts on the
// (network, external id) index are ignored.
func (g *gormStore) AppendProgrammes(progs []domain.Programme) error {
	if g == nil || g.db == nil || len(progs) == 0 {
		return nil
	}

	records := make([]programmeRecord, 0, len(progs))
	for _, p := range progs {
		if strings.TrimSpace(p.ExternalID) == "" {
			continue
		}
		records = append(records, fromDomainProgramme(p))
	}
	if len(records) == 0 {
		return nil
	}

	err := g.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&records).Error
	if err != nil {
		return fmt.Errorf("append programmes: %w", err)
	}
	return nil
}

// MarkProgrammeApplied stamps the application time on the programme.
func (g *gormStore) MarkProgrammeApplied(network domain.Network, externalID string, at time.Time) error {
	return g.updateProgramme(network, externalID, map[string]any{
		"applied_at": at,
	})
}

// MarkProgrammeApproved transitions the programme to approved.
func (g *gormStore) MarkProgrammeApproved(network domain.Network, externalID string, at time.Time) error {
	return g.updateProgramme(network, externalID, map[string]any{
		"approved":    true,
		"approved_at": at,
	})
}

func (g *gormStore) updateProgramme(network domain.Network, externalID string, fields map[string]any) error {
	if g == nil || g.db == nil {
		return nil
	}
	res := g.db.Model(&programmeRecord{}).
		Where("network = ? AND external_id = ?", string(network), externalID).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update programme: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s/%s", ErrProgrammeNotFound, network, externalID)
	}
	return nil
}

// CountByStatus tallies posts per lifecycle state.
func (g *gormStore) CountByStatus() (map[domain.Status]int, error) {
	counts := map[domain.Status]int{}
	if g == nil || g.db == nil {
		return counts, nil
	}

	type row struct {
		Status string
		N      int
	}
	var rows []row
	err := g.db.Model(&postRecord{}).
		Select("status, count(*) as n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return counts, nil
		}
		return nil, fmt.Errorf("count posts: %w", err)
	}
	for _, r := range rows {
		counts[domain.Status(r.Status)] = r.N
	}
	return counts, nil
}

func fromDomainProgramme(p domain.Programme) programmeRecord {
	return programmeRecord{
		Network:    string(p.Network),
		ExternalID: p.ExternalID,
		Name:       p.Name,
		URL:        p.URL,
		Category:   p.Category,
		DetectedAt: p.DetectedAt,
		AppliedAt:  p.AppliedAt,
		Approved:   p.Approved,
		ApprovedAt: p.ApprovedAt,
	}
}

func (r programmeRecord) toDomainProgramme() domain.Programme {
	return domain.Programme{
		Network:    domain.Network(r.Network),
		ExternalID: r.ExternalID,
		Name:       r.Name,
		URL:        r.URL,
		Category:   r.Category,
		DetectedAt: r.DetectedAt,
		AppliedAt:  r.AppliedAt,
		Approved:   r.Approved,
		ApprovedAt: r.ApprovedAt,
	}
}

func fromDomain(p domain.Post) postRecord {
	return postRecord{
		Link:      p.Link,
		Caption:   p.Caption,
		MediaURL:  p.MediaURL,
		Platforms: strings.Join(p.Platforms, ","),
		Status:    string(p.Status),
		Attempts:  p.Attempts,
		CreatedAt: p.CreatedAt,
		PostedAt:  p.PostedAt,
	}
}

func (r postRecord) toDomain() domain.Post {
	var platforms []string
	for _, p := range strings.Split(r.Platforms, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			platforms = append(platforms, trimmed)
		}
	}
	return domain.Post{
		Link:      r.Link,
		Caption:   r.Caption,
		MediaURL:  r.MediaURL,
		Platforms: platforms,
		Status:    domain.Status(r.Status),
		Attempts:  r.Attempts,
		CreatedAt: r.CreatedAt,
		PostedAt:  r.PostedAt,
	}
}
