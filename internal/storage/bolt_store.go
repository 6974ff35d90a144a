package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/slickofficials/autoposter/internal/domain"
	bolt "go.etcd.io/bbolt"
)

const (
	postBucket      = "posts"
	programmeBucket = "programmes"
)

// boltStore implements Store backed by BoltDB. Posts are keyed by their link,
// so key uniqueness enforces the no-duplicate-link invariant at the storage
// layer.
type boltStore struct {
	db *bolt.DB
}

// openBolt initializes a BoltDB-backed Store.
func openBolt(path string) (Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{postBucket, programmeBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	return &boltStore{db: db}, nil
}

// Close closes the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// LoadAll returns every stored post. Rows that fail to decode are skipped.
func (b *boltStore) LoadAll() ([]domain.Post, error) {
	if b == nil || b.db == nil {
		return nil, nil
	}

	var posts []domain.Post
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(postBucket))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(_, v []byte) error {
			var p domain.Post
			if err := json.Unmarshal(v, &p); err != nil {
				return nil
			}
			posts = append(posts, p)
			return nil
		})
	})
	return posts, err
}

// AppendBatch writes the batch in a single transaction. Links that already
// exist are left untouched.
func (b *boltStore) AppendBatch(posts []domain.Post) error {
	if b == nil || b.db == nil || len(posts) == 0 {
		return nil
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(postBucket))
		if bucket == nil {
			return fmt.Errorf("post bucket missing")
		}
		for _, p := range posts {
			key := []byte(p.Link)
			if len(key) == 0 {
				continue
			}
			if bucket.Get(key) != nil {
				continue
			}
			raw, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("encode post %q: %w", p.Link, err)
			}
			if err := bucket.Put(key, raw); err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkPosted transitions the post with the given link to posted.
func (b *boltStore) MarkPosted(link string, at time.Time) error {
	return b.updatePost(link, func(p *domain.Post) {
		p.Status = domain.StatusPosted
		p.PostedAt = &at
	})
}

// MarkFailed transitions the post with the given link to failed.
func (b *boltStore) MarkFailed(link string) error {
	return b.updatePost(link, func(p *domain.Post) {
		p.Status = domain.StatusFailed
	})
}

// IncrementAttempts bumps the attempt counter for the post.
func (b *boltStore) IncrementAttempts(link string) error {
	return b.updatePost(link, func(p *domain.Post) {
		p.Attempts++
	})
}

func (b *boltStore) updatePost(link string, mutate func(*domain.Post)) error {
	if b == nil || b.db == nil {
		return nil
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(postBucket))
		if bucket == nil {
			return fmt.Errorf("post bucket missing")
		}
		raw := bucket.Get([]byte(link))
		if raw == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, link)
		}
		var p domain.Post
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("decode post %q: %w", link, err)
		}
		mutate(&p)
		updated, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode post %q: %w", link, err)
		}
		return bucket.Put([]byte(link), updated)
	})
}

// LoadProgrammes returns every tracked programme. Rows that fail to decode
// are skipped.
func (b *boltStore) LoadProgrammes() ([]domain.Programme, error) {
	if b == nil || b.db == nil {
		return nil, nil
	}

	var progs []domain.Programme
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(programmeBucket))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(_, v []byte) error {
			var p domain.Programme
			if err := json.Unmarshal(v, &p); err != nil {
				return nil
			}
			progs = append(progs, p)
			return nil
		})
	})
	return progs, err
}

// AppendProgrammes writes the batch in a single transaction. Programmes that
// are already tracked are left untouched.
func (b *boltStore) AppendProgrammes(progs []domain.Programme) error {
	if b == nil || b.db == nil || len(progs) == 0 {
		return nil
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(programmeBucket))
		if bucket == nil {
			return fmt.Errorf("programme bucket missing")
		}
		for _, p := range progs {
			if p.ExternalID == "" {
				continue
			}
			key := []byte(p.Key())
			if bucket.Get(key) != nil {
				continue
			}
			raw, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("encode programme %q: %w", p.Key(), err)
			}
			if err := bucket.Put(key, raw); err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkProgrammeApplied stamps the application time on the programme.
func (b *boltStore) MarkProgrammeApplied(network domain.Network, externalID string, at time.Time) error {
	return b.updateProgramme(network, externalID, func(p *domain.Programme) {
		p.AppliedAt = &at
	})
}

// MarkProgrammeApproved transitions the programme to approved.
func (b *boltStore) MarkProgrammeApproved(network domain.Network, externalID string, at time.Time) error {
	return b.updateProgramme(network, externalID, func(p *domain.Programme) {
		p.Approved = true
		p.ApprovedAt = &at
	})
}

func (b *boltStore) updateProgramme(network domain.Network, externalID string, mutate func(*domain.Programme)) error {
	if b == nil || b.db == nil {
		return nil
	}

	key := domain.Programme{Network: network, ExternalID: externalID}.Key()
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(programmeBucket))
		if bucket == nil {
			return fmt.Errorf("programme bucket missing")
		}
		raw := bucket.Get([]byte(key))
		if raw == nil {
			return fmt.Errorf("%w: %s", ErrProgrammeNotFound, key)
		}
		var p domain.Programme
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("decode programme %q: %w", key, err)
		}
		mutate(&p)
		updated, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode programme %q: %w", key, err)
		}
		return bucket.Put([]byte(key), updated)
	})
}

// CountByStatus tallies posts per lifecycle state.
func (b *boltStore) CountByStatus() (map[domain.Status]int, error) {
	counts := map[domain.Status]int{}
	if b == nil || b.db == nil {
		return counts, nil
	}

	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(postBucket))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(_, v []byte) error {
			var p domain.Post
			if err := json.Unmarshal(v, &p); err != nil {
				return nil
			}
			counts[p.Status]++
			return nil
		})
	})
	return counts, err
}
