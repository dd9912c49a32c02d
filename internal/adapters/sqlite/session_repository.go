package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/atvirokodosprendimai/dlzbrowser/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/dlzbrowser/internal/core/domain"
	"gorm.io/gorm"
)

// Timestamps are unix milliseconds; the column names keep gorm from
// managing them as auto create/update times.
type sessionModel struct {
	ID           string `gorm:"column:id;primaryKey"`
	SandboxName  string `gorm:"column:sandbox_name;not null"`
	UseProxy     bool   `gorm:"column:use_proxy;not null"`
	CreatedAtMS  int64  `gorm:"column:created_at;not null"`
	LastSeenAtMS int64  `gorm:"column:last_seen_at;not null"`
}

func (sessionModel) TableName() string {
	return "sessions"
}

// SessionRepository keeps session rows in SQLite and their credential caches
// in process memory, so bearer tokens and SAS tokens never reach the database
// file. After a restart a stored session comes back with an empty cache.
type SessionRepository struct {
	db *gormsqlite.DB

	mu     sync.Mutex
	caches map[string]domain.CredentialCache
}

func NewSessionRepository(db *gormsqlite.DB) *SessionRepository {
	return &SessionRepository{db: db, caches: map[string]domain.CredentialCache{}}
}

func (r *SessionRepository) Create(ctx context.Context, sess domain.Session) error {
	model := toSessionModel(sess)
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		if err := tx.Create(&model).Error; err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.caches[sess.ID] = sess.Cache
	r.mu.Unlock()
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, id string) (domain.Session, error) {
	var model sessionModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("id = ?", id).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Session{}, domain.ErrSessionNotFound
		}
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	sess := toSessionDomain(model)
	r.mu.Lock()
	sess.Cache = r.caches[id]
	r.mu.Unlock()
	return sess, nil
}

// Save updates the session row. The credential cache is left untouched.
func (r *SessionRepository) Save(ctx context.Context, sess domain.Session) error {
	model := toSessionModel(sess)
	return r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Model(&sessionModel{}).
			Where("id = ?", model.ID).
			Updates(map[string]any{
				"sandbox_name": model.SandboxName,
				"use_proxy":    model.UseProxy,
				"last_seen_at": model.LastSeenAtMS,
			})
		if res.Error != nil {
			return fmt.Errorf("save session: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.ErrSessionNotFound
		}
		return nil
	})
}

// UpdateCache runs update on the session's cache while holding the cache
// lock and returns the result. Concurrent callers are serialized, so each
// sees the slots stored by the others.
func (r *SessionRepository) UpdateCache(ctx context.Context, id string, update func(*domain.CredentialCache)) (domain.CredentialCache, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cache, ok := r.caches[id]
	if !ok {
		var count int64
		err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
			return tx.Model(&sessionModel{}).Where("id = ?", id).Count(&count).Error
		})
		if err != nil {
			return domain.CredentialCache{}, fmt.Errorf("check session: %w", err)
		}
		if count == 0 {
			return domain.CredentialCache{}, domain.ErrSessionNotFound
		}
	}
	update(&cache)
	r.caches[id] = cache
	return cache, nil
}

func (r *SessionRepository) Delete(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Where("id = ?", id).Delete(&sessionModel{})
		if res.Error != nil {
			return fmt.Errorf("delete session: %w", res.Error)
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	r.dropCaches(id)
	return deleted, nil
}

func (r *SessionRepository) DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var ids []string
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		idle := tx.Model(&sessionModel{}).Where("last_seen_at < ?", cutoff.UnixMilli())
		if err := idle.Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("find idle sessions: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("id IN ?", ids).Delete(&sessionModel{}).Error; err != nil {
			return fmt.Errorf("purge sessions: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	r.dropCaches(ids...)
	return int64(len(ids)), nil
}

func (r *SessionRepository) dropCaches(ids ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		delete(r.caches, id)
	}
}

func toSessionModel(sess domain.Session) sessionModel {
	return sessionModel{
		ID:           sess.ID,
		SandboxName:  sess.SandboxName,
		UseProxy:     sess.Route.UseProxy,
		CreatedAtMS:  sess.CreatedAt.UnixMilli(),
		LastSeenAtMS: sess.LastSeenAt.UnixMilli(),
	}
}

func toSessionDomain(model sessionModel) domain.Session {
	return domain.Session{
		ID:          model.ID,
		SandboxName: model.SandboxName,
		Route:       domain.NetworkRoute{UseProxy: model.UseProxy},
		CreatedAt:   time.UnixMilli(model.CreatedAtMS).UTC(),
		LastSeenAt:  time.UnixMilli(model.LastSeenAtMS).UTC(),
	}
}
