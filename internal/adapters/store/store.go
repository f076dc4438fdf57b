// Package store persists session records in SQLite through gorm.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const codeAttempts = 5

type sessionRow struct {
	ID               uint   `gorm:"primaryKey"`
	Code             string `gorm:"uniqueIndex;size:16;not null"`
	Name             string `gorm:"size:128"`
	Agenda           string
	Category         string `gorm:"size:64;index"`
	Owner            string `gorm:"size:64"`
	ScheduledAt      *time.Time
	Live             bool `gorm:"index"`
	ParticipantCount int
	CreatedAt        time.Time `gorm:"index"`
}

func (sessionRow) TableName() string { return "sessions" }

func (r sessionRow) record() domain.SessionRecord {
	return domain.SessionRecord{
		Code:             domain.SessionCode(r.Code),
		Name:             r.Name,
		Agenda:           r.Agenda,
		Category:         r.Category,
		Owner:            r.Owner,
		ScheduledAt:      r.ScheduledAt,
		Live:             r.Live,
		ParticipantCount: r.ParticipantCount,
		CreatedAt:        r.CreatedAt,
	}
}

// Store implements core.SessionStore. Committed mutations are reported to the observer.
type Store struct {
	db       *gorm.DB
	observer core.SessionObserver
	now      func() time.Time
}

func Open(path string, observer core.SessionObserver) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	if err := db.AutoMigrate(&sessionRow{}); err != nil {
		return nil, fmt.Errorf("migrate session store: %w", err)
	}
	log.Info().Str("module", "store").Str("path", path).Msg("session store ready")
	return &Store{db: db, observer: observer, now: time.Now}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Create(ctx context.Context, in core.NewSession) (domain.SessionRecord, error) {
	now := s.now()
	row := sessionRow{
		Name:        in.Name,
		Agenda:      in.Agenda,
		Category:    in.Category,
		Owner:       in.Owner,
		ScheduledAt: in.ScheduledAt,
		Live:        in.ScheduledAt == nil || !in.ScheduledAt.After(now),
		CreatedAt:   now,
	}
	var lastErr error
	for range codeAttempts {
		code, err := domain.NewSessionCode()
		if err != nil {
			return domain.SessionRecord{}, err
		}
		row.ID = 0
		row.Code = string(code)
		if lastErr = s.db.WithContext(ctx).Create(&row).Error; lastErr == nil {
			rec := row.record()
			log.Info().Str("module", "store").Str("session", row.Code).Bool("live", row.Live).Msg("session created")
			s.notifyCreated(rec)
			return rec, nil
		}
		if !errors.Is(lastErr, gorm.ErrDuplicatedKey) && !isUniqueViolation(lastErr) {
			break
		}
	}
	return domain.SessionRecord{}, fmt.Errorf("create session: %w", lastErr)
}

func (s *Store) List(ctx context.Context) ([]domain.SessionRecord, error) {
	var rows []sessionRow
	if err := s.db.WithContext(ctx).Order("created_at desc").Order("id desc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]domain.SessionRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	return out, nil
}

func (s *Store) GetByCode(ctx context.Context, code domain.SessionCode) (domain.SessionRecord, error) {
	row, err := s.find(ctx, s.db, code)
	if err != nil {
		return domain.SessionRecord{}, err
	}
	return row.record(), nil
}

// Activate makes a session live. Activating a live session changes nothing.
func (s *Store) Activate(ctx context.Context, code domain.SessionCode) (domain.SessionRecord, error) {
	row, err := s.find(ctx, s.db, code)
	if err != nil {
		return domain.SessionRecord{}, err
	}
	if row.Live {
		return row.record(), nil
	}
	if err := s.db.WithContext(ctx).Model(&row).Update("live", true).Error; err != nil {
		return domain.SessionRecord{}, fmt.Errorf("activate session: %w", err)
	}
	row.Live = true
	rec := row.record()
	s.notifyUpdated(rec)
	return rec, nil
}

func (s *Store) ActivateDue(ctx context.Context, now time.Time) ([]domain.SessionRecord, error) {
	var due []sessionRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("live = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?", false, now).Find(&due).Error; err != nil {
			return err
		}
		if len(due) == 0 {
			return nil
		}
		ids := make([]uint, 0, len(due))
		for _, r := range due {
			ids = append(ids, r.ID)
		}
		return tx.Model(&sessionRow{}).Where("id IN ?", ids).Update("live", true).Error
	})
	if err != nil {
		return nil, fmt.Errorf("activate due sessions: %w", err)
	}
	out := make([]domain.SessionRecord, 0, len(due))
	for _, r := range due {
		r.Live = true
		rec := r.record()
		out = append(out, rec)
		s.notifyUpdated(rec)
	}
	return out, nil
}

// AdjustParticipants moves the display counter by delta, never below zero.
func (s *Store) AdjustParticipants(ctx context.Context, code domain.SessionCode, delta int) error {
	res := s.db.WithContext(ctx).Model(&sessionRow{}).
		Where("code = ?", string(code)).
		Update("participant_count", gorm.Expr("MAX(participant_count + ?, 0)", delta))
	if res.Error != nil {
		return fmt.Errorf("adjust participants: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return core.ErrSessionNotFound
	}
	row, err := s.find(ctx, s.db, code)
	if err != nil {
		return err
	}
	s.notifyUpdated(row.record())
	return nil
}

func (s *Store) find(ctx context.Context, db *gorm.DB, code domain.SessionCode) (sessionRow, error) {
	var row sessionRow
	err := db.WithContext(ctx).Where("code = ?", string(code)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sessionRow{}, core.ErrSessionNotFound
	}
	if err != nil {
		return sessionRow{}, fmt.Errorf("get session: %w", err)
	}
	return row, nil
}

func (s *Store) notifyCreated(rec domain.SessionRecord) {
	if s.observer != nil {
		s.observer.SessionCreated(rec)
	}
}

func (s *Store) notifyUpdated(rec domain.SessionRecord) {
	if s.observer != nil {
		s.observer.SessionUpdated(rec)
	}
}
