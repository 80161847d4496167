// Package gormstore persists rooms, projects and usage in MySQL through gorm.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/dkeye/Buzzline/internal/domain"
)

type Store struct {
	db *gorm.DB
}

// Open connects to MySQL and migrates the schema.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("gormstore: open: %w", err)
	}
	s := New(db)
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "gormstore").Msg("database connected")
	return s, nil
}

func New(db *gorm.DB) *Store {
	if db == nil {
		panic("database connection cannot be nil for gormstore")
	}
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&roomRow{}, &projectRow{}, &userRow{}, &usageRow{}); err != nil {
		return fmt.Errorf("gormstore: migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Create(ctx context.Context, room *domain.Room) error {
	row := toRoomRow(room)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("gormstore: create room %s: %w", room.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	var row roomRow
	err := s.db.WithContext(ctx).Where("id = ?", string(id)).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gormstore: get room %s: %w", id, err)
	}
	return row.toDomain(), nil
}

// Update runs fn against the row locked with SELECT ... FOR UPDATE.
func (s *Store) Update(ctx context.Context, id domain.RoomID, fn func(*domain.Room) error) (*domain.Room, error) {
	var out *domain.Room
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row roomRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", string(id)).First(&row).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrRoomNotFound
			}
			return err
		}
		room := row.toDomain()
		if err := fn(room); err != nil {
			return err
		}
		updated := toRoomRow(room)
		if err := tx.Save(&updated).Error; err != nil {
			return err
		}
		out = room
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ByAPIKey(ctx context.Context, apiKey string) (*domain.Project, error) {
	var row projectRow
	err := s.db.WithContext(ctx).Where("api_key = ?", apiKey).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, fmt.Errorf("gormstore: project by key: %w", err)
	}
	return row.toDomain()
}

// PutProject upserts a project and its owner's plan.
func (s *Store) PutProject(ctx context.Context, p *domain.Project, plan domain.PlanName) error {
	origins, err := json.Marshal(p.AllowedOrigins)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := projectRow{ID: string(p.ID), UserID: string(p.UserID), APIKey: p.APIKey, AllowedOrigins: string(origins)}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return fmt.Errorf("gormstore: put project %s: %w", p.ID, err)
		}
		if plan == "" {
			return nil
		}
		user := userRow{ID: string(p.UserID), Plan: string(plan)}
		if err := tx.Clauses(clause.OnConflict{DoUpdates: clause.AssignmentColumns([]string{"plan"})}).Create(&user).Error; err != nil {
			return fmt.Errorf("gormstore: put plan for %s: %w", p.UserID, err)
		}
		return nil
	})
}

func (s *Store) PlanOf(ctx context.Context, user domain.UserID) (domain.PlanName, error) {
	var row userRow
	err := s.db.WithContext(ctx).Where("id = ?", string(user)).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.PlanFree, nil
		}
		return "", fmt.Errorf("gormstore: plan of %s: %w", user, err)
	}
	if row.Plan == "" {
		return domain.PlanFree, nil
	}
	return domain.PlanName(row.Plan), nil
}

// MinutesUsedSince sums the usage of every project owned by user.
func (s *Store) MinutesUsedSince(ctx context.Context, user domain.UserID, since time.Time) (int, error) {
	var seconds int64
	err := s.db.WithContext(ctx).
		Model(&usageRow{}).
		Select("COALESCE(SUM(usage_records.duration_seconds), 0)").
		Joins("JOIN projects ON projects.id = usage_records.project_id").
		Where("projects.user_id = ? AND usage_records.created_at >= ?", string(user), since).
		Scan(&seconds).Error
	if err != nil {
		return 0, fmt.Errorf("gormstore: usage of %s: %w", user, err)
	}
	return int((seconds + 59) / 60), nil
}

func (s *Store) RecordUsage(ctx context.Context, rec domain.UsageRecord) error {
	row := usageRow{
		RoomID:          string(rec.RoomID),
		ProjectID:       string(rec.ProjectID),
		DurationSeconds: rec.DurationSeconds,
		CreatedAt:       rec.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("gormstore: record usage for room %s: %w", rec.RoomID, err)
	}
	return nil
}
