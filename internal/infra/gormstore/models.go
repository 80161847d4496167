package gormstore

import (
	"encoding/json"
	"time"

	"github.com/dkeye/Buzzline/internal/domain"
)

type roomRow struct {
	ID              string    `gorm:"primaryKey;size:36"`
	ProjectID       string    `gorm:"size:64;index"`
	CreatedAt       time.Time `gorm:"autoCreateTime:false"`
	ExpiresAt       time.Time
	MaxParticipants int
	Status          string `gorm:"size:16;index"`
	Token           string `gorm:"size:64"`
	TokenExpiresAt  time.Time
	Metadata        []byte `gorm:"type:json"`
	ActivatedAt     *time.Time
	ClosedAt        *time.Time
}

func (roomRow) TableName() string { return "rooms" }

type projectRow struct {
	ID             string `gorm:"primaryKey;size:64"`
	UserID         string `gorm:"size:64;index"`
	APIKey         string `gorm:"size:128;uniqueIndex"`
	AllowedOrigins string `gorm:"type:text"`
}

func (projectRow) TableName() string { return "projects" }

type userRow struct {
	ID   string `gorm:"primaryKey;size:64"`
	Plan string `gorm:"size:32"`
}

func (userRow) TableName() string { return "users" }

type usageRow struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	RoomID          string `gorm:"size:36;index"`
	ProjectID       string `gorm:"size:64;index:idx_usage_project_created"`
	DurationSeconds int64
	CreatedAt       time.Time `gorm:"index:idx_usage_project_created"`
}

func (usageRow) TableName() string { return "usage_records" }

func toRoomRow(r *domain.Room) roomRow {
	return roomRow{
		ID:              string(r.ID),
		ProjectID:       string(r.ProjectID),
		CreatedAt:       r.CreatedAt,
		ExpiresAt:       r.ExpiresAt,
		MaxParticipants: r.MaxParticipants,
		Status:          string(r.Status),
		Token:           r.Token,
		TokenExpiresAt:  r.TokenExpiresAt,
		Metadata:        r.Metadata,
		ActivatedAt:     r.ActivatedAt,
		ClosedAt:        r.ClosedAt,
	}
}

func (row roomRow) toDomain() *domain.Room {
	return &domain.Room{
		ID:              domain.RoomID(row.ID),
		ProjectID:       domain.ProjectID(row.ProjectID),
		CreatedAt:       row.CreatedAt,
		ExpiresAt:       row.ExpiresAt,
		MaxParticipants: row.MaxParticipants,
		Status:          domain.RoomStatus(row.Status),
		Token:           row.Token,
		TokenExpiresAt:  row.TokenExpiresAt,
		Metadata:        row.Metadata,
		ActivatedAt:     row.ActivatedAt,
		ClosedAt:        row.ClosedAt,
	}
}

func (row projectRow) toDomain() (*domain.Project, error) {
	p := &domain.Project{
		ID:     domain.ProjectID(row.ID),
		UserID: domain.UserID(row.UserID),
		APIKey: row.APIKey,
	}
	if row.AllowedOrigins != "" {
		if err := json.Unmarshal([]byte(row.AllowedOrigins), &p.AllowedOrigins); err != nil {
			return nil, err
		}
	}
	return p, nil
}
