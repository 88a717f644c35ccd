package models

import (
	"time"

	"github.com/lib/pq"
)

// Course is a catalog entry sessions are scheduled against.
type Course struct {
	ID           string         `db:"id" json:"id"`
	Title        string         `db:"title" json:"title"`
	Subtitle     string         `db:"subtitle" json:"subtitle"`
	Description  string         `db:"description" json:"description"`
	Category     string         `db:"category" json:"category"`
	Price        float64        `db:"price" json:"price"`
	Duration     string         `db:"duration" json:"duration"`
	ISOStandards pq.StringArray `db:"iso_standards" json:"iso_standards"`
	ImageURL     string         `db:"image_url" json:"image_url,omitempty"`
	Featured     bool           `db:"featured" json:"featured"`

	// Per-course postponement defaults, applied when no explicit policy row
	// exists. Null columns fall back to the package defaults.
	DefaultMinimumRequired *int   `db:"policy_minimum_required" json:"policy_minimum_required,omitempty"`
	DefaultDeadlineDays    *int   `db:"policy_deadline_days" json:"policy_deadline_days,omitempty"`
	PolicyMessage          string `db:"policy_message" json:"policy_message,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CourseFilter provides filters for listing courses.
type CourseFilter struct {
	Category string
	Featured *bool
	Page     int
	PageSize int
}
