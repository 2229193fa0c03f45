package models

import (
	"time"
)

// SiteSettings is a singleton row holding the site's public contact details.
// The settings service creates the first row on first access.
type SiteSettings struct {
	ID            uint      `gorm:"column:id;primaryKey"`
	SiteEmail     string    `gorm:"column:site_email;not null;default:''"`
	SitePhone     string    `gorm:"column:site_phone;not null;default:''"`
	SiteLocation  string    `gorm:"column:site_location;not null;default:''"`
	CopyrightText string    `gorm:"column:copyright_text;not null;default:''"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
