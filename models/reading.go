package models

import (
	"time"

	"platelog/pkg/textutil"
)

// Column sizes of the text fields below; keep them in sync with the tags.
const (
	MaxOriginalNameLen = 255
	MaxFileNameLen     = 255
	MaxImageURLLen     = 512
	MaxPlateNumberLen  = 128
	MaxRemoteURLLen    = 1024
	MaxErrorLen        = 2048
)

// Reading is one processed plate upload, kept as local history next to the
// row the automation endpoint appends to its sheet.
type Reading struct {
	ID           uint `gorm:"primaryKey"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	UploadID     string `gorm:"size:26;uniqueIndex;not null"`
	OriginalName string `gorm:"size:255"`
	FileName     string `gorm:"size:255;not null"`
	ImageURL     string `gorm:"size:512"`
	PlateNumber  string `gorm:"size:128;not null;index"`
	Detected     bool   `gorm:"default:false;index"`
	RemoteURL    string `gorm:"size:1024"`
	// Error holds the accumulated, pipe-delimited stage errors (empty on full success).
	Error string `gorm:"size:2048"`
}

// Fit clips the text fields to their column sizes so an oversized OCR result
// or client filename cannot make the insert fail.
func (r *Reading) Fit() {
	r.OriginalName = textutil.Clip(r.OriginalName, MaxOriginalNameLen)
	r.FileName = textutil.Clip(r.FileName, MaxFileNameLen)
	r.ImageURL = textutil.Clip(r.ImageURL, MaxImageURLLen)
	r.PlateNumber = textutil.Clip(r.PlateNumber, MaxPlateNumberLen)
	r.RemoteURL = textutil.Clip(r.RemoteURL, MaxRemoteURLLen)
	r.Error = textutil.Clip(r.Error, MaxErrorLen)
}
