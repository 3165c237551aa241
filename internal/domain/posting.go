package domain

import "time"

// Field limits applied before a posting leaves each stage.
const (
	MaxRawTitleLen       = 300
	MaxRawDescriptionLen = 1000

	MaxDescriptionLen  = 3000
	MaxRequirementsLen = 1000
	MaxBenefitsLen     = 1000

	MaxStoredTitleLen    = 500
	MaxStoredLocationLen = 1000

	LocationNotSpecified = "not specified"
	UnknownEmployer      = "Unknown"
)

type WorkMode string

const (
	WorkModeRemote  WorkMode = "remote"
	WorkModeHybrid  WorkMode = "hybrid"
	WorkModeOnsite  WorkMode = "onsite"
	WorkModeUnknown WorkMode = "unknown"
)

// RawPosting is one job link found in an alert email.
type RawPosting struct {
	Title       string
	URL         string
	Location    string
	Description string
	Domain      string // host of URL
	Employer    string
}

// EnrichedPosting is a RawPosting plus whatever the live page yielded.
// Enriched is false when both fetch paths failed and the raw fields were kept.
type EnrichedPosting struct {
	RawPosting

	Description  string
	WorkMode     WorkMode
	Requirements string
	Benefits     string

	Enriched bool
	Source   string // http | browser | cache | ""
}

// Degraded wraps a raw posting without any enrichment.
func Degraded(p RawPosting) EnrichedPosting {
	return EnrichedPosting{
		RawPosting:  p,
		Description: p.Description,
		WorkMode:    WorkModeUnknown,
	}
}

// PersistedPosting mirrors a row of the postings table.
type PersistedPosting struct {
	ID             int64     `json:"id"`
	URL            string    `json:"url"`
	Title          string    `json:"title"`
	EmployerID     int64     `json:"employerId"`
	EmployerName   string    `json:"employer"`
	BusinessUnit   string    `json:"businessUnit"`
	Location       string    `json:"location"`
	Description    string    `json:"description"`
	Requirements   string    `json:"requirements"`
	Benefits       string    `json:"benefits"`
	WorkMode       WorkMode  `json:"workMode"`
	PublishedAt    time.Time `json:"publishedAt"`
	Active         bool      `json:"active"`
	ReprocessCount int       `json:"reprocessCount"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
