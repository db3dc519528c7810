// internal/workers/jobs/match-professionals/models.go
package matchprofessionals

import "marketplace-workers/internal/models"

// Modes of operation. JobMode scores candidates against one posting,
// OpportunitiesMode scores postings for one professional, SearchMode scores
// candidates against a clinic's ad-hoc filter.
const (
	JobMode           = "job"
	OpportunitiesMode = "opportunities"
	SearchMode        = "search"
)

type Input struct {
	Job   *models.JobPosting `json:"job,omitempty"`
	JobID string             `json:"jobId,omitempty"`

	Professional *models.ProfessionalProfile  `json:"professional,omitempty"`
	Jobs         []models.JobPosting          `json:"jobs,omitempty"`
	Candidates   []models.ProfessionalProfile `json:"candidates,omitempty"`

	Filter *SearchFilter `json:"filter,omitempty"`
}

// SearchFilter is the clinic-side search form reduced to match criteria.
type SearchFilter struct {
	ProfessionalType string   `json:"professionalType"`
	City             string   `json:"city,omitempty"`
	Specialties      []string `json:"specialties,omitempty"`
	Weekdays         []string `json:"weekdays,omitempty"`
	FullWeek         bool     `json:"fullWeek,omitempty"`
	MinExperience    int      `json:"minExperienceYears,omitempty"`
}

// Criteria records which of the four independent checks passed.
type Criteria struct {
	City       bool `json:"city"`
	Specialty  bool `json:"specialty"`
	Schedule   bool `json:"schedule"`
	Experience bool `json:"experience"`
}

type ScoredProfessional struct {
	Professional models.ProfessionalProfile `json:"professional"`
	Score        int                        `json:"score"`
	Criteria     Criteria                   `json:"criteria"`
}

type ScoredJob struct {
	Job      models.JobPosting `json:"job"`
	Score    int               `json:"score"`
	Criteria Criteria          `json:"criteria"`
}

type Output struct {
	Mode           string `json:"mode"`
	JobID          string `json:"jobId,omitempty"`
	ProfessionalID string `json:"professionalId,omitempty"`

	PerfectMatches  []ScoredProfessional `json:"perfectMatches,omitempty"`
	SimilarMatches  []ScoredProfessional `json:"similarMatches,omitempty"`
	OtherCandidates []ScoredProfessional `json:"otherCandidates,omitempty"`

	PerfectJobs []ScoredJob `json:"perfectJobs,omitempty"`
	SimilarJobs []ScoredJob `json:"similarJobs,omitempty"`
	OtherJobs   []ScoredJob `json:"otherJobs,omitempty"`

	// Notifications carries one perfect-match payload per (professional,
	// job) pair. De-duplication across repeated scoring calls is owned by
	// the dispatcher via the payload's DedupKey.
	Notifications []models.NotificationPayload `json:"notifications,omitempty"`
}
