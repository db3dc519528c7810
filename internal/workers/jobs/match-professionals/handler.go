// internal/workers/jobs/match-professionals/handler.go
package matchprofessionals

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"marketplace-workers/internal/common/logger"
	"marketplace-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

const (
	TaskType = "match-professionals"
)

// Tier thresholds are part of the match contract: only perfect (4) and
// similar (3) trigger elevated visibility or notification.
const (
	PerfectScore = 4
	SimilarScore = 3
)

var (
	ErrMatchFailed  = errors.New("MATCH_FAILED")
	ErrJobNotFound  = errors.New("JOB_NOT_FOUND")
	ErrNoMatchInput = errors.New("input needs a job, a professional or a filter")
)

type Handler struct {
	config *Config
	db     *sql.DB
	redis  *redis.Client
	logger logger.Logger
}

func NewHandler(config *Config, db *sql.DB, rdb *redis.Client, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		db:     db,
		redis:  rdb,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(client, job, "PARSE_ERROR", fmt.Sprintf("parse input: %v", err), 0)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		code := "MATCH_FAILED"
		retries := int32(2)
		switch {
		case errors.Is(err, ErrJobNotFound):
			code = "JOB_NOT_FOUND"
			retries = 0
		case errors.Is(err, ErrNoMatchInput):
			retries = 0
		}
		h.failJob(client, job, code, err.Error(), retries)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	switch {
	case input.Professional != nil:
		return h.scoreOpportunities(input.Professional, input.Jobs), nil
	case input.Filter != nil:
		return h.scoreSearch(ctx, input.Filter, input.Candidates)
	case input.Job != nil || input.JobID != "":
		return h.scoreJobCandidates(ctx, input)
	default:
		return nil, ErrNoMatchInput
	}
}

// scoreJobCandidates fans one posting over its candidate professionals and
// buckets them by tier. Perfect matches additionally emit one notification
// payload per (professional, job) pair.
func (h *Handler) scoreJobCandidates(ctx context.Context, input *Input) (*Output, error) {
	job := input.Job
	if job == nil {
		var err error
		job, err = h.getJobPosting(ctx, input.JobID)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, input.JobID)
		}
	}

	candidates := input.Candidates
	if len(candidates) == 0 {
		var err error
		candidates, err = h.loadCandidates(ctx, job.ProfessionalType)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMatchFailed, err)
		}
	}

	output := &Output{Mode: JobMode, JobID: job.ID}
	for i := range candidates {
		prof := &candidates[i]
		if !prof.Matchable() {
			continue
		}

		score, criteria := Score(job, prof)
		scored := ScoredProfessional{Professional: *prof, Score: score, Criteria: criteria}

		switch {
		case score == PerfectScore:
			output.PerfectMatches = append(output.PerfectMatches, scored)
			output.Notifications = append(output.Notifications, perfectMatchPayload(job, prof))
		case score == SimilarScore:
			output.SimilarMatches = append(output.SimilarMatches, scored)
		default:
			output.OtherCandidates = append(output.OtherCandidates, scored)
		}
	}

	h.logger.Info("job candidates scored", map[string]interface{}{
		"jobId":   job.ID,
		"perfect": len(output.PerfectMatches),
		"similar": len(output.SimilarMatches),
		"other":   len(output.OtherCandidates),
	})

	return output, nil
}

// scoreOpportunities buckets postings for one professional. Within each tier
// the most recently published posting comes first.
func (h *Handler) scoreOpportunities(prof *models.ProfessionalProfile, jobs []models.JobPosting) *Output {
	output := &Output{Mode: OpportunitiesMode, ProfessionalID: prof.ID}

	for i := range jobs {
		job := &jobs[i]
		if job.Status != models.JobStatusOpen {
			continue
		}

		score, criteria := Score(job, prof)
		scored := ScoredJob{Job: *job, Score: score, Criteria: criteria}

		switch {
		case score == PerfectScore:
			output.PerfectJobs = append(output.PerfectJobs, scored)
			output.Notifications = append(output.Notifications, perfectMatchPayload(job, prof))
		case score == SimilarScore:
			output.SimilarJobs = append(output.SimilarJobs, scored)
		default:
			output.OtherJobs = append(output.OtherJobs, scored)
		}
	}

	byRecency := func(list []ScoredJob) {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Job.PublishedAt.After(list[j].Job.PublishedAt)
		})
	}
	byRecency(output.PerfectJobs)
	byRecency(output.SimilarJobs)
	byRecency(output.OtherJobs)

	return output
}

// scoreSearch scores candidates against a clinic's ad-hoc filter. The filter
// is folded into a synthetic posting so the four criteria stay identical.
// Search results never emit notifications.
func (h *Handler) scoreSearch(ctx context.Context, filter *SearchFilter, candidates []models.ProfessionalProfile) (*Output, error) {
	if len(candidates) == 0 {
		var err error
		candidates, err = h.loadCandidates(ctx, filter.ProfessionalType)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMatchFailed, err)
		}
	}

	job := filter.asPosting()

	output := &Output{Mode: SearchMode}
	for i := range candidates {
		prof := &candidates[i]
		if !prof.Matchable() {
			continue
		}

		score, criteria := Score(job, prof)
		scored := ScoredProfessional{Professional: *prof, Score: score, Criteria: criteria}

		switch {
		case score == PerfectScore:
			output.PerfectMatches = append(output.PerfectMatches, scored)
		case score == SimilarScore:
			output.SimilarMatches = append(output.SimilarMatches, scored)
		default:
			output.OtherCandidates = append(output.OtherCandidates, scored)
		}
	}

	return output, nil
}

func (f *SearchFilter) asPosting() *models.JobPosting {
	period := models.SchedulePeriodWeekdays
	if f.FullWeek {
		period = models.SchedulePeriodFullWeek
	}
	return &models.JobPosting{
		ProfessionalType:   f.ProfessionalType,
		City:               f.City,
		Specialties:        f.Specialties,
		Weekdays:           f.Weekdays,
		SchedulePeriod:     period,
		RequiredExperience: f.MinExperience,
	}
}

// Score computes the 0-4 compatibility between a posting and a professional.
// The four criteria are independent booleans worth one point each; the
// function is pure and total over partial data.
func Score(job *models.JobPosting, prof *models.ProfessionalProfile) (int, Criteria) {
	criteria := Criteria{
		City:       cityMatch(job, prof),
		Specialty:  specialtyMatch(job, prof),
		Schedule:   scheduleMatch(job, prof),
		Experience: experienceMatch(job, prof),
	}

	score := 0
	for _, ok := range []bool{criteria.City, criteria.Specialty, criteria.Schedule, criteria.Experience} {
		if ok {
			score++
		}
	}
	return score, criteria
}

func cityMatch(job *models.JobPosting, prof *models.ProfessionalProfile) bool {
	if job.City == "" {
		return false
	}
	city := strings.ToLower(job.City)
	for _, served := range prof.ServiceCities {
		if strings.Contains(strings.ToLower(served), city) {
			return true
		}
	}
	return false
}

func specialtyMatch(job *models.JobPosting, prof *models.ProfessionalProfile) bool {
	if prof.PrimarySpecialty == "" {
		return false
	}
	for _, s := range job.Specialties {
		if strings.EqualFold(s, prof.PrimarySpecialty) {
			return true
		}
	}
	return false
}

func scheduleMatch(job *models.JobPosting, prof *models.ProfessionalProfile) bool {
	profFull := false
	for _, d := range prof.WeekdayAvailability {
		if d == models.WeekdayFull {
			profFull = true
			break
		}
	}
	if profFull {
		return true
	}

	if job.SchedulePeriod == models.SchedulePeriodFullWeek ||
		job.SchedulePeriod == models.SchedulePeriodFullMonth {
		return len(prof.WeekdayAvailability) > 0
	}

	for _, wanted := range job.Weekdays {
		for _, available := range prof.WeekdayAvailability {
			if strings.EqualFold(wanted, available) {
				return true
			}
		}
	}
	return false
}

func experienceMatch(job *models.JobPosting, prof *models.ProfessionalProfile) bool {
	if job.RequiredExperience <= 0 {
		return true
	}
	return prof.YearsSinceGraduation >= job.RequiredExperience
}

// perfectMatchPayload builds the "super match" notification. The DedupKey
// lets the dispatcher guarantee at most one send per (professional, job)
// pair no matter how often scoring reruns.
func perfectMatchPayload(job *models.JobPosting, prof *models.ProfessionalProfile) models.NotificationPayload {
	return models.NotificationPayload{
		RecipientID:   prof.ID,
		RecipientType: "professional",
		RecipientName: prof.Name,
		Phone:         prof.Phone,
		Email:         prof.Email,
		Channel:       models.ChannelPush,
		JobID:         job.ID,
		JobTitle:      job.Title,
		Location:      job.City + " - " + job.State,
		DedupKey:      fmt.Sprintf("match:perfect:%s:%s", job.ID, prof.ID),
	}
}

// getJobPosting resolves a posting by id, reading through a short-lived
// redis cache the way hot profiles are cached elsewhere.
func (h *Handler) getJobPosting(ctx context.Context, jobID string) (*models.JobPosting, error) {
	cacheKey := "job:posting:" + jobID
	if val, err := h.redis.Get(ctx, cacheKey).Result(); err == nil {
		var job models.JobPosting
		if err := json.Unmarshal([]byte(val), &job); err == nil {
			return &job, nil
		}
	}

	row := h.db.QueryRowContext(ctx, `
		SELECT id, title, professional_type, specialties, required_experience_years,
		       schedule_period, weekdays, city, state, status, published_at, expires_at
		FROM job_postings WHERE id = $1`, jobID)

	var job models.JobPosting
	err := row.Scan(&job.ID, &job.Title, &job.ProfessionalType, pq.Array(&job.Specialties),
		&job.RequiredExperience, &job.SchedulePeriod, pq.Array(&job.Weekdays),
		&job.City, &job.State, &job.Status, &job.PublishedAt, &job.ExpiresAt)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(job); err == nil {
		if err := h.redis.Set(ctx, cacheKey, data, h.config.CacheTTL).Err(); err != nil {
			h.logger.Debug("job posting cache write failed", map[string]interface{}{
				"jobId": jobID,
				"error": err,
			})
		}
	}

	return &job, nil
}

func (h *Handler) loadCandidates(ctx context.Context, professionalType string) ([]models.ProfessionalProfile, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, name, professional_type, primary_specialty, years_since_graduation,
		       years_in_specialty, service_cities, availability_start, weekday_availability,
		       compensation_types, average_rating, rating_count, accepts_freelance,
		       registration_status, availability_status, phone, email
		FROM professionals
		WHERE professional_type = $1
		  AND registration_status = $2
		  AND availability_status = $3`,
		professionalType, models.RegistrationApproved, models.AvailabilityAvailable)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profs []models.ProfessionalProfile
	for rows.Next() {
		var p models.ProfessionalProfile
		err := rows.Scan(&p.ID, &p.Name, &p.ProfessionalType, &p.PrimarySpecialty,
			&p.YearsSinceGraduation, &p.YearsInSpecialty, pq.Array(&p.ServiceCities),
			&p.AvailabilityStart, pq.Array(&p.WeekdayAvailability),
			pq.Array(&p.CompensationTypes), &p.AverageRating, &p.RatingCount,
			&p.AcceptsFreelance, &p.RegistrationStatus, &p.AvailabilityStatus,
			&p.Phone, &p.Email)
		if err != nil {
			return nil, err
		}
		profs = append(profs, p)
	}
	return profs, rows.Err()
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	_, err = cmd.Send(context.Background())
	if err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
	}
}

// failJob routes transient failures (retries > 0) back to the engine with a
// decremented retry budget, and raises a BPMN error for permanent ones.
func (h *Handler) failJob(client worker.JobClient, job entities.Job, errorCode, errorMessage string, retries int32) {
	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":       job.Key,
		"errorCode":    errorCode,
		"errorMessage": errorMessage,
		"retries":      retries,
	})

	if retries > 0 {
		_, err := client.NewFailJobCommand().
			JobKey(job.Key).
			Retries(retryBudget(retries, job.Retries)).
			ErrorMessage(errorMessage).
			Send(context.Background())
		if err != nil {
			h.logger.Error("failed to fail job", map[string]interface{}{
				"error": err,
			})
		}
		return
	}

	_, err := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(errorCode).
		ErrorMessage(errorMessage).
		Send(context.Background())
	if err != nil {
		h.logger.Error("failed to throw error", map[string]interface{}{
			"error": err,
		})
	}
}

// retryBudget decrements the job's remaining retries and caps the result at
// the per-code policy, so a misconfigured process model cannot retry forever.
func retryBudget(policy, remaining int32) int32 {
	budget := remaining - 1
	if budget < 0 {
		budget = 0
	}
	if budget > policy {
		budget = policy
	}
	return budget
}

// Execute exposes the scorer for direct invocation in tests.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
