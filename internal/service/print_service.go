package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/verksted/admin-api/internal/dto"
	"github.com/verksted/admin-api/internal/models"
	"github.com/verksted/admin-api/internal/observability"
	"github.com/verksted/admin-api/internal/repository"
)

// PrintService queues membership-card prints, applies worker status updates
// and watches jobs until they reach a terminal state.
type PrintService interface {
	Enqueue(ctx context.Context, actor Actor, req dto.PrintEnqueueRequest) (dto.PrintEnqueueResult, error)
	Get(ctx context.Context, id string) (dto.PrintJobResponse, error)
	UpdateStatus(ctx context.Context, id string, req dto.PrintStatusUpdateRequest) (dto.PrintJobResponse, error)
	Watch(ctx context.Context, opts WatchOptions, callbacks WatchCallbacks) (func(), error)
}

// PrintConfig carries the tunables the print service needs. The durations
// are the defaults for watch sessions that do not set their own.
type PrintConfig struct {
	SubjectBase  string
	PollInterval time.Duration
	WatchTimeout time.Duration
}

type printService struct {
	jobs      repository.PrintJobRepository
	members   repository.MemberRepository
	audit     AuditRecorder
	nats      *nats.Conn
	cfg       PrintConfig
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewPrintService constructs the print service. A nil NATS connection
// degrades the watcher to polling only.
func NewPrintService(
	jobs repository.PrintJobRepository,
	members repository.MemberRepository,
	audit AuditRecorder,
	natsConn *nats.Conn,
	cfg PrintConfig,
	validate *validator.Validate,
	logger zerolog.Logger,
) PrintService {
	if cfg.SubjectBase == "" {
		cfg.SubjectBase = "verksted.print.jobs"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultWatchPollInterval
	}
	if cfg.WatchTimeout <= 0 {
		cfg.WatchTimeout = DefaultWatchTimeout
	}

	return &printService{
		jobs:      jobs,
		members:   members,
		audit:     audit,
		nats:      natsConn,
		cfg:       cfg,
		validator: validate,
		logger:    logger.With().Str("component", "print_service").Logger(),
	}
}

// Enqueue inserts one print job per eligible member. Missing and banned
// members fail individually without aborting the batch.
func (s *printService) Enqueue(ctx context.Context, actor Actor, req dto.PrintEnqueueRequest) (dto.PrintEnqueueResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.PrintEnqueueResult{}, err
	}

	ids := dedupeStrings(req.IDs)

	members, err := s.members.ListByIDs(ctx, ids)
	if err != nil {
		return dto.PrintEnqueueResult{}, err
	}

	byID := make(map[string]models.Member, len(members))
	for _, member := range members {
		byID[member.ID] = member
	}

	queued := make([]dto.QueuedPrintJob, 0, len(ids))
	failed := make([]dto.TargetFailure, 0)

	for _, id := range ids {
		member, ok := byID[id]
		if !ok {
			failed = append(failed, dto.TargetFailure{ID: id, Message: ErrMemberNotFound.Error()})
			continue
		}
		if member.IsBanned {
			failed = append(failed, dto.TargetFailure{ID: id, Message: "medlemmet er utestengt"})
			continue
		}

		job := models.PrintJob{
			ID:         uuid.NewString(),
			Ref:        id,
			RefInvoker: actor.ID,
		}
		if err := s.jobs.Create(ctx, &job); err != nil {
			failed = append(failed, dto.TargetFailure{ID: id, Message: err.Error()})
			continue
		}

		s.publishJob(job)
		observability.PrintJobsQueued().Inc()
		queued = append(queued, dto.QueuedPrintJob{MemberID: id, JobID: job.ID})
	}

	status := models.AuditStatusOK
	switch {
	case len(queued) == 0:
		status = models.AuditStatusError
	case len(failed) > 0:
		status = models.AuditStatusPartial
	}

	queuedIDs := make([]string, 0, len(queued))
	for _, job := range queued {
		queuedIDs = append(queuedIDs, job.MemberID)
	}

	errorMessage := ""
	if len(failed) > 0 {
		errorMessage = failed[0].Message
	}
	if s.audit != nil {
		entry := AuditEntry{
			ActorID:      actor.ID,
			Action:       "member.print.enqueue",
			TargetTable:  models.MemberTable,
			TargetID:     singleTarget(ids),
			Status:       status,
			ErrorMessage: errorMessage,
			Details: map[string]any{
				"member_ids": queuedIDs,
				"failed":     failureList(failed),
			},
		}
		if err := s.audit.Record(ctx, entry); err != nil {
			s.logger.Warn().Err(err).Msg("failed to record print enqueue audit entry")
		}
	}

	return dto.PrintEnqueueResult{Queued: queued, Failed: failed}, nil
}

func (s *printService) Get(ctx context.Context, id string) (dto.PrintJobResponse, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.PrintJobResponse{}, ErrPrintJobNotFound
		}
		return dto.PrintJobResponse{}, err
	}

	return dto.NewPrintJobResponse(job), nil
}

// UpdateStatus applies the external worker's terminal state to the row and
// publishes the update for any active watchers. Terminal rows never
// transition again.
func (s *printService) UpdateStatus(ctx context.Context, id string, req dto.PrintStatusUpdateRequest) (dto.PrintJobResponse, error) {
	if !req.Completed && (req.ErrorMsg == nil || *req.ErrorMsg == "") {
		return dto.PrintJobResponse{}, ErrInvalidPrintStatus
	}

	var (
		rows int64
		err  error
	)
	if req.Completed {
		rows, err = s.jobs.MarkCompleted(ctx, id)
	} else {
		rows, err = s.jobs.MarkErrored(ctx, id, *req.ErrorMsg)
	}
	if err != nil {
		return dto.PrintJobResponse{}, err
	}

	job, getErr := s.jobs.GetByID(ctx, id)
	if getErr != nil {
		if errors.Is(getErr, gorm.ErrRecordNotFound) {
			return dto.PrintJobResponse{}, ErrPrintJobNotFound
		}
		return dto.PrintJobResponse{}, getErr
	}

	if rows == 0 {
		return dto.NewPrintJobResponse(job), ErrPrintJobTerminal
	}

	s.publishJob(job)

	return dto.NewPrintJobResponse(job), nil
}

func (s *printService) jobSubject(id string) string {
	return s.cfg.SubjectBase + "." + id
}

// publishJob pushes the row to the job's NATS subject. Publish failure only
// costs watchers a push; polling still converges.
func (s *printService) publishJob(job models.PrintJob) {
	if s.nats == nil {
		return
	}

	payload, err := json.Marshal(dto.NewPrintJobResponse(job))
	if err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to encode print job event")
		return
	}

	if err := s.nats.Publish(s.jobSubject(job.ID), payload); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to publish print job event")
	}
}
