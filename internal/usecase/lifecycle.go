package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"clipstack/internal/domain"
	"clipstack/internal/metrics"
	"clipstack/internal/ports"
)

const defaultTitle = "Video Analysis"

// Lifecycle drives a task from upload through rendering. It is the only
// writer of task status.
type Lifecycle struct {
	Store    ports.TaskStore
	Hosting  ports.Hosting
	Renderer ports.Renderer
	Locker   ports.Locker

	newID func() string
}

func NewLifecycle(store ports.TaskStore, hosting ports.Hosting, renderer ports.Renderer, locker ports.Locker) *Lifecycle {
	return &Lifecycle{
		Store:    store,
		Hosting:  hosting,
		Renderer: renderer,
		Locker:   locker,
		newID:    uuid.NewString,
	}
}

type UploadInput struct {
	File     io.Reader
	Filename string
	Owner    domain.Owner
	// TaskID retries an earlier upload when set.
	TaskID string
}

// Upload stores the video with the hosting provider and records the result.
// A task whose metadata came back degenerate is returned together with
// ErrMetadataIncomplete so the caller can retry into the same task.
func (l *Lifecycle) Upload(ctx context.Context, in UploadInput) (*domain.Task, error) {
	if in.File == nil {
		return nil, domain.ErrMissingFile
	}
	owner := trimOwner(in.Owner)
	if owner.Empty() {
		return nil, domain.ErrMissingOwner
	}

	task, err := l.prepareUpload(ctx, in, owner)
	if err != nil {
		return nil, err
	}
	if !task.Status.Retryable() {
		log.Ctx(ctx).Info().Str("task_id", task.TaskID).Str("status", string(task.Status)).Msg("upload already recorded, skipping")
		return task, nil
	}

	logger := log.Ctx(ctx).With().Str("task_id", task.TaskID).Str("public_id", task.HostingPublicID).Logger()
	logger.Info().Str("filename", in.Filename).Msg("uploading video")

	meta, err := l.Hosting.Upload(ctx, in.File, task.HostingPublicID)
	if err != nil {
		logger.Error().Err(err).Msg("upload failed")
		metrics.Uploads.WithLabelValues(string(domain.StatusUploadFailed)).Inc()
		if _, uerr := l.Store.Update(context.WithoutCancel(ctx), task.TaskID, func(t *domain.Task) {
			t.Status = domain.StatusUploadFailed
			t.Message = "Upload to hosting provider failed: " + err.Error()
		}); uerr != nil {
			logger.Error().Err(uerr).Msg("failed to record upload failure")
		}
		return nil, err
	}

	complete := meta.Complete()
	task, err = l.Store.Update(ctx, task.TaskID, func(t *domain.Task) {
		t.HostingURL = meta.String("secure_url")
		t.Metadata = meta
		if complete {
			t.Status = domain.StatusCompleted
			t.Message = "Video successfully uploaded and full metadata obtained."
		} else {
			t.Status = domain.StatusMetadataIncomplete
			t.Message = "Video uploaded but duration, resolution or size is missing. Please retry the upload."
		}
	})
	if err != nil {
		return nil, err
	}
	metrics.Uploads.WithLabelValues(string(task.Status)).Inc()

	if !complete {
		logger.Warn().Interface("metadata", meta).Msg("uploaded video has incomplete metadata")
		return task, domain.ErrMetadataIncomplete
	}

	logger.Info().Float64("duration", meta.Duration()).Msg("video uploaded")
	return task, nil
}

// prepareUpload returns the task the upload is written into, creating it in
// uploading state when the caller did not name one.
func (l *Lifecycle) prepareUpload(ctx context.Context, in UploadInput, owner domain.Owner) (*domain.Task, error) {
	if in.TaskID != "" {
		existing, err := l.Store.GetByTaskID(ctx, in.TaskID)
		if err != nil {
			return nil, err
		}
		if !existing.Status.Retryable() {
			return existing, nil
		}
		return l.Store.Update(ctx, existing.TaskID, func(t *domain.Task) {
			if t.HostingPublicID == "" {
				t.HostingPublicID = l.Hosting.PublicID(owner.Key(), uploadName(in.Filename, t.TaskID))
			}
			if in.Filename != "" {
				t.OriginalFilename = in.Filename
			}
			t.Status = domain.StatusUploading
			t.Message = "Retrying upload."
		})
	}

	id := l.newID()
	return l.Store.Create(ctx, &domain.Task{
		TaskID:            id,
		HostingPublicID:   l.Hosting.PublicID(owner.Key(), uploadName(in.Filename, id)),
		InstagramUsername: owner.InstagramUsername,
		Email:             owner.Email,
		LinkedinProfile:   owner.LinkedinProfile,
		OriginalFilename:  in.Filename,
		Status:            domain.StatusUploading,
		Message:           "Upload started.",
	})
}

// RequestRender submits a single-video render for a completed task. A task
// that already waits on a render returns its existing job.
func (l *Lifecycle) RequestRender(ctx context.Context, taskID string) (*domain.Task, error) {
	release, ok, err := l.Locker.TryLock(ctx, "render:"+taskID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrRenderInProgress
	}
	defer release()

	task, err := l.Store.GetByTaskID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status == domain.StatusRenderPending && task.RenderJobID != "" {
		log.Ctx(ctx).Info().Str("task_id", taskID).Str("render_id", task.RenderJobID).Msg("render already pending")
		return task, nil
	}
	if !task.Renderable() {
		if task.Status == domain.StatusCompleted {
			return nil, fmt.Errorf("%w: task %s", domain.ErrMetadataIncomplete, taskID)
		}
		return nil, fmt.Errorf("%w: task %s is %s", domain.ErrNotReady, taskID, task.Status)
	}

	jobID, err := l.Renderer.Submit(ctx, []ports.RenderSource{{URL: task.HostingURL, Metadata: task.Metadata}}, decoration(task.Owner(), ""))
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("task_id", taskID).Msg("render submission failed")
		return nil, err
	}
	metrics.RenderSubmissions.WithLabelValues("single").Inc()

	task, err = l.Store.Update(ctx, taskID, func(t *domain.Task) {
		t.Status = domain.StatusRenderPending
		t.RenderJobID = jobID
		t.RenderURL = ""
		t.PosterURL = ""
		t.Message = "Shotstack render initiated with ID: " + jobID
	})
	if err != nil {
		return nil, err
	}

	log.Ctx(ctx).Info().Str("task_id", taskID).Str("render_id", jobID).Msg("render submitted")
	return task, nil
}

type ProcessInput struct {
	TaskIDs    []string
	Connect    bool
	Transition string
}

type SkippedTask struct {
	TaskID string `json:"taskId"`
	Reason string `json:"reason"`
}

type RenderResult struct {
	TaskID      string `json:"taskId"`
	RenderJobID string `json:"shotstackRenderId,omitempty"`
	Status      string `json:"status,omitempty"`
	Error       string `json:"error,omitempty"`
}

type ProcessResult struct {
	Message      string         `json:"message"`
	RenderJobID  string         `json:"shotstackRenderId,omitempty"`
	ConcatTaskID string         `json:"concatenated_task_id,omitempty"`
	Initiated    []RenderResult `json:"initiated_tasks,omitempty"`
	Skipped      []SkippedTask  `json:"skipped_tasks,omitempty"`
}

// ProcessVideos either concatenates the given tasks into one render or
// requests a render for each of them.
func (l *Lifecycle) ProcessVideos(ctx context.Context, in ProcessInput) (*ProcessResult, error) {
	if len(in.TaskIDs) == 0 {
		return nil, domain.ErrMissingTaskIDs
	}

	res := &ProcessResult{}
	var valid []*domain.Task
	for _, id := range in.TaskIDs {
		task, err := l.Store.GetByTaskID(ctx, id)
		switch {
		case errors.Is(err, domain.ErrTaskNotFound):
			res.Skipped = append(res.Skipped, SkippedTask{TaskID: id, Reason: "not found"})
			continue
		case err != nil:
			return nil, err
		}
		if reason := unrenderableReason(task); reason != "" {
			log.Ctx(ctx).Warn().Str("task_id", id).Str("reason", reason).Msg("skipping task")
			res.Skipped = append(res.Skipped, SkippedTask{TaskID: id, Reason: reason})
			continue
		}
		valid = append(valid, task)
	}

	if len(valid) == 0 {
		return nil, domain.ErrNoValidTasks
	}
	if in.Connect {
		if len(valid) < 2 {
			return nil, domain.ErrNotEnoughSources
		}
		return l.concatenate(ctx, valid, in.Transition, res)
	}

	for _, task := range valid {
		r := RenderResult{TaskID: task.TaskID}
		rendered, err := l.RequestRender(ctx, task.TaskID)
		if err != nil {
			r.Error = err.Error()
		} else {
			r.RenderJobID = rendered.RenderJobID
			r.Status = string(rendered.Status)
		}
		res.Initiated = append(res.Initiated, r)
	}
	res.Message = fmt.Sprintf("Render requested for %d video(s).", len(valid))
	return res, nil
}

func (l *Lifecycle) concatenate(ctx context.Context, tasks []*domain.Task, transition string, res *ProcessResult) (*ProcessResult, error) {
	sources := make([]ports.RenderSource, 0, len(tasks))
	ids := make([]string, 0, len(tasks))
	var total float64
	for _, t := range tasks {
		sources = append(sources, ports.RenderSource{URL: t.HostingURL, Metadata: t.Metadata})
		ids = append(ids, t.TaskID)
		total += t.Metadata.Duration()
	}

	first := tasks[0]
	jobID, err := l.Renderer.Submit(ctx, sources, decoration(first.Owner(), transition))
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Strs("task_ids", ids).Msg("concatenation submission failed")
		return nil, err
	}
	metrics.RenderSubmissions.WithLabelValues("concatenation").Inc()

	task, err := l.Store.Create(ctx, &domain.Task{
		TaskID:            domain.ConcatTaskPrefix + jobID,
		InstagramUsername: first.InstagramUsername,
		Email:             first.Email,
		LinkedinProfile:   first.LinkedinProfile,
		OriginalFilename:  combinedFilename(tasks, jobID),
		Status:            domain.StatusConcatPending,
		Metadata: domain.Metadata{
			"combined_from_tasks": ids,
			"total_duration":      total,
		},
		Message:     "Concatenated video render initiated with ID: " + jobID,
		RenderJobID: jobID,
	})
	if err != nil {
		return nil, err
	}

	log.Ctx(ctx).Info().Str("task_id", task.TaskID).Str("render_id", jobID).Int("sources", len(tasks)).Msg("concatenation submitted")

	res.Message = task.Message
	res.RenderJobID = jobID
	res.ConcatTaskID = task.TaskID
	return res, nil
}

// Status returns the task, first reconciling it with the render provider
// when a render is outstanding.
func (l *Lifecycle) Status(ctx context.Context, taskID string) (*domain.Task, error) {
	task, err := l.Store.GetByTaskID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !task.RenderOutstanding() {
		return task, nil
	}
	task, _ = l.reconcile(ctx, task)
	return task, nil
}

const (
	outcomeDone       = "done"
	outcomeFailed     = "failed"
	outcomeInProgress = "in_progress"
	outcomeError      = "error"
)

// reconcile never returns an error: a failed status check only changes the
// message, and the previously stored state is returned.
func (l *Lifecycle) reconcile(ctx context.Context, task *domain.Task) (*domain.Task, string) {
	logger := log.Ctx(ctx).With().Str("task_id", task.TaskID).Str("render_id", task.RenderJobID).Logger()
	jobID := task.RenderJobID

	rs, err := l.Renderer.Status(ctx, jobID)
	if err != nil {
		logger.Error().Err(err).Msg("render status check failed")
		metrics.Reconciliations.WithLabelValues(outcomeError).Inc()

		msg := "Error checking Shotstack status: " + err.Error()
		updated, uerr := l.Store.Update(context.WithoutCancel(ctx), task.TaskID, func(t *domain.Task) {
			t.Message = msg
		})
		if uerr != nil {
			logger.Error().Err(uerr).Msg("failed to record status check error")
			out := task.Clone()
			out.Message = msg
			return out, outcomeError
		}
		return updated, outcomeError
	}

	outcome := outcomeInProgress
	switch {
	case delivered(rs):
		outcome = outcomeDone
	case rs.Failed():
		outcome = outcomeFailed
	}

	updated, err := l.Store.Update(ctx, task.TaskID, func(t *domain.Task) {
		if t.RenderJobID != jobID || !t.RenderOutstanding() {
			return
		}
		applyRenderStatus(t, rs)
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to persist render status")
		metrics.Reconciliations.WithLabelValues(outcomeError).Inc()
		return task, outcomeError
	}

	metrics.Reconciliations.WithLabelValues(outcome).Inc()
	logger.Info().Str("provider_status", rs.Status).Str("status", string(updated.Status)).Msg("render status reconciled")
	return updated, outcome
}

// delivered is a finished render with an output to point at. A done status
// without a URL keeps the task pending.
func delivered(rs domain.RenderStatus) bool {
	return rs.Done() && rs.URL != ""
}

func applyRenderStatus(t *domain.Task, rs domain.RenderStatus) {
	concat := t.Concatenated()

	switch {
	case delivered(rs):
		t.RenderURL = rs.URL
		if rs.PosterURL != "" {
			t.PosterURL = rs.PosterURL
		}
		if concat {
			t.Status = domain.StatusConcatCompleted
			t.Message = "Concatenated video rendered successfully."
		} else {
			t.Status = domain.StatusCompleted
			t.Message = "Shotstack video rendered successfully."
		}

	case rs.Failed():
		reason := rs.Error
		if reason == "" {
			reason = "Unknown Shotstack error"
		}
		if concat {
			t.Status = domain.StatusConcatFailed
			t.Message = "Concatenated video rendering failed: " + reason
		} else {
			t.Status = domain.StatusFailed
			t.Message = "Shotstack rendering failed: " + reason
		}

	default:
		if t.PosterURL == "" && rs.PosterURL != "" {
			t.PosterURL = rs.PosterURL
		}
		t.Message = "Shotstack render in progress: " + rs.Status
	}
}

// ListUserVideos returns the owner's tasks, newest first. Tasks whose hosted
// asset has been removed from the provider are deleted and left out.
func (l *Lifecycle) ListUserVideos(ctx context.Context, owner domain.Owner) ([]*domain.Task, error) {
	owner = trimOwner(owner)
	if owner.Empty() {
		return nil, domain.ErrMissingOwner
	}

	tasks, err := l.Store.ListByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.HostingPublicID == "" || l.Hosting.Exists(ctx, t.HostingPublicID) {
			out = append(out, t)
			continue
		}

		if _, err := l.Store.Delete(ctx, t.ID); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("task_id", t.TaskID).Msg("failed to prune task")
			out = append(out, t)
			continue
		}
		metrics.PrunedTasks.Inc()
		log.Ctx(ctx).Info().Str("task_id", t.TaskID).Str("public_id", t.HostingPublicID).Msg("pruned task with missing hosted video")
	}
	return out, nil
}

// DeleteByPublicID removes the hosted video and its task. A hosting failure
// is logged and does not keep the task.
func (l *Lifecycle) DeleteByPublicID(ctx context.Context, publicID string) error {
	publicID = strings.Trim(publicID, "/")
	if publicID == "" {
		return domain.ErrTaskNotFound
	}

	if err := l.Hosting.Delete(ctx, publicID); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("public_id", publicID).Msg("hosting delete failed, removing task anyway")
	}

	task, err := l.Store.GetByHostingPublicID(ctx, publicID)
	if err != nil {
		return err
	}
	if _, err := l.Store.Delete(ctx, task.ID); err != nil {
		return err
	}

	log.Ctx(ctx).Info().Str("task_id", task.TaskID).Str("public_id", publicID).Msg("video deleted")
	return nil
}

type SweepReport struct {
	Checked    int
	Done       int
	Failed     int
	InProgress int
	Errors     int
}

// Sweep reconciles every task with an outstanding render.
func (l *Lifecycle) Sweep(ctx context.Context) (SweepReport, error) {
	var rep SweepReport

	tasks, err := l.Store.ListPendingRenders(ctx)
	if err != nil {
		return rep, err
	}

	for _, t := range tasks {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		_, outcome := l.reconcile(ctx, t)
		rep.Checked++
		switch outcome {
		case outcomeDone:
			rep.Done++
		case outcomeFailed:
			rep.Failed++
		case outcomeInProgress:
			rep.InProgress++
		default:
			rep.Errors++
		}
	}
	return rep, nil
}

func unrenderableReason(t *domain.Task) string {
	switch {
	case t.Status != domain.StatusCompleted:
		return "status is " + string(t.Status)
	case t.HostingURL == "":
		return "no hosted video"
	case !t.Metadata.Complete():
		return "incomplete metadata"
	}
	return ""
}

func decoration(owner domain.Owner, transition string) ports.Decoration {
	title := defaultTitle
	if name := cleanName(owner.InstagramUsername); name != "" {
		title = "@" + name
	}
	return ports.Decoration{Title: title, Transition: transition}
}

// combinedFilename names a concatenation after up to three of its sources.
func combinedFilename(tasks []*domain.Task, jobID string) string {
	var bases []string
	for _, t := range tasks[:min(3, len(tasks))] {
		bases = append(bases, baseName(t.OriginalFilename))
	}
	return fmt.Sprintf("Combined_%s_%s.mp4", strings.Join(bases, "_"), jobID[:min(8, len(jobID))])
}

func uploadName(filename, taskID string) string {
	base := baseName(filename)
	if base == "" {
		base = "video"
	}
	return base + "_" + taskID[:min(8, len(taskID))]
}

func baseName(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, path.Ext(base))
}

func cleanName(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		if r == '_' || r == '-' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func trimOwner(o domain.Owner) domain.Owner {
	return domain.Owner{
		InstagramUsername: strings.TrimSpace(o.InstagramUsername),
		Email:             strings.TrimSpace(o.Email),
		LinkedinProfile:   strings.TrimSpace(o.LinkedinProfile),
	}
}
