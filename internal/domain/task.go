package domain

import (
	"strings"
	"time"
)

type TaskStatus string

const (
	StatusUploading          TaskStatus = "uploading"
	StatusCompleted          TaskStatus = "completed"
	StatusMetadataIncomplete TaskStatus = "metadata_incomplete"
	StatusUploadFailed       TaskStatus = "upload_failed"
	StatusRenderPending      TaskStatus = "shotstack_pending"
	StatusFailed             TaskStatus = "failed"

	StatusConcatPending   TaskStatus = "concatenated_pending"
	StatusConcatCompleted TaskStatus = "concatenated_completed"
	StatusConcatFailed    TaskStatus = "concatenated_failed"
)

// ConcatTaskPrefix marks tasks created by a concatenation request.
const ConcatTaskPrefix = "concatenated_video_"

// Terminal reports whether a status is final for render reconciliation.
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed,
		StatusConcatCompleted, StatusConcatFailed,
		StatusMetadataIncomplete, StatusUploadFailed:
		return true
	}
	return false
}

// Retryable reports whether an upload may be re-sent into the same task.
func (s TaskStatus) Retryable() bool {
	switch s {
	case StatusUploading, StatusMetadataIncomplete, StatusUploadFailed:
		return true
	}
	return false
}

type Task struct {
	ID                int64      `json:"id"`
	TaskID            string     `json:"taskId"`
	HostingPublicID   string     `json:"cloudinaryPublicId,omitempty"`
	InstagramUsername string     `json:"instagramUsername"`
	Email             string     `json:"email"`
	LinkedinProfile   string     `json:"linkedinProfile"`
	OriginalFilename  string     `json:"originalFilename"`
	Status            TaskStatus `json:"status"`
	HostingURL        string     `json:"cloudinaryUrl"`
	Metadata          Metadata   `json:"metadata"`
	Message           string     `json:"message"`
	Timestamp         time.Time  `json:"timestamp"`
	RenderJobID       string     `json:"shotstackRenderId"`
	RenderURL         string     `json:"shotstackUrl"`
	PosterURL         string     `json:"posterUrl"`
}

// Concatenated reports whether the task was spawned by a concatenation request.
func (t *Task) Concatenated() bool {
	return strings.HasPrefix(t.TaskID, ConcatTaskPrefix)
}

// RenderOutstanding reports whether the task waits on a remote render job.
func (t *Task) RenderOutstanding() bool {
	return t.RenderJobID != "" && !t.Status.Terminal()
}

// Renderable reports whether the task can be used as a render source.
func (t *Task) Renderable() bool {
	return t.Status == StatusCompleted && t.HostingURL != "" && t.Metadata.Complete()
}

func (t *Task) Owner() Owner {
	return Owner{
		InstagramUsername: t.InstagramUsername,
		Email:             t.Email,
		LinkedinProfile:   t.LinkedinProfile,
	}
}

func (t *Task) Clone() *Task {
	c := *t
	c.Metadata = t.Metadata.Clone()
	return &c
}

// Owner holds the identifiers a task can be looked up by.
type Owner struct {
	InstagramUsername string
	Email             string
	LinkedinProfile   string
}

func (o Owner) Empty() bool {
	return o.InstagramUsername == "" && o.Email == "" && o.LinkedinProfile == ""
}

// Key returns the first non-empty identifier, used to group hosted assets.
func (o Owner) Key() string {
	for _, s := range []string{o.InstagramUsername, o.Email, o.LinkedinProfile} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// RenderStatus is a single poll result from the render provider.
type RenderStatus struct {
	Status    string
	URL       string
	PosterURL string
	Error     string
}

func (s RenderStatus) Done() bool {
	return s.Status == "done"
}

func (s RenderStatus) Failed() bool {
	switch s.Status {
	case "failed", "error", "failed_due_to_timeout":
		return true
	}
	return false
}
