package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"clipstack/internal/domain"
	"clipstack/internal/usecase"
)

// multipart parts above this size are spooled to disk
const multipartMemory = 32 << 20

type VideoService interface {
	Upload(ctx context.Context, in usecase.UploadInput) (*domain.Task, error)
	RequestRender(ctx context.Context, taskID string) (*domain.Task, error)
	ProcessVideos(ctx context.Context, in usecase.ProcessInput) (*usecase.ProcessResult, error)
	Status(ctx context.Context, taskID string) (*domain.Task, error)
	ListUserVideos(ctx context.Context, owner domain.Owner) ([]*domain.Task, error)
	DeleteByPublicID(ctx context.Context, publicID string) error
}

type incompleteUploadResponse struct {
	Error         string          `json:"error"`
	Details       string          `json:"details,omitempty"`
	TaskID        string          `json:"taskId"`
	CloudinaryURL string          `json:"cloudinaryUrl"`
	Metadata      domain.Metadata `json:"metadata"`
}

func UploadVideo(s VideoService, maxUploadBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := newHelper(w, r, "UploadVideo")

		if maxUploadBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		}
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				h.WriteError(err)
				return
			}
			h.WriteError(&httpError{http.StatusBadRequest, "expected a multipart form", err.Error()})
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		file, header, err := r.FormFile("video")
		if errors.Is(err, http.ErrMissingFile) {
			file, header, err = r.FormFile("file")
		}
		if err != nil || header.Filename == "" {
			h.WriteError(domain.ErrMissingFile)
			return
		}
		defer file.Close()

		in := usecase.UploadInput{
			File:     file,
			Filename: header.Filename,
			Owner:    ownerFromValues(r.FormValue),
			TaskID:   strings.TrimSpace(r.FormValue("taskId")),
		}
		h.Logger().Info().Str("filename", in.Filename).Str("owner", in.Owner.Key()).Msg("upload received")

		task, err := s.Upload(h.Ctx(), in)
		if errors.Is(err, domain.ErrMetadataIncomplete) && task != nil {
			h.WriteResponse(incompleteUploadResponse{
				Error:         "Video uploaded but could not retrieve complete and valid metadata. Please try again or check the video file.",
				Details:       err.Error(),
				TaskID:        task.TaskID,
				CloudinaryURL: task.HostingURL,
				Metadata:      task.Metadata,
			}, http.StatusInternalServerError)
			return
		}
		if err != nil {
			h.WriteError(err)
			return
		}

		h.WriteResponse(task, http.StatusOK)
	}
}

func TaskStatus(s VideoService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := newHelper(w, r, "TaskStatus")

		taskID := chi.URLParam(r, "*")
		if taskID == "" {
			h.WriteError(&httpError{http.StatusBadRequest, "task id is required", ""})
			return
		}

		task, err := s.Status(h.Ctx(), taskID)
		if err != nil {
			h.WriteError(err)
			return
		}
		h.WriteResponse(task, http.StatusOK)
	}
}

type renderRequest struct {
	TaskID string `json:"taskId"`
}

type renderResponse struct {
	Message     string `json:"message"`
	TaskID      string `json:"taskId"`
	RenderJobID string `json:"shotstackRenderId"`
	Status      string `json:"status"`
}

func GenerateRender(s VideoService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := newHelper(w, r, "GenerateRender")

		var req renderRequest
		if err := h.ReadRequest(&req); err != nil {
			h.WriteError(err)
			return
		}
		if strings.TrimSpace(req.TaskID) == "" {
			h.WriteError(&httpError{http.StatusBadRequest, "taskId is required", ""})
			return
		}

		task, err := s.RequestRender(h.Ctx(), req.TaskID)
		if err != nil {
			h.WriteError(err)
			return
		}

		h.WriteResponse(renderResponse{
			Message:     task.Message,
			TaskID:      task.TaskID,
			RenderJobID: task.RenderJobID,
			Status:      string(task.Status),
		}, http.StatusOK)
	}
}

type processRequest struct {
	TaskIDs       []string `json:"task_ids"`
	ConnectVideos bool     `json:"connect_videos"`
	Transition    string   `json:"transition"`
}

func ProcessVideos(s VideoService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := newHelper(w, r, "ProcessVideos")

		var req processRequest
		if err := h.ReadRequest(&req); err != nil {
			h.WriteError(err)
			return
		}
		h.Logger().Info().Strs("task_ids", req.TaskIDs).Bool("connect", req.ConnectVideos).Msg("process request")

		res, err := s.ProcessVideos(h.Ctx(), usecase.ProcessInput{
			TaskIDs:    req.TaskIDs,
			Connect:    req.ConnectVideos,
			Transition: req.Transition,
		})
		if err != nil {
			h.WriteError(err)
			return
		}
		h.WriteResponse(res, http.StatusOK)
	}
}

func UserVideos(s VideoService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := newHelper(w, r, "UserVideos")

		tasks, err := s.ListUserVideos(h.Ctx(), ownerFromValues(r.URL.Query().Get))
		if err != nil {
			h.WriteError(err)
			return
		}
		h.WriteResponse(tasks, http.StatusOK)
	}
}

type deleteResponse struct {
	Message  string `json:"message"`
	PublicID string `json:"publicId"`
}

func DeleteVideo(s VideoService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := newHelper(w, r, "DeleteVideo")

		publicID := chi.URLParam(r, "*")
		if err := s.DeleteByPublicID(h.Ctx(), publicID); err != nil {
			h.WriteError(err)
			return
		}
		h.WriteResponse(deleteResponse{Message: "Video deleted.", PublicID: publicID}, http.StatusOK)
	}
}

func PendingHeavyTasks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := newHelper(w, r, "PendingHeavyTasks")
		h.WriteResponse(map[string]any{
			"message": "No heavy tasks pending for local worker yet.",
			"tasks":   []any{},
		}, http.StatusOK)
	}
}

func Healthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := newHelper(w, r, "Healthz")
		h.WriteResponse(map[string]string{"status": "ok"}, http.StatusOK)
	}
}

func ownerFromValues(get func(string) string) domain.Owner {
	return domain.Owner{
		InstagramUsername: strings.TrimSpace(get("instagram_username")),
		Email:             strings.TrimSpace(get("email")),
		LinkedinProfile:   strings.TrimSpace(get("linkedin_profile")),
	}
}
