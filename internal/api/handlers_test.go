package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nalgeon/be"

	"clipstack/internal/config"
	"clipstack/internal/domain"
	"clipstack/internal/usecase"
)

type fakeService struct {
	UploadFunc         func(ctx context.Context, in usecase.UploadInput) (*domain.Task, error)
	RequestRenderFunc  func(ctx context.Context, taskID string) (*domain.Task, error)
	ProcessVideosFunc  func(ctx context.Context, in usecase.ProcessInput) (*usecase.ProcessResult, error)
	StatusFunc         func(ctx context.Context, taskID string) (*domain.Task, error)
	ListUserVideosFunc func(ctx context.Context, owner domain.Owner) ([]*domain.Task, error)
	DeleteFunc         func(ctx context.Context, publicID string) error
}

func (f *fakeService) Upload(ctx context.Context, in usecase.UploadInput) (*domain.Task, error) {
	return f.UploadFunc(ctx, in)
}

func (f *fakeService) RequestRender(ctx context.Context, taskID string) (*domain.Task, error) {
	return f.RequestRenderFunc(ctx, taskID)
}

func (f *fakeService) ProcessVideos(ctx context.Context, in usecase.ProcessInput) (*usecase.ProcessResult, error) {
	return f.ProcessVideosFunc(ctx, in)
}

func (f *fakeService) Status(ctx context.Context, taskID string) (*domain.Task, error) {
	return f.StatusFunc(ctx, taskID)
}

func (f *fakeService) ListUserVideos(ctx context.Context, owner domain.Owner) ([]*domain.Task, error) {
	return f.ListUserVideosFunc(ctx, owner)
}

func (f *fakeService) DeleteByPublicID(ctx context.Context, publicID string) error {
	return f.DeleteFunc(ctx, publicID)
}

func newTestServer(svc VideoService) http.Handler {
	return NewServer(config.HTTP{
		CORSOrigins:  []string{"*"},
		MaxUploadMB:  1,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}, svc).Handler()
}

func do(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]any
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		be.Err(t, json.Unmarshal(rec.Body.Bytes(), &body), nil)
	}
	return rec, body
}

func multipartUpload(t *testing.T, field, filename, content string, values map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range values {
		be.Err(t, mw.WriteField(k, v), nil)
	}
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		be.Err(t, err, nil)
		_, _ = fw.Write([]byte(content))
	}
	be.Err(t, mw.Close(), nil)

	req := httptest.NewRequest(http.MethodPost, "/upload_video", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadVideo(t *testing.T) {
	var got usecase.UploadInput
	var content string
	svc := &fakeService{UploadFunc: func(_ context.Context, in usecase.UploadInput) (*domain.Task, error) {
		got = in
		b, _ := io.ReadAll(in.File)
		content = string(b)
		return &domain.Task{
			TaskID:     "t-1",
			Status:     domain.StatusCompleted,
			HostingURL: "https://res/clip.mp4",
			Metadata:   domain.Metadata{"duration": 10.0},
		}, nil
	}}

	req := multipartUpload(t, "video", "clip.mp4", "video-bytes", map[string]string{
		"instagram_username": "alice",
		"email":              " a@x.io ",
	})
	rec, body := do(t, newTestServer(svc), req)

	be.Equal(t, rec.Code, http.StatusOK)
	be.Equal(t, body["taskId"], any("t-1"))
	be.Equal(t, body["status"], any("completed"))
	be.Equal(t, body["cloudinaryUrl"], any("https://res/clip.mp4"))

	be.Equal(t, content, "video-bytes")
	be.Equal(t, got.Filename, "clip.mp4")
	be.Equal(t, got.Owner, domain.Owner{InstagramUsername: "alice", Email: "a@x.io"})
	be.Equal(t, rec.Header().Get("Content-Type"), "application/json")
	be.True(t, rec.Header().Get("X-Request-Id") != "")
}

func TestUploadVideo_FileField(t *testing.T) {
	svc := &fakeService{UploadFunc: func(_ context.Context, in usecase.UploadInput) (*domain.Task, error) {
		return &domain.Task{TaskID: "t-1", Status: domain.StatusCompleted}, nil
	}}

	req := multipartUpload(t, "file", "clip.mp4", "x", map[string]string{"email": "a@x.io"})
	rec, _ := do(t, newTestServer(svc), req)
	be.Equal(t, rec.Code, http.StatusOK)
}

func TestUploadVideo_Errors(t *testing.T) {
	tests := []struct {
		name     string
		req      func(t *testing.T) *http.Request
		err      error
		wantCode int
	}{
		{
			"no file",
			func(t *testing.T) *http.Request {
				return multipartUpload(t, "", "", "", map[string]string{"instagram_username": "alice"})
			},
			nil, http.StatusBadRequest,
		},
		{
			"not multipart",
			func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/upload_video", strings.NewReader("{}"))
			},
			nil, http.StatusBadRequest,
		},
		{
			"missing owner",
			func(t *testing.T) *http.Request { return multipartUpload(t, "video", "a.mp4", "x", nil) },
			domain.ErrMissingOwner, http.StatusBadRequest,
		},
		{
			"unknown task",
			func(t *testing.T) *http.Request {
				return multipartUpload(t, "video", "a.mp4", "x", map[string]string{"email": "a@x.io", "taskId": "nope"})
			},
			domain.ErrTaskNotFound, http.StatusNotFound,
		},
		{
			"provider failure",
			func(t *testing.T) *http.Request {
				return multipartUpload(t, "video", "a.mp4", "x", map[string]string{"email": "a@x.io"})
			},
			errors.Join(domain.ErrUpload, errors.New("Invalid Signature")), http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{UploadFunc: func(context.Context, usecase.UploadInput) (*domain.Task, error) {
				if tt.err == nil {
					t.Fatal("service must not be called")
				}
				return nil, tt.err
			}}

			rec, body := do(t, newTestServer(svc), tt.req(t))
			be.Equal(t, rec.Code, tt.wantCode)
			be.True(t, body["error"] != nil)
		})
	}
}

func TestUploadVideo_IncompleteMetadata(t *testing.T) {
	svc := &fakeService{UploadFunc: func(context.Context, usecase.UploadInput) (*domain.Task, error) {
		return &domain.Task{
			TaskID:     "t-1",
			Status:     domain.StatusMetadataIncomplete,
			HostingURL: "https://res/clip.mp4",
			Metadata:   domain.Metadata{"duration": 0.0},
		}, domain.ErrMetadataIncomplete
	}}

	req := multipartUpload(t, "video", "a.mp4", "x", map[string]string{"instagram_username": "alice"})
	rec, body := do(t, newTestServer(svc), req)

	be.Equal(t, rec.Code, http.StatusInternalServerError)
	be.Equal(t, body["taskId"], any("t-1"))
	be.Equal(t, body["cloudinaryUrl"], any("https://res/clip.mp4"))
	be.True(t, body["metadata"] != nil)
	be.True(t, body["error"] != nil)
}

func TestTaskStatus(t *testing.T) {
	svc := &fakeService{StatusFunc: func(_ context.Context, taskID string) (*domain.Task, error) {
		if taskID == "alice/clip_abc" {
			return &domain.Task{TaskID: taskID, Status: domain.StatusConcatPending, Message: "Error checking Shotstack status: timeout"}, nil
		}
		return nil, domain.ErrTaskNotFound
	}}
	h := newTestServer(svc)

	rec, body := do(t, h, httptest.NewRequest(http.MethodGet, "/task-status/alice/clip_abc", nil))
	be.Equal(t, rec.Code, http.StatusOK)
	be.Equal(t, body["taskId"], any("alice/clip_abc"))
	be.Equal(t, body["status"], any("concatenated_pending"))

	rec, body = do(t, h, httptest.NewRequest(http.MethodGet, "/task-status/missing", nil))
	be.Equal(t, rec.Code, http.StatusNotFound)
	be.Equal(t, body["error"], any("task not found"))
}

func TestGenerateRender(t *testing.T) {
	svc := &fakeService{RequestRenderFunc: func(_ context.Context, taskID string) (*domain.Task, error) {
		switch taskID {
		case "t-1":
			return &domain.Task{TaskID: "t-1", Status: domain.StatusRenderPending, RenderJobID: "job-1", Message: "initiated"}, nil
		case "busy":
			return nil, domain.ErrRenderInProgress
		case "uploading":
			return nil, domain.ErrNotReady
		}
		return nil, domain.ErrRenderSubmission
	}}
	h := newTestServer(svc)

	tests := []struct {
		body     string
		wantCode int
	}{
		{`{"taskId":"t-1"}`, http.StatusOK},
		{`{"taskId":"busy"}`, http.StatusConflict},
		{`{"taskId":"uploading"}`, http.StatusBadRequest},
		{`{"taskId":"other"}`, http.StatusInternalServerError},
		{`{"taskId":""}`, http.StatusBadRequest},
		{`not json`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/generate-shotstack-video", strings.NewReader(tt.body))
		rec, body := do(t, h, req)
		be.Equal(t, rec.Code, tt.wantCode)
		if tt.wantCode == http.StatusOK {
			be.Equal(t, body["shotstackRenderId"], any("job-1"))
			be.Equal(t, body["taskId"], any("t-1"))
		}
	}
}

func TestProcessVideos(t *testing.T) {
	var got usecase.ProcessInput
	svc := &fakeService{ProcessVideosFunc: func(_ context.Context, in usecase.ProcessInput) (*usecase.ProcessResult, error) {
		got = in
		switch len(in.TaskIDs) {
		case 0:
			return nil, domain.ErrMissingTaskIDs
		case 1:
			return nil, domain.ErrNotEnoughSources
		}
		return &usecase.ProcessResult{
			Message:      "started",
			RenderJobID:  "job-1",
			ConcatTaskID: "concatenated_video_job-1",
		}, nil
	}}
	h := newTestServer(svc)

	req := httptest.NewRequest(http.MethodPost, "/process_videos",
		strings.NewReader(`{"task_ids":["a","b"],"connect_videos":true,"transition":"fade"}`))
	rec, body := do(t, h, req)
	be.Equal(t, rec.Code, http.StatusOK)
	be.Equal(t, body["concatenated_task_id"], any("concatenated_video_job-1"))
	be.Equal(t, body["shotstackRenderId"], any("job-1"))
	be.Equal(t, got, usecase.ProcessInput{TaskIDs: []string{"a", "b"}, Connect: true, Transition: "fade"})

	rec, _ = do(t, h, httptest.NewRequest(http.MethodPost, "/process_videos", strings.NewReader(`{"task_ids":[]}`)))
	be.Equal(t, rec.Code, http.StatusBadRequest)

	rec, _ = do(t, h, httptest.NewRequest(http.MethodPost, "/process_videos", strings.NewReader(`{"task_ids":["a"],"connect_videos":true}`)))
	be.Equal(t, rec.Code, http.StatusBadRequest)
}

func TestUserVideos(t *testing.T) {
	var got domain.Owner
	svc := &fakeService{ListUserVideosFunc: func(_ context.Context, owner domain.Owner) ([]*domain.Task, error) {
		got = owner
		if owner.Empty() {
			return nil, domain.ErrMissingOwner
		}
		return []*domain.Task{{TaskID: "b"}, {TaskID: "a"}}, nil
	}}
	h := newTestServer(svc)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/user-videos?instagram_username=alice&linkedin_profile=in%2Falice", nil))
	be.Equal(t, rec.Code, http.StatusOK)
	be.Equal(t, got, domain.Owner{InstagramUsername: "alice", LinkedinProfile: "in/alice"})

	var tasks []domain.Task
	be.Err(t, json.Unmarshal(rec.Body.Bytes(), &tasks), nil)
	be.Equal(t, len(tasks), 2)
	be.Equal(t, tasks[0].TaskID, "b")

	rec, _ = do(t, h, httptest.NewRequest(http.MethodGet, "/user-videos", nil))
	be.Equal(t, rec.Code, http.StatusBadRequest)
}

func TestDeleteVideo(t *testing.T) {
	var got string
	svc := &fakeService{DeleteFunc: func(_ context.Context, publicID string) error {
		got = publicID
		if publicID == "videos/alice/clip" {
			return nil
		}
		return domain.ErrTaskNotFound
	}}
	h := newTestServer(svc)

	rec, body := do(t, h, httptest.NewRequest(http.MethodDelete, "/delete_video/videos/alice/clip", nil))
	be.Equal(t, rec.Code, http.StatusOK)
	be.Equal(t, got, "videos/alice/clip")
	be.Equal(t, body["publicId"], any("videos/alice/clip"))

	rec, _ = do(t, h, httptest.NewRequest(http.MethodDelete, "/delete_video/videos/bob/gone", nil))
	be.Equal(t, rec.Code, http.StatusNotFound)
}

func TestStaticRoutes(t *testing.T) {
	h := newTestServer(&fakeService{})

	rec, body := do(t, h, httptest.NewRequest(http.MethodGet, "/heavy-tasks/pending", nil))
	be.Equal(t, rec.Code, http.StatusOK)
	be.True(t, strings.Contains(body["message"].(string), "No heavy tasks"))

	rec, body = do(t, h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	be.Equal(t, rec.Code, http.StatusOK)
	be.Equal(t, body["status"], any("ok"))

	rec, _ = do(t, h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	be.Equal(t, rec.Code, http.StatusOK)
	be.True(t, strings.Contains(rec.Body.String(), "clipstack_"))
}

func TestRecoverHandler(t *testing.T) {
	svc := &fakeService{StatusFunc: func(context.Context, string) (*domain.Task, error) {
		panic("boom")
	}}

	rec, body := do(t, newTestServer(svc), httptest.NewRequest(http.MethodGet, "/task-status/t-1", nil))
	be.Equal(t, rec.Code, http.StatusInternalServerError)
	be.True(t, body["error"] != nil)
}

func TestCORS(t *testing.T) {
	h := newTestServer(&fakeService{})

	req := httptest.NewRequest(http.MethodOptions, "/process_videos", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	be.Equal(t, rec.Header().Get("Access-Control-Allow-Origin"), "*")
}
