package domain

import "errors"

var (
	ErrTaskNotFound       = errors.New("task not found")
	ErrMissingFile        = errors.New("no video file provided")
	ErrMissingOwner       = errors.New("at least one of instagram_username, email or linkedin_profile is required")
	ErrMissingTaskIDs     = errors.New("no task ids provided")
	ErrNotReady           = errors.New("task is not ready for rendering")
	ErrNotEnoughSources   = errors.New("concatenation needs at least two completed videos")
	ErrNoValidTasks       = errors.New("no valid tasks found for processing")
	ErrRenderInProgress   = errors.New("render submission already in progress")
	ErrMetadataIncomplete = errors.New("video uploaded but metadata is incomplete")

	ErrUpload           = errors.New("hosting upload failed")
	ErrRenderSubmission = errors.New("render submission failed")
)
