package http

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ekisa-team/whisper-api/internal/service"
)

const (
	transcriptionsPath = "/v1/audio/transcriptions"
	translationsPath   = "/v1/audio/translations"
)

type (
	// AudioInput carries the raw multipart form so that missing and empty
	// file parts can be told apart.
	AudioInput struct {
		RawBody multipart.Form
	}

	TranscriptionOutput struct {
		Body *service.Transcription
	}
)

// STTHandler handles HTTP requests for STT.
type STTHandler struct {
	service *service.STT
}

// NewSTTHandler creates a new STTHandler instance.
func NewSTTHandler(api huma.API, service *service.STT) *STTHandler {
	h := &STTHandler{service: service}

	ready := h.requireReady(api)

	huma.Register(api, audioOperation(
		ready,
		"create-transcription",
		transcriptionsPath,
		"Transcribe audio to text",
		"Form fields: file (required), language (default id, or auto), model (ignored), response_format (json or verbose_json), temperature (default 0).",
	), h.handleTranscribe)

	huma.Register(api, audioOperation(
		ready,
		"create-translation",
		translationsPath,
		"Translate audio to English",
		"Form fields: file (required), model (ignored), response_format (json or verbose_json), temperature (default 0).",
	), h.handleTranslate)

	return h
}

// requireReady rejects audio requests before the body is parsed while no
// engine is loaded.
func (h *STTHandler) requireReady(api huma.API) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if !h.service.Ready() {
			_ = huma.WriteErr(api, ctx, http.StatusInternalServerError, "Whisper model not loaded")
			return
		}
		next(ctx)
	}
}

func audioOperation(ready func(huma.Context, func(huma.Context)), id, path, summary, description string) huma.Operation {
	return huma.Operation{
		Middlewares:   huma.Middlewares{ready},
		OperationID:   id,
		Method:        http.MethodPost,
		Path:          path,
		Summary:       summary,
		Description:   description,
		Tags:          []string{"audio"},
		DefaultStatus: http.StatusOK,
		// Uploads and decoding are unbounded.
		MaxBodyBytes:    -1,
		BodyReadTimeout: -1,
		Errors:          []int{http.StatusBadRequest, http.StatusInternalServerError},
	}
}

// handleTranscribe handles the create-transcription operation.
func (h *STTHandler) handleTranscribe(ctx context.Context, input *AudioInput) (*TranscriptionOutput, error) {
	defer releaseForm(&input.RawBody)

	upload, cleanup, err := uploadFromForm(&input.RawBody, true)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	result, err := h.service.Transcribe(ctx, upload)
	if err != nil {
		return nil, toHTTPError(err)
	}

	return &TranscriptionOutput{Body: result}, nil
}

// handleTranslate handles the create-translation operation.
func (h *STTHandler) handleTranslate(ctx context.Context, input *AudioInput) (*TranscriptionOutput, error) {
	defer releaseForm(&input.RawBody)

	upload, cleanup, err := uploadFromForm(&input.RawBody, false)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	result, err := h.service.Translate(ctx, upload)
	if err != nil {
		return nil, toHTTPError(err)
	}

	return &TranscriptionOutput{Body: result}, nil
}

// uploadFromForm maps the multipart form onto a service.Upload. The returned
// cleanup closes the opened file part.
func uploadFromForm(form *multipart.Form, withLanguage bool) (*service.Upload, func(), error) {
	upload := &service.Upload{
		ResponseFormat: formValue(form, "response_format", service.FormatJSON),
		Model:          formValue(form, "model", ""),
		Temperature:    formValue(form, "temperature", "0"),
	}
	if withLanguage {
		upload.Language = formValue(form, "language", service.DefaultLanguage)
	}

	noop := func() {}

	files := form.File["file"]
	if len(files) == 0 {
		// A file part sent without a filename is parsed as a plain value.
		if _, ok := form.Value["file"]; ok {
			upload.Audio = http.NoBody
		}
		return upload, noop, nil
	}

	header := files[0]
	upload.Filename = header.Filename
	if upload.Filename == "" {
		upload.Audio = http.NoBody
		return upload, noop, nil
	}

	f, err := header.Open()
	if err != nil {
		return nil, noop, newError(http.StatusBadRequest, "failed to read uploaded file: "+err.Error())
	}
	upload.Audio = f

	return upload, func() { _ = f.Close() }, nil
}

// releaseForm removes the spooled copies of file parts. The router hands a
// derived request to handlers, so net/http never cleans these up itself.
func releaseForm(form *multipart.Form) {
	_ = form.RemoveAll()
}

func formValue(form *multipart.Form, key, fallback string) string {
	if values, ok := form.Value[key]; ok && len(values) > 0 {
		return values[0]
	}
	return fallback
}

// toHTTPError maps service errors to HTTP errors.
func toHTTPError(err error) error {
	switch {
	case errors.Is(err, service.ErrModelNotLoaded):
		return newError(http.StatusInternalServerError, "Whisper model not loaded")
	case errors.Is(err, service.ErrNoFile):
		return newError(http.StatusBadRequest, "No audio file provided")
	case errors.Is(err, service.ErrNoFileSelected):
		return newError(http.StatusBadRequest, "No file selected")
	default:
		return newError(http.StatusInternalServerError, err.Error())
	}
}
