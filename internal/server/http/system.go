package http

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ekisa-team/whisper-api/internal/service"
)

// Info describes the service on the index endpoint.
type Info struct {
	Name        string
	Version     string
	Description string
}

// DefaultInfo is reported when no Info is configured.
var DefaultInfo = Info{
	Name:        "Whisper API Server",
	Version:     "1.0.0",
	Description: "OpenAI-compatible Whisper API using whisper.cpp",
}

var supportedLanguages = []string{"id (Indonesian)", "en (English)", "auto (auto-detect)"}

type (
	HealthOutput struct {
		Body struct {
			Status      string  `json:"status" example:"healthy"`
			ModelLoaded bool    `json:"model_loaded"`
			Timestamp   float64 `json:"timestamp" doc:"Current Unix time in seconds"`
		}
	}

	IndexOutput struct {
		Body struct {
			Name               string            `json:"name"`
			Version            string            `json:"version"`
			Description        string            `json:"description"`
			ModelLoaded        bool              `json:"model_loaded"`
			Endpoints          map[string]string `json:"endpoints"`
			SupportedLanguages []string          `json:"supported_languages"`
		}
	}
)

// SystemHandler serves health and index endpoints.
type SystemHandler struct {
	service *service.STT
	now     func() time.Time
	info    Info
}

// NewSystemHandler creates a new SystemHandler instance.
func NewSystemHandler(api huma.API, service *service.STT, info Info) *SystemHandler {
	h := &SystemHandler{service: service, info: info, now: time.Now}

	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, h.handleHealth)

	huma.Register(api, huma.Operation{
		OperationID: "index",
		Method:      http.MethodGet,
		Path:        "/",
		Summary:     "Service capabilities",
		Tags:        []string{"system"},
	}, h.handleIndex)

	return h
}

func (h *SystemHandler) handleHealth(_ context.Context, _ *struct{}) (*HealthOutput, error) {
	out := &HealthOutput{}
	out.Body.Status = "healthy"
	out.Body.ModelLoaded = h.service.Ready()
	out.Body.Timestamp = float64(h.now().UnixNano()) / float64(time.Second)

	return out, nil
}

func (h *SystemHandler) handleIndex(_ context.Context, _ *struct{}) (*IndexOutput, error) {
	out := &IndexOutput{}
	out.Body.Name = h.info.Name
	out.Body.Version = h.info.Version
	out.Body.Description = h.info.Description
	out.Body.ModelLoaded = h.service.Ready()
	out.Body.Endpoints = map[string]string{
		"/health":          "Health check",
		transcriptionsPath: "Transcribe audio to text",
		translationsPath:   "Translate audio to English",
	}
	out.Body.SupportedLanguages = supportedLanguages

	return out, nil
}
