package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/topicflow/topicflow/internal/engine"
	"github.com/topicflow/topicflow/pkg/middleware/authn"
	"github.com/topicflow/topicflow/pkg/middleware/logging"
	"github.com/topicflow/topicflow/pkg/middleware/recovery"
	"github.com/topicflow/topicflow/pkg/middleware/requestid"
	"github.com/topicflow/topicflow/pkg/model"
	"github.com/topicflow/topicflow/pkg/principal"
	serverErrors "github.com/topicflow/topicflow/pkg/server/errors"
	"github.com/topicflow/topicflow/pkg/value"
)

const (
	healthPath              = "/healthz"
	defaultRequestBodyLimit = 1 << 20
)

// HandlerConfig configures the HTTP surface of a Server.
type HandlerConfig struct {
	Authenticator      principal.Authenticator
	RequestBodyLimit   int64
	CORSAllowedOrigins []string
	CORSAllowedHeaders []string
	Trace              bool
}

type taskResponse struct {
	PipelineID string              `json:"pipelineId"`
	TopicID    string              `json:"topicId"`
	DataID     string              `json:"dataId,omitempty"`
	Round      int                 `json:"round"`
	Status     model.MonitorStatus `json:"status"`
	Error      string              `json:"error,omitempty"`
	Reads      uint32              `json:"reads"`
	Writes     uint32              `json:"writes"`
}

type triggerResponse struct {
	DataID  string                    `json:"dataId"`
	Type    model.PipelineTriggerType `json:"type"`
	TraceID string                    `json:"traceId"`
	Rounds  int                       `json:"rounds"`
	Dropped int                       `json:"dropped"`
	Tasks   []taskResponse            `json:"tasks"`
	Errors  []string                  `json:"errors,omitempty"`
}

func newTriggerResponse(resp *TriggerResponse) *triggerResponse {
	out := &triggerResponse{
		DataID:  resp.DataID,
		Type:    resp.Type,
		TraceID: resp.Report.TraceID,
		Rounds:  resp.Report.Rounds,
		Dropped: resp.Report.Dropped,
		Tasks:   make([]taskResponse, 0, len(resp.Report.Tasks)),
	}
	for _, t := range resp.Report.Tasks {
		out.Tasks = append(out.Tasks, newTaskResponse(t))
	}
	for _, err := range resp.Report.Errors {
		out.Errors = append(out.Errors, err.Error())
	}
	return out
}

func newTaskResponse(t *engine.TaskResult) taskResponse {
	task := taskResponse{
		PipelineID: t.PipelineID,
		TopicID:    t.TopicID,
		DataID:     t.DataID,
		Round:      t.Round,
		Status:     t.Status,
		Reads:      t.Reads,
		Writes:     t.Writes,
	}
	if t.Err != nil {
		task.Error = t.Err.Error()
	}
	return task
}

// Handler returns the HTTP API of s:
//
//	POST /v1/topics/{topic}/data?type=insert|merge|insert-or-merge|delete[&id=]
//	GET  /v1/traces/{traceId}/monitor-logs
//	GET  /healthz
func (s *Server) Handler(cfg HandlerConfig) http.Handler {
	if cfg.RequestBodyLimit <= 0 {
		cfg.RequestBodyLimit = defaultRequestBodyLimit
	}
	if cfg.Authenticator == nil {
		cfg.Authenticator = principal.HeaderAuthenticator{}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/topics/{topic}/data", func(w http.ResponseWriter, r *http.Request) {
		s.handleTrigger(w, r, cfg.RequestBodyLimit)
	})
	mux.HandleFunc("GET /v1/traces/{traceId}/monitor-logs", s.handleMonitorLogs)
	mux.HandleFunc("GET "+healthPath, s.handleHealth)

	handler := authn.Middleware(cfg.Authenticator, mux, healthPath)
	handler = logging.Middleware(s.logger, handler)
	handler = requestid.Middleware(handler)
	if cfg.Trace {
		handler = otelhttp.NewHandler(handler, "topicflow")
	}

	return recovery.HTTPPanicRecoveryHandler(cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowCredentials: true,
		AllowedHeaders:   cfg.CORSAllowedHeaders,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodHead},
	}).Handler(handler), s.logger)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request, limit int64) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, &serverErrors.Error{
				Status:  http.StatusRequestEntityTooLarge,
				Code:    "request_too_large",
				Message: "request body exceeds the configured limit",
			})
			return
		}
		s.writeError(w, r, serverErrors.InvalidArgument("failed to read request body"))
		return
	}

	data := value.Map{}
	if len(body) > 0 {
		parsed, err := value.FromJSON(body)
		if err != nil {
			s.writeError(w, r, serverErrors.InvalidArgument("request body must be a json object"))
			return
		}
		m, ok := parsed.(value.Map)
		if !ok {
			s.writeError(w, r, serverErrors.InvalidArgument("request body must be a json object"))
			return
		}
		data = m
	}

	triggerType := model.PipelineTriggerType(r.URL.Query().Get("type"))
	if triggerType == "" {
		triggerType = model.TriggerInsert
	}

	resp, err := s.Trigger(r.Context(), &TriggerRequest{
		Topic:  r.PathValue("topic"),
		Type:   triggerType,
		DataID: r.URL.Query().Get("id"),
		Data:   data,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if resp.Type == model.TriggerInsert {
		status = http.StatusCreated
	}
	writeJSON(w, status, newTriggerResponse(resp))
}

func (s *Server) handleMonitorLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.MonitorLogs(r.Context(), r.PathValue("traceId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if logs == nil {
		logs = []*model.MonitorLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ready, err := s.IsReady(r.Context())
	if err != nil || !ready {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "NOT_SERVING"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "SERVING"})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	err = serverErrors.HandleError("", err)
	logging.SetError(r, err)
	serverErrors.Write(w, err)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
