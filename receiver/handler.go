package receiver

import (
	"encoding/json"
	"io"
	"net/http"
)

const DefaultMaxBodyBytes int64 = 1 << 20

// Handler exposes a Processor as an http.Handler. Success and duplicate
// deliveries answer 200; handler failures answer 500 so the sender retries.
type Handler struct {
	Processor    *Processor
	MaxBodyBytes int64
}

func NewHandler(processor *Processor) *Handler {
	return &Handler{Processor: processor, MaxBodyBytes: DefaultMaxBodyBytes}
}

type handlerResponse struct {
	Accepted bool   `json:"accepted"`
	Deduped  bool   `json:"deduped,omitempty"`
	Status   string `json:"status,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeResponse(w, http.StatusMethodNotAllowed, handlerResponse{Error: "method not allowed"})
		return
	}

	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		writeResponse(w, http.StatusBadRequest, handlerResponse{Error: "unable to read body"})
		return
	}
	if int64(len(body)) > limit {
		writeResponse(w, http.StatusRequestEntityTooLarge, handlerResponse{Error: "body too large"})
		return
	}

	headers := make(map[string]string, len(r.Header))
	for key, values := range r.Header {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}

	result, err := h.Processor.Process(r.Context(), Request{Headers: headers, Body: body})
	response := handlerResponse{Accepted: result.Accepted}
	if status, ok := result.Metadata["status"].(string); ok {
		response.Status = status
	}
	if deduped, ok := result.Metadata["deduped"].(bool); ok {
		response.Deduped = deduped
	}
	status := result.StatusCode
	if err != nil {
		response.Error = err.Error()
		if status == 0 {
			status = StatusCode(err)
		}
	}
	if status == 0 {
		status = http.StatusOK
	}
	writeResponse(w, status, response)
}

func writeResponse(w http.ResponseWriter, status int, body handlerResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
