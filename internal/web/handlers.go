package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net/http"
	"time"

	"github.com/Taha-404/Autonomous-Car/internal/mailbox"
)

const maxBodyBytes = 1 << 20

// LoopConfig is the tuning reported by GET /config.
type LoopConfig struct {
	Kp             float64 `json:"kp"`
	Ki             float64 `json:"ki"`
	Kd             float64 `json:"kd"`
	ErrorFactorDeg float64 `json:"error_factor_deg"`
	PeriodMs       int     `json:"period_ms"`
	StepsPerDegree float64 `json:"steps_per_degree"`
	MaxSteps       int     `json:"max_steps"`
}

// SetpointRequest is the body of POST /setpoint.
type SetpointRequest struct {
	DeltaDeg *float64 `json:"delta_deg"`
}

// OrientationRequest is the body of POST /orientation.
type OrientationRequest struct {
	HeadingDeg *float64 `json:"heading_deg"`
}

// ValidateDelta checks a commanded orientation delta.
func ValidateDelta(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return errors.New("delta_deg must be a finite number")
	}
	if v <= -360 || v >= 360 {
		return fmt.Errorf("delta_deg must be within (-360, 360), got %g", v)
	}
	return nil
}

// ValidateHeading checks a current-orientation sample.
func ValidateHeading(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return errors.New("heading_deg must be a finite number")
	}
	if v < -180 || v >= 180 {
		return fmt.Errorf("heading_deg must be within [-180, 180), got %g", v)
	}
	return nil
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Config      LoopConfig
	desired     *mailbox.Mailbox[float64]
	current     *mailbox.Mailbox[float64]
	staticFS    fs.FS
}

// NewHandlers creates handlers with the given dependencies.
// If a mailbox is nil, the matching POST route returns 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, cfg LoopConfig, desired, current *mailbox.Mailbox[float64], staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Config:      cfg,
		desired:     desired,
		current:     current,
		staticFS:    staticFS,
	}
}

// HandleConfig returns the loop tuning as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Config)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleSetpoint handles POST /setpoint: it commands a new orientation delta.
func (h *Handlers) HandleSetpoint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SetpointRequest
	if err := decodeBody(w, r, &req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.DeltaDeg == nil {
		http.Error(w, "delta_deg is required", http.StatusBadRequest)
		return
	}
	if err := ValidateDelta(*req.DeltaDeg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if h.desired == nil {
		http.Error(w, "setpoint input not configured", http.StatusServiceUnavailable)
		return
	}

	h.desired.Overwrite(*req.DeltaDeg)
	h.Broadcaster.BroadcastMsg(fmt.Sprintf("Setpoint delta %+.2f°", *req.DeltaDeg))
	writeAccepted(w, "delta_deg", *req.DeltaDeg)
}

// HandleOrientation handles POST /orientation: it injects a current-orientation sample.
func (h *Handlers) HandleOrientation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req OrientationRequest
	if err := decodeBody(w, r, &req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.HeadingDeg == nil {
		http.Error(w, "heading_deg is required", http.StatusBadRequest)
		return
	}
	if err := ValidateHeading(*req.HeadingDeg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if h.current == nil {
		http.Error(w, "orientation input not configured", http.StatusServiceUnavailable)
		return
	}

	h.current.Overwrite(*req.HeadingDeg)
	writeAccepted(w, "heading_deg", *req.HeadingDeg)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeAccepted(w http.ResponseWriter, key string, v float64) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{"status": "accepted", key: v})
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
