package handler

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Lester-Fong/weather-forecaster-agent/internal/geo"
	"github.com/Lester-Fong/weather-forecaster-agent/internal/model"
	"github.com/Lester-Fong/weather-forecaster-agent/internal/query"
	"github.com/Lester-Fong/weather-forecaster-agent/internal/storage"
	"github.com/Lester-Fong/weather-forecaster-agent/internal/weather"
)

const maxQueryLength = 500

type WeatherHandler struct {
	Queries   *query.Service
	Locations *geo.Resolver
	Store     *storage.Store
	Log       *zap.SugaredLogger
}

func NewWeatherHandler(queries *query.Service, locations *geo.Resolver, store *storage.Store, log *zap.SugaredLogger) *WeatherHandler {
	return &WeatherHandler{
		Queries:   queries,
		Locations: locations,
		Store:     store,
		Log:       log,
	}
}

func (h *WeatherHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.Log.Errorw("could not encode json", "error", err)
	}
}

func (h *WeatherHandler) writeError(w http.ResponseWriter, statusCode int, errMsg string) {
	h.writeJSONResponse(w, statusCode, model.Response{
		Error:   &errMsg,
		Message: "Error",
	})
}

type queryRequest struct {
	Query      string `json:"query"`
	SessionID  string `json:"session_id"`
	LocationID *int64 `json:"location_id"`
}

type queryResponse struct {
	Message        string         `json:"message"`
	SessionID      string         `json:"session_id"`
	ConversationID int64          `json:"conversation_id"`
	Status         string         `json:"status"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// HandleQuery accepts a natural-language weather question, runs it through
// the pipeline and records both sides of the exchange in the conversation.
func (h *WeatherHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		h.writeError(w, http.StatusUnprocessableEntity, "The query field is required")
		return
	}
	if len(req.Query) > maxQueryLength {
		h.writeError(w, http.StatusUnprocessableEntity, "The query may not be longer than 500 characters")
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	ctx := r.Context()
	conv, err := h.Store.FirstOrCreateConversation(ctx, sessionID, clientIP(r), r.UserAgent())
	if err != nil {
		h.Log.Errorw("conversation lookup failed", "session_id", sessionID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to start conversation")
		return
	}

	if err := h.Store.AppendMessage(ctx, &model.Message{
		ConversationID: conv.ID,
		Content:        req.Query,
		IsUser:         true,
	}); err != nil {
		h.Log.Errorw("could not record user message", "error", err)
	}

	result := h.Queries.ProcessQuery(ctx, req.Query, conv, req.LocationID)

	assistant := &model.Message{
		ConversationID: conv.ID,
		Content:        result.Message,
		IsUser:         false,
		Metadata: map[string]any{
			"query_type": result.QueryType,
			"date_info":  result.DateInfo,
			"status":     result.Status,
		},
	}
	if result.Location != nil {
		assistant.LocationID = &result.Location.ID
	}
	if err := h.Store.AppendMessage(ctx, assistant); err != nil {
		h.Log.Errorw("could not record assistant message", "error", err)
	}

	h.writeJSONResponse(w, http.StatusOK, queryResponse{
		Message:        result.Message,
		SessionID:      sessionID,
		ConversationID: conv.ID,
		Status:         result.Status,
		Metadata:       responseMetadata(result),
	})
}

// responseMetadata assembles the compact summary block clients render next
// to the answer text.
func responseMetadata(result *model.QueryResult) map[string]any {
	if result.Status != model.StatusSuccess {
		return nil
	}
	meta := map[string]any{
		"query_type": result.QueryType,
	}
	if result.Location != nil {
		meta["location"] = result.Location.Label()
	}
	if result.DateInfo != nil {
		if result.DateInfo.Type == model.DateDefault {
			meta["date"] = "Today"
		} else {
			meta["date"] = result.DateInfo.Formatted
		}
	}
	if cur, ok := weather.ParseCurrent(result.Data); ok {
		meta["weather"] = map[string]any{
			"temperature": int(math.Round(cur.Temperature)),
			"condition":   cur.Condition,
		}
	}
	return meta
}

type detectLocationRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// HandleDetectLocation resolves browser coordinates into a stored location
// record. Reverse geocoding never fails outright, so errors here are limited
// to bad input and storage problems.
func (h *WeatherHandler) HandleDetectLocation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req detectLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Latitude < -90 || req.Latitude > 90 || req.Longitude < -180 || req.Longitude > 180 {
		h.writeError(w, http.StatusUnprocessableEntity, "Coordinates out of range")
		return
	}

	ctx := r.Context()
	candidates := h.Locations.ReverseGeocode(ctx, req.Latitude, req.Longitude)
	loc, err := h.Locations.FindOrCreate(ctx, candidates[0])
	if err != nil {
		h.Log.Errorw("could not save detected location", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to save location")
		return
	}

	message := "Success"
	if loc.Name == "Your Location" {
		// Synthetic fallback: both geocoders were unreachable.
		message = "Warning"
	}
	h.writeJSONResponse(w, http.StatusOK, model.Response{
		Data:    loc,
		Message: message,
	})
}

type conversationResponse struct {
	SessionID string          `json:"session_id"`
	Messages  []model.Message `json:"messages"`
}

// HandleConversation returns the message history for a session in
// chronological order.
func (h *WeatherHandler) HandleConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		h.writeError(w, http.StatusBadRequest, "Missing 'session_id' query parameter")
		return
	}

	ctx := r.Context()
	conv, err := h.Store.FindConversationBySession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Unknown sessions get an empty history, not an error.
			h.writeJSONResponse(w, http.StatusOK, model.Response{
				Data:    conversationResponse{SessionID: sessionID, Messages: []model.Message{}},
				Message: "Success",
			})
			return
		}
		h.Log.Errorw("conversation lookup failed", "session_id", sessionID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to load conversation")
		return
	}

	messages, err := h.Store.Messages(ctx, conv.ID)
	if err != nil {
		h.Log.Errorw("could not load messages", "conversation_id", conv.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to load conversation")
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}

	h.writeJSONResponse(w, http.StatusOK, model.Response{
		Data:    conversationResponse{SessionID: sessionID, Messages: messages},
		Message: "Success",
	})
}

// HandleHealth reports liveness.
func (h *WeatherHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func clientIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return host
}
