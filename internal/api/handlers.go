package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/digkill/TGContentBot/internal/llm"
	"github.com/digkill/TGContentBot/internal/scraper"
	"github.com/digkill/TGContentBot/internal/service"
)

const maxBodyBytes = 1 << 20

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

type errorBody struct {
	Error   string            `json:"error"`
	Details any               `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type analyzeRequest struct {
	Username string `json:"username" validate:"required,max=128"`
}

type planRequest struct {
	ChannelName string   `json:"channel_name" validate:"required,max=128"`
	PeriodDays  int      `json:"period_days" validate:"required,min=1,max=30"`
	Themes      []string `json:"themes" validate:"required,min=1,max=20,dive,max=200"`
	Styles      []string `json:"styles" validate:"max=20,dive,max=200"`
}

type postRequest struct {
	IdeaID      string `json:"idea_id" validate:"omitempty,uuid"`
	TopicIdea   string `json:"topic_idea" validate:"required_without=IdeaID,max=500"`
	FormatStyle string `json:"format_style" validate:"required_without=IdeaID,max=200"`
	ChannelName string `json:"channel_name" validate:"required,max=128"`
}

type broadcastRequest struct {
	Message string `json:"message" validate:"required,max=4096"`
}

type grantRequest struct {
	TelegramID int64 `json:"telegram_id" validate:"required,gt=0"`
	Days       int   `json:"days" validate:"required,min=1,max=366"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	res, err := s.deps.Analysis.Analyze(r.Context(), userIDFrom(r.Context()), req.Username)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, statusFor(res.LimitReached), res)
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	channel := strings.TrimSpace(r.URL.Query().Get("channel_name"))
	if channel == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "channel_name is required"})
		return
	}
	analysis, err := s.deps.Analysis.Get(r.Context(), userIDFrom(r.Context()), channel)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if analysis == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Анализ канала не найден"})
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (s *Server) handleGeneratePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	res, err := s.deps.Plans.Generate(r.Context(), userIDFrom(r.Context()), service.PlanRequest{
		Channel: req.ChannelName,
		Days:    req.PeriodDays,
		Themes:  req.Themes,
		Styles:  req.Styles,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, statusFor(res.LimitReached), res)
}

func (s *Server) handleListIdeas(w http.ResponseWriter, r *http.Request) {
	ideas, err := s.deps.Plans.List(r.Context(), userIDFrom(r.Context()), r.URL.Query().Get("channel_name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ideas)
}

func (s *Server) handleDeleteIdea(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Plans.Delete(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGeneratePost(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	res, err := s.deps.Posts.Generate(r.Context(), userIDFrom(r.Context()), service.PostRequest{
		IdeaID:  req.IdeaID,
		Topic:   req.TopicIdea,
		Style:   req.FormatStyle,
		Channel: req.ChannelName,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, statusFor(res.LimitReached), res)
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.deps.Posts.List(r.Context(), userIDFrom(r.Context()), r.URL.Query().Get("channel_name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

func (s *Server) handleSubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Ledger.Status(r.Context(), userIDFrom(r.Context())))
}

// handleSubscriptionInvoice sends the Stars invoice into the user's private chat.
func (s *Server) handleSubscriptionInvoice(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	if err := s.deps.Payments.SendInvoice(r.Context(), s.deps.Bot, userID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sent": true, "message": "Счёт отправлен в чат с ботом"})
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	report, err := s.deps.Broadcaster.Broadcast(r.Context(), req.Message)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleGrantSubscription(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	paymentID := "admin:" + middleware.GetReqID(r.Context())
	sub, err := s.deps.Ledger.CreateSubscription(r.Context(), req.TelegramID, req.Days, paymentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.Info("subscription granted by admin", "telegram_id", req.TelegramID, "days", req.Days)
	writeJSON(w, http.StatusCreated, sub)
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return false
	}
	if err := getValidator().Struct(dst); err != nil {
		fields := map[string]string{}
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			for _, fe := range ve {
				fields[strings.ToLower(fe.Field())] = fe.Tag()
			}
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation failed", Fields: fields})
		return false
	}
	return true
}

func statusFor(limitReached bool) int {
	if limitReached {
		return http.StatusTooManyRequests
	}
	return http.StatusOK
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var cascadeErr *llm.CascadeError
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, scraper.ErrInvalidChannel):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, service.ErrIdeaNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Идея не найдена"})
	case errors.Is(err, scraper.ErrChannelNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Канал не найден или закрыт"})
	case errors.Is(err, service.ErrNoPosts):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "В канале нет текстовых постов для анализа"})
	case errors.As(err, &cascadeErr):
		s.log.Error("generation failed", "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusBadGateway, errorBody{
			Error:   "Сервисы генерации сейчас недоступны, попробуйте позже",
			Details: cascadeErr.Messages(),
		})
	default:
		s.log.Error("api handler error", "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error", Details: fmt.Sprint(err)})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
