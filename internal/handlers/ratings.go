package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tarodan/api/internal/platform/auth"
	"github.com/tarodan/api/internal/platform/httpx"
	"github.com/tarodan/api/internal/services"
)

const (
	defaultRatingPageSize = 20
	maxRatingPageSize     = 100
	maxRatingBodySize     = 8 * 1024

	ratingSubmitLimit  = 30
	ratingSubmitWindow = time.Minute
)

type createUserRatingRequest struct {
	ReceiverID string `json:"receiver_id"`
	OrderID    string `json:"order_id"`
	TradeID    string `json:"trade_id"`
	Score      int    `json:"score"`
	Comment    string `json:"comment"`
}

type createProductRatingRequest struct {
	ProductID string `json:"product_id"`
	OrderID   string `json:"order_id"`
	Score     int    `json:"score"`
	Comment   string `json:"comment"`
}

// RatingHandlers exposes rating submission and read endpoints.
type RatingHandlers struct {
	authn   *auth.Authenticator
	ratings services.RatingService
	limiter rateLimiter
}

// NewRatingHandlers constructs a rating handler set with a per-user submission throttle.
func NewRatingHandlers(authn *auth.Authenticator, ratings services.RatingService) *RatingHandlers {
	return &RatingHandlers{
		authn:   authn,
		ratings: ratings,
		limiter: newSimpleRateLimiter(ratingSubmitLimit, ratingSubmitWindow, nil),
	}
}

// Routes registers the rating endpoints at the API root, since submissions and
// reads hang off different resource prefixes.
func (h *RatingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	route := r
	if h.authn != nil {
		route = route.With(h.authn.RequireFirebaseAuth())
	}
	route.Post("/ratings/users", h.createUserRating)
	route.Post("/ratings/products", h.createProductRating)
	route.Get("/users/{userID}/ratings", h.listUserRatings)
	route.Get("/products/{productID}/ratings", h.listProductRatings)
}

func (h *RatingHandlers) createUserRating(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireService(ctx, w)
	if !ok {
		return
	}
	if !h.allow(ctx, w, identity) {
		return
	}

	var req createUserRatingRequest
	if !decodeRatingBody(ctx, w, r, &req) {
		return
	}

	rating, err := h.ratings.CreateUserRating(ctx, services.CreateUserRatingCommand{
		GiverID:    strings.TrimSpace(identity.UID),
		ReceiverID: strings.TrimSpace(req.ReceiverID),
		OrderID:    strings.TrimSpace(req.OrderID),
		TradeID:    strings.TrimSpace(req.TradeID),
		Score:      req.Score,
		Comment:    strings.TrimSpace(req.Comment),
	})
	if err != nil {
		writeRatingError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, ratingResponse{Rating: buildRatingPayload(rating)})
}

func (h *RatingHandlers) createProductRating(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireService(ctx, w)
	if !ok {
		return
	}
	if !h.allow(ctx, w, identity) {
		return
	}

	var req createProductRatingRequest
	if !decodeRatingBody(ctx, w, r, &req) {
		return
	}

	rating, err := h.ratings.CreateProductRating(ctx, services.CreateProductRatingCommand{
		GiverID:   strings.TrimSpace(identity.UID),
		ProductID: strings.TrimSpace(req.ProductID),
		OrderID:   strings.TrimSpace(req.OrderID),
		Score:     req.Score,
		Comment:   strings.TrimSpace(req.Comment),
	})
	if err != nil {
		writeRatingError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, ratingResponse{Rating: buildRatingPayload(rating)})
}

func (h *RatingHandlers) listUserRatings(w http.ResponseWriter, r *http.Request) {
	h.listRatings(w, r, "userID", h.ratings.ListUserRatings)
}

func (h *RatingHandlers) listProductRatings(w http.ResponseWriter, r *http.Request) {
	h.listRatings(w, r, "productID", h.ratings.ListProductRatings)
}

func (h *RatingHandlers) listRatings(w http.ResponseWriter, r *http.Request, param string, list func(context.Context, services.ListRatingsCommand) (services.RatingPage, error)) {
	ctx := r.Context()
	if _, ok := h.requireService(ctx, w); !ok {
		return
	}

	subjectID := strings.TrimSpace(chi.URLParam(r, param))
	if subjectID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "subject id is required", http.StatusBadRequest))
		return
	}

	pagination, err := parsePagination(r.URL.Query(), defaultRatingPageSize, maxRatingPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := list(ctx, services.ListRatingsCommand{
		SubjectID:  subjectID,
		Pagination: pagination,
	})
	if err != nil {
		writeRatingError(ctx, w, err)
		return
	}

	items := make([]ratingPayload, 0, len(page.Page.Items))
	for _, rating := range page.Page.Items {
		items = append(items, buildRatingPayload(rating))
	}
	writeJSONResponse(w, http.StatusOK, ratingListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.Page.NextPageToken),
		Summary: ratingSummaryPayload{
			Count:   page.Summary.Count,
			Average: page.Summary.Average,
		},
	})
}

func (h *RatingHandlers) requireService(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	if h.ratings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("rating_service_unavailable", "rating service unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func (h *RatingHandlers) allow(ctx context.Context, w http.ResponseWriter, identity *auth.Identity) bool {
	if h.limiter == nil {
		return true
	}
	if !h.limiter.Allow(strings.TrimSpace(identity.UID)) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many rating submissions, slow down", http.StatusTooManyRequests))
		return false
	}
	return true
}

func decodeRatingBody(ctx context.Context, w http.ResponseWriter, r *http.Request, target any) bool {
	body, err := readLimitedBody(r, maxRatingBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		case errors.Is(err, errEmptyBody):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}
	if err := json.Unmarshal(body, target); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return false
	}
	return true
}

type ratingListResponse struct {
	Items         []ratingPayload      `json:"items"`
	NextPageToken string               `json:"next_page_token,omitempty"`
	Summary       ratingSummaryPayload `json:"summary"`
}

type ratingResponse struct {
	Rating ratingPayload `json:"rating"`
}

type ratingPayload struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	GiverID    string `json:"giver_id"`
	ReceiverID string `json:"receiver_id,omitempty"`
	ProductID  string `json:"product_id,omitempty"`
	OrderID    string `json:"order_id,omitempty"`
	TradeID    string `json:"trade_id,omitempty"`
	Score      int    `json:"score"`
	Comment    string `json:"comment,omitempty"`
	CreatedAt  string `json:"created_at"`
}

type ratingSummaryPayload struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
}

func buildRatingPayload(rating services.Rating) ratingPayload {
	return ratingPayload{
		ID:         strings.TrimSpace(rating.ID),
		Kind:       strings.TrimSpace(string(rating.Kind)),
		GiverID:    strings.TrimSpace(rating.GiverID),
		ReceiverID: strings.TrimSpace(rating.ReceiverID),
		ProductID:  strings.TrimSpace(rating.ProductID),
		OrderID:    strings.TrimSpace(rating.OrderID),
		TradeID:    strings.TrimSpace(rating.TradeID),
		Score:      rating.Score,
		Comment:    strings.TrimSpace(rating.Comment),
		CreatedAt:  formatTime(rating.CreatedAt),
	}
}

func writeRatingError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrRatingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrRatingUnauthorized):
		httpx.WriteError(ctx, w, httpx.NewError("rating_forbidden", "not a participant of the rated transaction", http.StatusForbidden))
	case errors.Is(err, services.ErrRatingNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("rating_not_found", "rating subject not found", http.StatusNotFound))
	case errors.Is(err, services.ErrRatingConflict):
		httpx.WriteError(ctx, w, httpx.NewError("rating_conflict", "rating already submitted", http.StatusConflict))
	case errors.Is(err, services.ErrRatingInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("rating_invalid_state", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("rating_error", "failed to process rating request", http.StatusInternalServerError))
	}
}
