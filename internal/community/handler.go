package community

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/mastermarket/mastermarket/internal/catalog"
	"github.com/mastermarket/mastermarket/internal/photos"
	"github.com/mastermarket/mastermarket/internal/places"
	"github.com/mastermarket/mastermarket/internal/platform/httpx"
	"github.com/mastermarket/mastermarket/internal/shared"
)

const (
	voteRateLimit  = 30
	voteRateWindow = time.Minute
)

// BarcodeLookup finds catalog products by barcode.
type BarcodeLookup interface {
	FindByBarcode(ctx context.Context, barcode string) (catalog.Product, error)
}

// PhotoUploader stores price-tag photos.
type PhotoUploader interface {
	Upload(ctx context.Context, data []byte) (photos.Uploaded, error)
}

// PriceExtractor reads a price off a photo.
type PriceExtractor interface {
	Extract(ctx context.Context, contentType string, data []byte) (photos.Extraction, error)
}

// StoreFinder lists stores near a coordinate.
type StoreFinder interface {
	Nearby(ctx context.Context, q places.Query) (places.Result, error)
}

// HandlerDeps groups the collaborators of Handler.
type HandlerDeps struct {
	Logger    *slog.Logger
	Service   *Service
	Barcodes  BarcodeLookup
	Photos    PhotoUploader
	Extractor PriceExtractor
	Stores    StoreFinder
	// Require rejects anonymous requests; Optional attaches an identity when present.
	Require  func(http.Handler) http.Handler
	Optional func(http.Handler) http.Handler
}

// Handler wires HTTP endpoints for the community ledger.
type Handler struct {
	deps      HandlerDeps
	validator *validator.Validate
}

// NewHandler constructs community handler.
func NewHandler(deps HandlerDeps) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	passthrough := func(next http.Handler) http.Handler { return next }
	if deps.Require == nil {
		deps.Require = passthrough
	}
	if deps.Optional == nil {
		deps.Optional = passthrough
	}
	return &Handler{deps: deps, validator: validator.New()}
}

// MountRoutes registers community routes.
func (h *Handler) MountRoutes(r chi.Router) {
	voteLimiter := httprate.Limit(voteRateLimit, voteRateWindow,
		httprate.WithKeyFuncs(voterKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests), "vote rate limit exceeded")
		}),
	)
	r.Get("/trending", h.handleTrending)
	r.Get("/barcode/{barcode}", h.handleBarcode)
	r.Get("/stores/nearby", h.handleNearbyStores)
	r.Get("/stores/popular", h.handlePopularStores)
	r.Group(func(r chi.Router) {
		r.Use(h.deps.Optional)
		r.Get("/products/{id}/prices", h.handleProductPrices)
		r.Get("/products/{id}/recent", h.handleRecentPrices)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.deps.Require)
		r.Post("/prices", h.handleSubmit)
		r.Post("/prices/extract", h.handleExtract)
		r.Post("/prices/photo", h.handlePhoto)
		r.Group(func(r chi.Router) {
			r.Use(voteLimiter)
			r.Post("/votes", h.handleVote)
			r.Delete("/votes/{observationID}", h.handleRemoveVote)
		})
	})
}

func voterKey(r *http.Request) (string, error) {
	if id := shared.UserIDFromContext(r.Context()); id > 0 {
		return "voter:" + strconv.FormatInt(id, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

type submitRequest struct {
	ProductID     int64           `json:"product_id" validate:"required,gt=0"`
	StoreName     string          `json:"store_name" validate:"required,max=255"`
	StoreLocation string          `json:"store_location" validate:"max=255"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency" validate:"omitempty,len=3,alpha"`
	PhotoURL      string          `json:"price_photo_url" validate:"omitempty,url"`
}

type voteRequest struct {
	ObservationID int64  `json:"price_observation_id"`
	PriceID       int64  `json:"price_id"`
	VoteType      string `json:"vote_type" validate:"required"`
}

type voteResponse struct {
	Success bool `json:"success"`
	VoteResult
}

type barcodeResponse struct {
	Found   bool             `json:"found"`
	Product *catalog.Product `json:"product"`
	Message *string          `json:"message"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	obs, err := h.deps.Service.Submit(r.Context(), SubmitInput{
		ProductID:      req.ProductID,
		SubmitterID:    shared.UserIDFromContext(r.Context()),
		StoreName:      req.StoreName,
		StoreLocation:  req.StoreLocation,
		Price:          req.Price,
		Currency:       req.Currency,
		PhotoURL:       req.PhotoURL,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.fail(w, "submit price", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, obs)
}

func (h *Handler) handleVote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	id := req.ObservationID
	if id == 0 {
		id = req.PriceID
	}
	if id <= 0 {
		httpx.RespondError(w, fmt.Errorf("price_observation_id required: %w", shared.ErrInvalidArgument))
		return
	}
	result, err := h.deps.Service.CastVote(r.Context(), id, shared.UserIDFromContext(r.Context()), req.VoteType)
	if err != nil {
		h.fail(w, "cast vote", err)
		return
	}
	httpx.JSON(w, http.StatusOK, voteResponse{Success: true, VoteResult: result})
}

func (h *Handler) handleRemoveVote(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(chi.URLParam(r, "observationID"), "observation id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.deps.Service.RemoveVote(r.Context(), id, shared.UserIDFromContext(r.Context()))
	if err != nil {
		h.fail(w, "remove vote", err)
		return
	}
	httpx.JSON(w, http.StatusOK, voteResponse{Success: true, VoteResult: result})
}

func (h *Handler) handleTrending(w http.ResponseWriter, r *http.Request) {
	limit, err := httpx.QueryInt(r, "limit", 0)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.deps.Service.Trending(r.Context(), TrendingFilter{Location: r.URL.Query().Get("location"), Limit: limit})
	if err != nil {
		h.fail(w, "trending prices", err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) handleProductPrices(w http.ResponseWriter, r *http.Request) {
	productID, err := httpx.PathInt64(chi.URLParam(r, "id"), "product id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	days, err := httpx.QueryInt(r, "days", defaultLookbackDays)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.deps.Service.ProductVotes(r.Context(), ProductVoteFilter{
		ProductID: productID,
		VoterID:   shared.UserIDFromContext(r.Context()),
		Location:  r.URL.Query().Get("location"),
		Days:      days,
	})
	if err != nil {
		h.fail(w, "product prices", err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) handleRecentPrices(w http.ResponseWriter, r *http.Request) {
	productID, err := httpx.PathInt64(chi.URLParam(r, "id"), "product id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit, err := httpx.QueryInt(r, "limit", defaultRecentLimit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.deps.Service.RecentWithChange(r.Context(), productID, shared.UserIDFromContext(r.Context()), limit)
	if err != nil {
		h.fail(w, "recent prices", err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) handleBarcode(w http.ResponseWriter, r *http.Request) {
	if h.deps.Barcodes == nil {
		httpx.RespondError(w, fmt.Errorf("barcode lookup: %w", shared.ErrUpstreamUnavailable))
		return
	}
	product, err := h.deps.Barcodes.FindByBarcode(r.Context(), chi.URLParam(r, "barcode"))
	if errors.Is(err, shared.ErrNotFound) {
		msg := "Product not found. You can add it manually."
		httpx.JSON(w, http.StatusOK, barcodeResponse{Found: false, Message: &msg})
		return
	}
	if err != nil {
		h.fail(w, "barcode lookup", err)
		return
	}
	httpx.JSON(w, http.StatusOK, barcodeResponse{Found: true, Product: &product})
}

func (h *Handler) handleNearbyStores(w http.ResponseWriter, r *http.Request) {
	if h.deps.Stores == nil {
		httpx.JSON(w, http.StatusOK, places.Result{Source: places.SourceMock, Stores: places.MockStores()})
		return
	}
	lat, err := httpx.QueryFloat(r, "lat")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	lng, err := httpx.QueryFloat(r, "lng")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	radius, err := httpx.QueryInt(r, "radius", 0)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.deps.Stores.Nearby(r.Context(), places.Query{Latitude: lat, Longitude: lng, RadiusMeters: radius})
	if err != nil {
		h.fail(w, "nearby stores", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handlePopularStores(w http.ResponseWriter, r *http.Request) {
	limit, err := httpx.QueryInt(r, "limit", defaultPopularLimit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	stores, err := h.deps.Service.PopularStores(r.Context(), limit)
	if err != nil {
		h.fail(w, "popular stores", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stores)
}

func (h *Handler) handleExtract(w http.ResponseWriter, r *http.Request) {
	if h.deps.Extractor == nil {
		httpx.RespondError(w, fmt.Errorf("price extraction: %w", shared.ErrUpstreamUnavailable))
		return
	}
	contentType, data, err := readUpload(w, r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.deps.Extractor.Extract(r.Context(), contentType, data)
	if err != nil {
		h.fail(w, "extract price", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handlePhoto(w http.ResponseWriter, r *http.Request) {
	if h.deps.Photos == nil {
		httpx.RespondError(w, fmt.Errorf("photo storage: %w", shared.ErrUpstreamUnavailable))
		return
	}
	_, data, err := readUpload(w, r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	uploaded, err := h.deps.Photos.Upload(r.Context(), data)
	if err != nil {
		h.fail(w, "upload photo", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, uploaded)
}

// readUpload reads the multipart "file" field, bounded by the photo size cap.
func readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, photos.MaxUploadBytes+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, fmt.Errorf("file field required: %v: %w", err, shared.ErrInvalidArgument)
	}
	defer func() {
		_ = file.Close()
	}()
	data, err := io.ReadAll(io.LimitReader(file, photos.MaxUploadBytes+1))
	if err != nil {
		return "", nil, fmt.Errorf("read upload: %v: %w", err, shared.ErrInvalidArgument)
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return strings.TrimSpace(contentType), data, nil
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if httpx.StatusOf(err) == http.StatusInternalServerError {
		h.deps.Logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
