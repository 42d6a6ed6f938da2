package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"auction-lifecycle-service/internal/domain/shared"
	"auction-lifecycle-service/internal/ports/inbound"

	"github.com/rs/zerolog"
)

// API serves the REST surface the front end calls around auction admission
// and bidding
type API struct {
	auctionService inbound.AuctionService
	bidService     inbound.BidService
	logger         zerolog.Logger
}

type APIParams struct {
	AuctionService inbound.AuctionService
	BidService     inbound.BidService
	Logger         zerolog.Logger
}

func NewAPI(params APIParams) *API {
	return &API{
		auctionService: params.AuctionService,
		bidService:     params.BidService,
		logger:         params.Logger.With().Str("component", "http_api").Logger(),
	}
}

// Register mounts the routes on mux
func (api *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /auctions/{id}", api.getAuction)
	mux.HandleFunc("POST /auctions/{id}/schedule", api.scheduleAuction)
	mux.HandleFunc("DELETE /auctions/{id}", api.deleteAuction)
	mux.HandleFunc("GET /auctions/{id}/bids", api.listBids)
	mux.HandleFunc("POST /auctions/{id}/bids", api.placeBid)
}

type placeBidBody struct {
	UserID string  `json:"userId"`
	Amount float64 `json:"amount"`
}

type errorBody struct {
	Error          string   `json:"error"`
	CurrentHighest *float64 `json:"currentHighest,omitempty"`
}

func (api *API) getAuction(w http.ResponseWriter, r *http.Request) {
	id, ok := auctionID(w, r)
	if !ok {
		return
	}

	a, err := api.auctionService.GetAuction(r.Context(), id)
	if err != nil {
		api.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, auctionData(a))
}

// scheduleAuction is called once the auction row has been persisted
func (api *API) scheduleAuction(w http.ResponseWriter, r *http.Request) {
	id, ok := auctionID(w, r)
	if !ok {
		return
	}

	if err := api.auctionService.OnAuctionCreated(r.Context(), id); err != nil {
		api.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"auctionId": id, "status": "scheduled"})
}

func (api *API) deleteAuction(w http.ResponseWriter, r *http.Request) {
	id, ok := auctionID(w, r)
	if !ok {
		return
	}

	a, err := api.auctionService.DeleteAuction(r.Context(), id)
	if err != nil {
		api.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, auctionData(a))
}

func (api *API) listBids(w http.ResponseWriter, r *http.Request) {
	id, ok := auctionID(w, r)
	if !ok {
		return
	}

	bids, err := api.bidService.GetBids(r.Context(), id)
	if err != nil {
		api.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bids)
}

func (api *API) placeBid(w http.ResponseWriter, r *http.Request) {
	id, ok := auctionID(w, r)
	if !ok {
		return
	}

	var body placeBidBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	placed, err := api.bidService.PlaceBid(r.Context(), inbound.PlaceBidRequest{
		AuctionID: id,
		UserID:    strings.TrimSpace(body.UserID),
		Amount:    body.Amount,
	})
	if err != nil {
		api.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, placed)
}

func auctionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: shared.ErrAuctionIDRequired.Error()})
		return 0, false
	}
	return id, true
}

// statusFor maps a domain error onto an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrAuctionNotFound), errors.Is(err, shared.ErrNoBidsFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrBidTooLow),
		errors.Is(err, shared.ErrAuctionNotAcceptingBids),
		errors.Is(err, shared.ErrAuctionHasBids),
		errors.Is(err, shared.ErrStaleEvent):
		return http.StatusConflict
	case errors.Is(err, shared.ErrInvalidBid),
		errors.Is(err, shared.ErrInvalidAmount),
		errors.Is(err, shared.ErrInvalidSchedule):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrBrokerUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (api *API) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}
	if highest, ok := shared.CurrentHighest(err); ok {
		body.CurrentHighest = &highest
	}
	if status == http.StatusInternalServerError {
		api.logger.Error().Err(err).Msg("Request failed")
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
