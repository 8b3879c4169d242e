package handlers

import (
	"net/http"

	"mandoob-dispatch-services/internal/geo"
	"mandoob-dispatch-services/pkg/response"
)

type deliveryQuoteRequest struct {
	DistanceKm  *float64 `json:"distanceKm"`
	StoreIDs    []int64  `json:"storeIds"`
	DeliveryLat *float64 `json:"deliveryLat"`
	DeliveryLng *float64 `json:"deliveryLng"`
}

// PublicDeliveryQuote prices a delivery before checkout. Callers can
// pass a raw distance, or store ids plus a delivery point to have the
// route planned and the inter-store spread validated in one call.
func (h *Handler) PublicDeliveryQuote(w http.ResponseWriter, r *http.Request) {
	var req deliveryQuoteRequest
	if err := decodeBody(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}

	if len(req.StoreIDs) == 0 {
		if req.DistanceKm == nil {
			response.Error(w, http.StatusBadRequest, "DISTANCE_REQUIRED", "Either distanceKm or storeIds is required")
			return
		}
		fee, derr := h.Geofence.QuoteDeliveryFee(*req.DistanceKm)
		if derr != nil {
			writeDomainError(w, derr)
			return
		}
		response.Success(w, map[string]any{"deliveryFee": fee, "distanceKm": *req.DistanceKm})
		return
	}

	if req.DeliveryLat == nil || req.DeliveryLng == nil {
		response.Error(w, http.StatusBadRequest, "DELIVERY_POINT_REQUIRED", "Delivery coordinates are required for store quotes")
		return
	}
	end := geo.Point{Lat: *req.DeliveryLat, Lng: *req.DeliveryLng}
	if !geo.ValidCoordinate(end.Lat, end.Lng) {
		response.Error(w, http.StatusBadRequest, "INVALID_COORDINATES", "Coordinates out of range")
		return
	}

	spread, err := h.Geofence.ValidateStoresDistance(r.Context(), req.StoreIDs)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "QUOTE_FAILED", "Could not validate store distances")
		return
	}
	if !spread.Valid {
		response.ErrorDetails(w, http.StatusBadRequest, "stores_distance_exceeded", "Stores are too far apart", map[string]any{
			"maxDistanceKm": spread.MaxDistanceKm,
			"limitKm":       h.Config.StoresMaxSpreadKm,
			"storeAId":      spread.StoreAID,
			"storeBId":      spread.StoreBID,
		})
		return
	}

	route, err := h.Geofence.SortStoresByDistance(r.Context(), req.StoreIDs, end, end)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "QUOTE_FAILED", "Could not plan route")
		return
	}

	fee, derr := h.Geofence.QuoteDeliveryFee(route.TotalEstimateKm)
	if derr != nil {
		writeDomainError(w, derr)
		return
	}

	response.Success(w, map[string]any{
		"deliveryFee": fee,
		"distanceKm":  route.TotalEstimateKm,
		"route":       route,
	})
}
