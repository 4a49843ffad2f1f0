package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/couchcryptid/glacier-risk-map/internal/domain"
	"github.com/couchcryptid/glacier-risk-map/internal/loader"
	"github.com/couchcryptid/glacier-risk-map/internal/riskmap"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Labels such as "High (8-10)" contain spaces, so oneof cannot express them.
	_ = v.RegisterValidation("riskband", func(fl validator.FieldLevel) bool {
		_, err := domain.ParseRiskBand(fl.Field().String())
		return err == nil
	})
	return v
}

type filtersRequest struct {
	RiskBand    *string `json:"risk_band" validate:"omitempty,riskband"`
	Region      *string `json:"region" validate:"omitempty,max=128"`
	Heatmap     *bool   `json:"heatmap"`
	AutoRefresh *bool   `json:"auto_refresh"`
}

type clickRequest struct {
	Lat *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lng *float64 `json:"lng" validate:"required,gte=-180,lte=180"`
}

type viewRequest struct {
	South *float64 `json:"south" validate:"required,gte=-90,lte=90"`
	West  *float64 `json:"west" validate:"required,gte=-180,lte=180"`
	North *float64 `json:"north" validate:"required,gte=-90,lte=90"`
	East  *float64 `json:"east" validate:"required,gte=-180,lte=180"`
}

// decode reads a JSON body into dst and validates it.
func decode(r *http.Request, dst any) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return validate.Struct(dst)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.view.Snapshot(r.Context()))
}

func (s *Server) handleFilters(w http.ResponseWriter, r *http.Request) {
	var req filtersRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.RiskBand != nil {
		band, _ := domain.ParseRiskBand(*req.RiskBand)
		s.view.SetRiskBand(band)
	}
	if req.Region != nil {
		s.view.SetRegion(*req.Region)
	}
	if req.Heatmap != nil {
		s.view.SetHeatmap(*req.Heatmap)
	}
	if req.AutoRefresh != nil {
		s.view.SetAutoRefresh(*req.AutoRefresh)
	}
	writeJSON(w, http.StatusOK, s.view.Snapshot(r.Context()))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	err := s.view.Refresh(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, s.view.Snapshot(r.Context()))
	case errors.Is(err, riskmap.ErrStaleLoad):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, riskmap.ErrClosed), errors.Is(err, loader.ErrCircuitOpen):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func (s *Server) handleMapReady(w http.ResponseWriter, _ *http.Request) {
	activated := s.view.MapReady(s.surface)
	writeJSON(w, http.StatusOK, map[string]any{"activated": activated})
}

func (s *Server) handleMapLayers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.surface.Layers())
}

func (s *Server) handleMapClick(w http.ResponseWriter, r *http.Request) {
	var req clickRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.surface.Click(domain.LatLng{Lat: *req.Lat, Lng: *req.Lng})

	snap := s.view.Snapshot(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"selected": snap.Selected})
}

func (s *Server) handleMapView(w http.ResponseWriter, r *http.Request) {
	var req viewRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if *req.South > *req.North {
		writeError(w, http.StatusBadRequest, "south must not exceed north")
		return
	}
	b := domain.Bounds{South: *req.South, West: *req.West, North: *req.North, East: *req.East}
	s.surface.SetView(b)
	w.WriteHeader(http.StatusNoContent)
}
