package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/maykinmedia/gemma-zaken-demo/internal/config"
	"github.com/maykinmedia/gemma-zaken-demo/internal/registry"
	"github.com/maykinmedia/gemma-zaken-demo/internal/zds"
)

// InitialStatusText is the explanation of the status a new report starts in.
const InitialStatusText = "Melding ontvangen"

// meldingRequest is a public space report. The location is optional.
type meldingRequest struct {
	Toelichting string   `json:"toelichting"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
}

// handleCreateMelding registers a report as a case of the configured case
// type and gives it its initial status.
func (s *Server) handleCreateMelding(w http.ResponseWriter, r *http.Request) error {
	var req meldingRequest

	err := decodeBody(r, &req)
	if err != nil {
		return err
	}

	if req.Toelichting == "" {
		return fmt.Errorf("%w: toelichting", ErrMissingField)
	}

	settings := s.app.Settings()
	demo := settings.Demo

	ztc, err := s.app.Registry.Client(config.ServiceZTC, registry.ForUser(user(r)))
	if err != nil {
		return err
	}

	zaaktype, err := ztc.Retrieve(r.Context(), "zaaktype", zds.Params{
		"catalogus_uuid": demo.CatalogusUUID,
		"uuid":           demo.MORZaaktypeUUID,
	})
	if err != nil {
		return unknownCaseType(err, "zaaktype", demo.MORZaaktypeUUID)
	}

	statustype, err := ztc.Retrieve(r.Context(), "statustype", zds.Params{
		"catalogus_uuid": demo.CatalogusUUID,
		"zaaktype_uuid":  demo.MORZaaktypeUUID,
		"uuid":           demo.MORStatustypeNewUUID,
	})
	if err != nil {
		return unknownCaseType(err, "statustype", demo.MORStatustypeNewUUID)
	}

	data := map[string]interface{}{
		"zaaktype":         zaaktype.String("url"),
		"bronorganisatie":  demo.Bronorganisatie,
		"registratiedatum": s.now().Format(time.DateOnly),
		"toelichting":      req.Toelichting,
	}

	if req.Latitude != nil && req.Longitude != nil {
		data["zaakgeometrie"] = map[string]interface{}{
			"type":        "Point",
			"coordinates": []float64{*req.Longitude, *req.Latitude},
		}
	}

	zrc, err := s.zrc(r)
	if err != nil {
		return err
	}

	zaak, err := zrc.Create(r.Context(), "zaak", data, nil)
	if err != nil {
		return err
	}

	status, err := zrc.Create(r.Context(), "status", map[string]interface{}{
		"zaak":              zaak.String("url"),
		"statustype":        statustype.String("url"),
		"datumStatusGezet":  s.now().UTC().Format(time.RFC3339),
		"statustoelichting": InitialStatusText,
	}, nil)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"zaak":   zaak,
		"status": status,
	})

	return nil
}

// unknownCaseType reports a missing catalogue entry as a configuration
// problem rather than passing the 404 on.
func unknownCaseType(err error, resource, uuid string) error {
	if zds.IsNotFound(err) {
		return fmt.Errorf("%w: %s %s: %w", ErrUnknownCaseType, resource, uuid, err)
	}

	return err
}
