package web

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/maykinmedia/gemma-zaken-demo/internal/config"
	"github.com/maykinmedia/gemma-zaken-demo/internal/constants"
	"github.com/maykinmedia/gemma-zaken-demo/internal/registry"
	"github.com/maykinmedia/gemma-zaken-demo/internal/zds"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) error {
	writeJSON(w, http.StatusOK, s.app.Checker.CheckAll(r.Context(), s.app.Targets()))

	return nil
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) error {
	groups, err := s.app.CheckConfig(r.Context())
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, groups)

	return nil
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) error {
	entries := s.app.Log.Entries()
	if service := r.URL.Query().Get("service"); service != "" {
		entries = s.app.Log.ForService(service)
	}

	writeJSON(w, http.StatusOK, entries)

	return nil
}

func (s *Server) handleClearLog(w http.ResponseWriter, _ *http.Request) error {
	s.app.Log.Clear()
	w.WriteHeader(http.StatusNoContent)

	return nil
}

func (s *Server) zrc(r *http.Request) (*zds.Client, error) {
	return s.app.Registry.Client(config.ServiceZRC, registry.ForUser(user(r)))
}

func (s *Server) handleListZaken(w http.ResponseWriter, r *http.Request) error {
	client, err := s.zrc(r)
	if err != nil {
		return err
	}

	var opts []zds.CallOption
	if len(r.URL.Query()) > 0 {
		opts = append(opts, zds.WithQuery(r.URL.Query()))
	}

	zaken, err := client.ListAll(r.Context(), "zaak", nil, opts...)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(zaken),
		"results": zaken,
	})

	return nil
}

func (s *Server) handleZaak(w http.ResponseWriter, r *http.Request) error {
	client, err := s.zrc(r)
	if err != nil {
		return err
	}

	zaak, err := client.Retrieve(r.Context(), "zaak", zds.Params{"uuid": r.PathValue("uuid")})
	if err != nil {
		return err
	}

	query := map[string][]string{"zaak": {zaak.String("url")}}

	statussen, err := client.ListAll(r.Context(), "status", nil, zds.WithQuery(query))
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"zaak":      zaak,
		"statussen": statussen,
	})

	return nil
}

func (s *Server) handleCreateZaak(w http.ResponseWriter, r *http.Request) error {
	data := map[string]interface{}{}

	err := decodeBody(r, &data)
	if err != nil {
		return err
	}

	if _, ok := data["bronorganisatie"]; !ok {
		data["bronorganisatie"] = s.app.Settings().Demo.Bronorganisatie
	}

	if _, ok := data["registratiedatum"]; !ok {
		data["registratiedatum"] = s.now().Format(time.DateOnly)
	}

	client, err := s.zrc(r)
	if err != nil {
		return err
	}

	zaak, err := client.Create(r.Context(), "zaak", data, nil)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusCreated, zaak)

	return nil
}

type statusRequest struct {
	Statustype        string `json:"statustype"`
	Statustoelichting string `json:"statustoelichting"`
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) error {
	var req statusRequest

	err := decodeBody(r, &req)
	if err != nil {
		return err
	}

	if req.Statustype == "" {
		return fmt.Errorf("%w: statustype", ErrMissingField)
	}

	client, err := s.zrc(r)
	if err != nil {
		return err
	}

	zaak, err := client.Retrieve(r.Context(), "zaak", zds.Params{"uuid": r.PathValue("uuid")})
	if err != nil {
		return err
	}

	created, err := client.Create(r.Context(), "status", map[string]interface{}{
		"zaak":              zaak.String("url"),
		"statustype":        req.Statustype,
		"datumStatusGezet":  s.now().UTC().Format(time.RFC3339),
		"statustoelichting": req.Statustoelichting,
	}, nil)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusCreated, created)

	return nil
}

func decodeBody(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, constants.MaxCallbackBody))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}

	err = json.Unmarshal(body, v)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}

	return nil
}
