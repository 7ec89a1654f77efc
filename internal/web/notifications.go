package web

import (
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/maykinmedia/gemma-zaken-demo/internal/constants"
	"github.com/maykinmedia/gemma-zaken-demo/internal/notify"
)

// handleNotification is the callback of the notification component. It
// accepts without authentication and answers 204 once the message is
// relayed.
func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, constants.MaxCallbackBody))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}

	notification, err := notify.Decode(body)
	if err != nil {
		return err
	}

	_, err = s.app.Notifications.Handle(r.Context(), notification)
	if err != nil {
		return err
	}

	w.WriteHeader(http.StatusNoContent)

	return nil
}

// handleStream relays published messages as server-sent events. The
// stream carries the messages for everyone plus those for the user named
// in the "user" query parameter.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)

		return nil
	}

	topics := []string{notify.TopicFor("")}
	if username := r.URL.Query().Get("user"); username != "" {
		topics = append(topics, notify.TopicFor(username))
	}

	messages, cancel := s.app.Broker.Subscribe(topics...)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return nil
		case envelope, open := <-messages:
			if !open {
				return nil
			}

			data, err := json.Marshal(envelope.Message)
			if err != nil {
				continue
			}

			_, err = fmt.Fprintf(w, "event: notification\ndata: %s\n\n", data)
			if err != nil {
				return nil //nolint:nilerr // client went away
			}

			flusher.Flush()
		}
	}
}
