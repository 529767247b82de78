package httptransport

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ecotrace/internal/events"
	"ecotrace/pkg/domainerr"
)

// EventSource is the live event feed the stream endpoint draws from.
type EventSource interface {
	Subscribe(channel string) (<-chan events.Event, func())
}

// EventsHandler streams committed events over server-sent events. The feed is
// best-effort and live-only; catch-up reads go through the query endpoints.
type EventsHandler struct {
	source EventSource
	logger *slog.Logger
}

func NewEventsHandler(source EventSource, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{source: source, logger: logger}
}

func (h *EventsHandler) Register(r chi.Router) {
	r.Get("/events/stream", h.handleStream)
}

var streamChannels = map[string]bool{
	events.ChannelGlobal:       true,
	events.ChannelManufacturer: true,
	events.ChannelConsumer:     true,
	events.ChannelRecycler:     true,
	events.ChannelRegulator:    true,
}

func (h *EventsHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel")
	if channel == "" {
		channel = events.ChannelGlobal
	}
	if !streamChannels[channel] {
		writeError(w, domainerr.New(domainerr.CodeBadRequest, "unknown channel: "+channel))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, domainerr.New(domainerr.CodeInternal, "streaming unsupported"))
		return
	}

	ch, cancel := h.source.Subscribe(channel)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.ErrorContext(r.Context(), "failed to encode event", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", string(ev.Kind), data)
			flusher.Flush()
		}
	}
}
