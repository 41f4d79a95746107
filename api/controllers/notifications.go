package controllers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Lavavarshney/Library-Management-System/api/responses"
	"github.com/Lavavarshney/Library-Management-System/internal/notifications"
	pkgerrors "github.com/Lavavarshney/Library-Management-System/pkg/errors"
	"github.com/Lavavarshney/Library-Management-System/pkg/logger"
)

const defaultKeepAlive = 25 * time.Second

// StreamNotifications holds a server-sent event stream open for the patron
// and writes every overdue notice as an "notification" event. The handle is
// released when the client disconnects or the hub drops it.
func StreamNotifications(dispatcher *notifications.Dispatcher, keepAlive time.Duration, logg *logger.Logger) http.HandlerFunc {
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if dispatcher == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notification dispatcher unavailable"))
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported"))
			return
		}

		sub, err := dispatcher.Subscribe(chi.URLParam(r, "patronId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer dispatcher.Unsubscribe(sub)

		ctx := logg.WithFields(r.Context(), map[string]any{
			"patron_id":       sub.PatronID(),
			"subscription_id": sub.ID(),
		})
		logg.Info(ctx, "notification stream opened")

		header := w.Header()
		header.Set("Content-Type", "text/event-stream")
		header.Set("Cache-Control", "no-cache")
		header.Set("Connection", "keep-alive")
		header.Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, ": connected\n\n")
		flusher.Flush()

		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				logg.Info(ctx, "notification stream closed by client")
				return
			case <-sub.Done():
				logg.Info(ctx, "notification stream dropped")
				return
			case notice := <-sub.C():
				data, err := notifications.MarshalNotice(notice)
				if err != nil {
					logg.Error(ctx, "encode notice", err)
					continue
				}
				if _, err := fmt.Fprintf(w, "event: %s\nid: %s\ndata: %s\n\n", notifications.EventNotification, notice.LoanID, data); err != nil {
					return
				}
				flusher.Flush()
			case <-ticker.C:
				if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}
