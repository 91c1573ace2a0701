package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"sitetrack.io/internal/auth"
	"sitetrack.io/internal/obs"
	"sitetrack.io/internal/stream"
)

const streamKeepAlive = 25 * time.Second

// Stream serves map marker changes as Server-Sent Events. Each event is
// forwarded only if the subscriber can see the project it concerns.
func (a *API) Stream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.stream == nil {
		writeError(w, r, http.StatusServiceUnavailable, "streaming disabled")
		return
	}
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		unauthorized(w, r, "authentication required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := a.stream.Subscribe(ctx)

	// Send an initial comment to establish the stream
	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-keepAlive.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case event, open := <-ch:
			if !open {
				return
			}
			if !a.canSee(ctx, id.UserID, event) {
				continue
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Kind, payload)
			flusher.Flush()
		}
	}
}

func (a *API) canSee(ctx context.Context, userID string, event stream.Event) bool {
	resolver := a.svc.Resolver()
	var (
		ok  bool
		err error
	)
	if event.Kind == stream.KindDelete {
		ok, err = resolver.CanSeeSnapshot(ctx, userID, event.Project)
	} else {
		ok, err = resolver.CanAccessProject(ctx, userID, event.Marker.ProjectID)
	}
	if err != nil {
		obs.Logger().Warn("map stream access check failed",
			zap.String("request_id", RequestIDFromContext(ctx)),
			zap.String("project_id", event.Marker.ProjectID),
			zap.Error(err),
		)
		return false
	}
	return ok
}
