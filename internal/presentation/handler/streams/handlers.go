package streams

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/hilthontt/impostor/internal/infrastructure/json"
	"github.com/hilthontt/impostor/internal/infrastructure/logging"
	"github.com/hilthontt/impostor/internal/infrastructure/push"
	"github.com/hilthontt/impostor/internal/infrastructure/ws"
	"github.com/hilthontt/impostor/internal/presentation/utils"
)

const DefaultKeepAlive = 15 * time.Second

// Opener opens push streams for owners and players.
type Opener interface {
	OpenOwnerStream(ctx context.Context, ownerID string) (*push.Stream, error)
	OpenPlayerStream(ctx context.Context, userID string) (*push.Stream, error)
}

type Options struct {
	// KeepAlive is the interval between SSE comment frames.
	KeepAlive time.Duration
	WebSocket ws.Options
}

type Handler struct {
	opener   Opener
	upgrader *websocket.Upgrader
	logger   logging.Logger
	opts     Options
}

func NewHandler(opener Opener, upgrader *websocket.Upgrader, logger logging.Logger, opts Options) *Handler {
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = DefaultKeepAlive
	}

	return &Handler{
		opener:   opener,
		upgrader: upgrader,
		logger:   logger,
		opts:     opts,
	}
}

// OwnerSSEHandler godoc
// @Summary      Owner event stream
// @Description  Streams push messages for the room owner as server-sent events
// @Tags         streams
// @Produce      text/event-stream
// @Param        ownerId path string true "Owner ID"
// @Success      200 "Stream ends when the room closes or the client goes away"
// @Failure      403 {object} map[string]interface{} "Forbidden - wrong stream kind for this user"
// @Failure      404 {object} map[string]interface{} "User unknown or room not alive"
// @Router       /sse/owner/{ownerId} [get]
func (h *Handler) OwnerSSEHandler(w http.ResponseWriter, r *http.Request) {
	stream, err := h.opener.OpenOwnerStream(r.Context(), chi.URLParam(r, "ownerId"))
	if err != nil {
		utils.WriteDomainError(w, r, h.logger, err)
		return
	}
	h.serveSSE(w, r, stream)
}

// PlayerSSEHandler godoc
// @Summary      Player event stream
// @Description  Streams push messages for a player as server-sent events
// @Tags         streams
// @Produce      text/event-stream
// @Param        userId path string true "Player ID"
// @Success      200 "Stream ends when the room closes or the client goes away"
// @Failure      403 {object} map[string]interface{} "Forbidden - wrong stream kind for this user"
// @Failure      404 {object} map[string]interface{} "User unknown or room not alive"
// @Router       /sse/player/{userId} [get]
func (h *Handler) PlayerSSEHandler(w http.ResponseWriter, r *http.Request) {
	stream, err := h.opener.OpenPlayerStream(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		utils.WriteDomainError(w, r, h.logger, err)
		return
	}
	h.serveSSE(w, r, stream)
}

// OwnerWSHandler godoc
// @Summary      Owner websocket
// @Description  Carries push messages for the room owner as JSON text frames
// @Tags         streams
// @Produce      json
// @Param        ownerId path string true "Owner ID"
// @Success      101 "Switching protocols"
// @Failure      400 {object} map[string]interface{} "Not a websocket upgrade"
// @Failure      403 {object} map[string]interface{} "Forbidden - wrong stream kind for this user"
// @Failure      404 {object} map[string]interface{} "User unknown or room not alive"
// @Router       /ws/owner/{ownerId} [get]
func (h *Handler) OwnerWSHandler(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		json.WriteBadRequestError(w, "websocket upgrade required")
		return
	}

	stream, err := h.opener.OpenOwnerStream(r.Context(), chi.URLParam(r, "ownerId"))
	if err != nil {
		utils.WriteDomainError(w, r, h.logger, err)
		return
	}
	h.serveWS(w, r, stream)
}

// PlayerWSHandler godoc
// @Summary      Player websocket
// @Description  Carries push messages for a player as JSON text frames
// @Tags         streams
// @Produce      json
// @Param        userId path string true "Player ID"
// @Success      101 "Switching protocols"
// @Failure      400 {object} map[string]interface{} "Not a websocket upgrade"
// @Failure      403 {object} map[string]interface{} "Forbidden - wrong stream kind for this user"
// @Failure      404 {object} map[string]interface{} "User unknown or room not alive"
// @Router       /ws/player/{userId} [get]
func (h *Handler) PlayerWSHandler(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		json.WriteBadRequestError(w, "websocket upgrade required")
		return
	}

	stream, err := h.opener.OpenPlayerStream(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		utils.WriteDomainError(w, r, h.logger, err)
		return
	}
	h.serveWS(w, r, stream)
}

func (h *Handler) serveSSE(w http.ResponseWriter, r *http.Request, stream *push.Stream) {
	h.logConnect(stream, "sse")

	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := rc.Flush(); err != nil {
		// nothing can be streamed through this writer
		stream.Close()
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var mu sync.Mutex
	send := func(msg push.Message) error {
		data, err := msg.Encode()
		if err != nil {
			return err
		}

		mu.Lock()
		defer mu.Unlock()

		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Type, data); err != nil {
			return err
		}
		return rc.Flush()
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(h.opts.KeepAlive)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				mu.Lock()
				_, err := fmt.Fprint(w, ": ping\n\n")
				if err == nil {
					err = rc.Flush()
				}
				mu.Unlock()
				if err != nil {
					cancel()
					return
				}
			}
		}
	}()

	err := stream.Pump(ctx, send)
	close(done)
	wg.Wait()

	h.logDisconnect(stream, "sse", err)
}

func (h *Handler) serveWS(w http.ResponseWriter, r *http.Request, stream *push.Stream) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already wrote an error response
		stream.Close()
		h.logDisconnect(stream, "websocket", err)
		return
	}

	h.logConnect(stream, "websocket")
	ws.NewClient(conn, stream, h.logger, h.opts.WebSocket).Serve(r.Context())
	h.logDisconnect(stream, "websocket", nil)
}

func (h *Handler) logConnect(stream *push.Stream, transport string) {
	h.logger.Info(logging.Stream, logging.Connect, "stream opened", map[logging.ExtraKey]any{
		logging.UserID:     stream.UserID(),
		logging.RoomID:     stream.RoomID(),
		logging.StreamKind: string(stream.Kind()),
		logging.Transport:  transport,
	})
}

func (h *Handler) logDisconnect(stream *push.Stream, transport string, err error) {
	extra := map[logging.ExtraKey]any{
		logging.UserID:     stream.UserID(),
		logging.RoomID:     stream.RoomID(),
		logging.StreamKind: string(stream.Kind()),
		logging.Transport:  transport,
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		extra[logging.ErrorMessage] = err.Error()
	}

	h.logger.Info(logging.Stream, logging.Disconnect, "stream closed", extra)
}
