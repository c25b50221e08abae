package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nhdewitt/threadmon/internal/protocol"
)

const (
	streamBuffer = 8
	writeWait    = 10 * time.Second
)

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var cmd protocol.Command
	if err := decodeJSONBody(r, &cmd); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !cmd.Type.Valid() {
		http.Error(w, "unknown command type: "+string(cmd.Type), http.StatusBadRequest)
		return
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.Config.CommandTimeout)
	defer cancel()

	s.logger.Debug("command received", "id", cmd.ID, "type", cmd.Type, "arg", cmd.Arg)
	res := s.cmds.Handle(ctx, cmd)

	status := http.StatusOK
	switch {
	case res.Status == protocol.StatusInvalid:
		status = http.StatusBadRequest
	case res.Status == "" && res.Error != "":
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, res)
}

func (s *Server) handlePIDs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.Config.CommandTimeout)
	defer cancel()

	ids, err := s.cmds.AddedPIDs(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if ids == nil {
		ids = []protocol.ProcessIdentity{}
	}
	respondJSON(w, http.StatusOK, ids)
}

// handleStream upgrades to a websocket and writes every snapshot as a cpu
// envelope followed by a process envelope.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sub, err := s.subs.Subscribe(streamBuffer)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	logger := s.logger.With("subscriber", sub.ID, "remote", r.RemoteAddr)
	logger.Info("stream opened")

	// the client never sends data; reading only detects the close
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			logger.Info("stream closed by client")
			return

		case snap, ok := <-sub.C:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			for _, env := range snap.Envelopes(s.Config.Hostname) {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(env); err != nil {
					if !errors.Is(err, websocket.ErrCloseSent) {
						logger.Debug("stream write failed", "error", err)
					}
					return
				}
			}
		}
	}
}
