package dashboard

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/mailbox"
)

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := mailbox.ReadOptions{
		Channel:     q.Get("channel"),
		Reader:      q.Get("reader"),
		UnreadOnly:  q.Get("unreadOnly") == "true",
		IncludeRead: q.Get("includeRead") != "false",
		MarkRead:    q.Get("markRead") == "true",
	}
	msgs, err := s.mailbox.Read(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read_messages", err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleChannelMessages(w http.ResponseWriter, r *http.Request) {
	channel := mux.Vars(r)["channel"]
	q := r.URL.Query()
	opts := mailbox.ReadOptions{
		Channel:     channel,
		Reader:      q.Get("reader"),
		UnreadOnly:  q.Get("unreadOnly") == "true",
		IncludeRead: q.Get("includeRead") != "false",
		MarkRead:    q.Get("markRead") == "true",
	}
	msgs, err := s.mailbox.Read(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read_messages", err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var opts mailbox.SendOptions
	if err := readJSON(r, &opts); err != nil {
		writeError(w, http.StatusBadRequest, "send_message", err.Error(), "SendOptions")
		return
	}
	id, err := s.mailbox.Send(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusBadRequest, "send_message", err.Error(), "SendOptions")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	chans, err := s.mailbox.ListChannels(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_channels", err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, chans)
}

func (s *Server) handleMessageStats(w http.ResponseWriter, r *http.Request) {
	chans, err := s.mailbox.ListChannels(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "message_stats", err.Error(), "")
		return
	}
	total := 0
	for _, c := range chans {
		total += c.MessageCount
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"totalChannels": len(chans),
		"totalMessages": total,
		"channels":      chans,
	})
}

func (s *Server) handleAckMessages(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs    []string `json:"ids"`
		Reader string   `json:"reader"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "ack_messages", err.Error(), "{ids:[]string,reader:string}")
		return
	}
	n, err := s.mailbox.Ack(r.Context(), body.IDs, body.Reader)
	if err != nil {
		writeError(w, http.StatusBadRequest, "ack_messages", err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"acked": n})
}

func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	msg, err := s.mailbox.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "get_message", err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleUpdateMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var patch mailbox.MessagePatch
	if err := readJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "update_message", err.Error(), "MessagePatch")
		return
	}
	msg, err := s.mailbox.UpdateMessage(r.Context(), id, patch)
	if err != nil {
		writeError(w, http.StatusNotFound, "update_message", err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleDeleteMessages(w http.ResponseWriter, r *http.Request) {
	var body struct {
		All        bool     `json:"all"`
		Channel    string   `json:"channel"`
		MessageIDs []string `json:"messageIds"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "purge_messages", err.Error(), "{all|channel|messageIds}")
		return
	}
	var err error
	switch {
	case body.All:
		err = s.mailbox.PurgeAll(r.Context())
	case body.Channel != "":
		err = s.mailbox.PurgeChannel(r.Context(), body.Channel)
	case len(body.MessageIDs) > 0:
		err = s.mailbox.DeleteMessages(r.Context(), body.MessageIDs)
	default:
		writeError(w, http.StatusBadRequest, "purge_messages", "one of all, channel, messageIds is required", "{all|channel|messageIds}")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "purge_messages", err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"purged": true})
}

// handleInboundMessage is the peer-receipt endpoint mailbox.HTTPForwarder
// POSTs to on every send (spec §4.8 best-effort forwarding).
func (s *Server) handleInboundMessage(w http.ResponseWriter, r *http.Request) {
	var msg mailbox.Message
	if err := readJSON(r, &msg); err != nil {
		writeError(w, http.StatusBadRequest, "inbound_message", err.Error(), "Message")
		return
	}
	if err := s.mailbox.ReceiveFromPeer(r.Context(), msg); err != nil {
		writeError(w, http.StatusBadRequest, "inbound_message", err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
