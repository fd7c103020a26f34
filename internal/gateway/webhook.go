package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"frontdesk/internal/domain"
	"frontdesk/internal/normalize"
)

// webhookResponse is the acknowledgement body for a processed delivery.
type webhookResponse struct {
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	BatchID           string `json:"batch_id"`
	ProcessedMessages int    `json:"processed_messages"`
	Duplicates        int    `json:"duplicates"`
	Failed            int    `json:"failed"`
}

// channel resolves {channel}; unknown or disabled channels answer 404.
func (s *Server) channel(w http.ResponseWriter, r *http.Request) (domain.Channel, ChannelAuth, bool) {
	ch, err := domain.ParseChannel(r.PathValue("channel"))
	if err != nil {
		writeError(w, s.logger, err)
		return "", ChannelAuth{}, false
	}
	auth, ok := s.cfg.Channels[ch]
	if !ok || !auth.Enabled {
		writeMessage(w, http.StatusNotFound, "channel not enabled: "+string(ch))
		return "", ChannelAuth{}, false
	}
	return ch, auth, true
}

// handleVerify answers the Meta subscription handshake.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	ch, auth, ok := s.channel(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "subscribe" && auth.VerifyToken != "" &&
		hmac.Equal([]byte(token), []byte(auth.VerifyToken)) {
		s.logger.Info("webhook verified", "channel", ch)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, challenge)
		return
	}

	s.logger.Warn("webhook verification failed", "channel", ch, "mode", mode)
	http.Error(w, "Forbidden", http.StatusForbidden)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ch, auth, ok := s.channel(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeMessage(w, statusForReadError(err), "cannot read body")
		return
	}
	defer r.Body.Close()

	if auth.AppSecret != "" {
		sig := r.Header.Get("X-Hub-Signature-256")
		if sig == "" {
			writeMessage(w, http.StatusUnauthorized, "missing signature")
			return
		}
		if !verifySignature(body, auth.AppSecret, sig) {
			s.logger.Warn("webhook invalid signature", "channel", ch)
			writeMessage(w, http.StatusForbidden, "invalid signature")
			return
		}
	}

	if challenge, ok := s.cfg.Pipeline.VerificationChallenge(ch, body); ok {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, challenge)
		return
	}

	res, err := s.cfg.Pipeline.Ingest(r.Context(), ch, body)
	if err != nil {
		if res == nil {
			writeError(w, s.logger, err)
			return
		}
		// Cancelled mid-batch; report what was stored.
		s.logger.Warn("webhook ingest interrupted", "channel", ch, "batch", res.BatchID, "err", err)
	}

	if ch == domain.ChannelWhatsApp && s.cfg.WhatsApp != nil {
		for _, st := range normalize.WhatsAppStatuses(body) {
			if s.cfg.WhatsApp.UpdateStatus(st.MessageID, st.Status) {
				s.logger.Debug("delivery status updated", "message_id", st.MessageID, "status", st.Status)
			}
		}
	}

	msg := "Webhook processed successfully"
	if err != nil {
		msg = "Webhook partially processed"
	}
	writeJSON(w, http.StatusOK, webhookResponse{
		Success:           err == nil,
		Message:           msg,
		BatchID:           res.BatchID,
		ProcessedMessages: res.Processed,
		Duplicates:        res.Duplicates,
		Failed:            res.Failed,
	})
}

// verifySignature checks an X-Hub-Signature-256 header ("sha256=<hex>").
func verifySignature(body []byte, secret, signature string) bool {
	hexSig, ok := strings.CutPrefix(signature, "sha256=")
	if !ok {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(hexSig)))
}
