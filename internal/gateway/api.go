package gateway

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"frontdesk/internal/domain"
	"frontdesk/internal/intent"
	"frontdesk/internal/routing"
	"frontdesk/internal/store"
)

// --- messages & customers ---

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.cfg.Store == nil {
		writeMessage(w, http.StatusServiceUnavailable, "storage not configured")
		return false
	}
	return true
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	q := r.URL.Query()
	var f store.MessageFilter
	if v := q.Get("channel"); v != "" {
		ch, err := domain.ParseChannel(v)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Channel = ch
	}
	if v := q.Get("priority"); v != "" {
		p, ok := domain.ParsePriority(v)
		if !ok {
			writeMessage(w, http.StatusBadRequest, "unknown priority: "+v)
			return
		}
		f.Priority = p
	}
	if v := q.Get("status"); v != "" {
		st, ok := domain.ParseMessageStatus(v)
		if !ok {
			writeMessage(w, http.StatusBadRequest, "unknown status: "+v)
			return
		}
		f.Status = st
	}
	if v := q.Get("customer_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid customer_id")
			return
		}
		f.CustomerID = id
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	f.Limit = limit

	msgs, err := s.cfg.Store.ListMessages(r.Context(), f)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs, "count": len(msgs)})
}

func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	m, err := s.cfg.Store.GetMessage(r.Context(), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleUpdateMessage(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	st, ok := domain.ParseMessageStatus(req.Status)
	if !ok {
		writeMessage(w, http.StatusBadRequest, "unknown status: "+req.Status)
		return
	}
	if err := s.cfg.Store.UpdateMessageStatus(r.Context(), id, st); err != nil {
		writeError(w, s.logger, err)
		return
	}
	m, err := s.cfg.Store.GetMessage(r.Context(), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	cs, err := s.cfg.Store.ListCustomers(r.Context(), limit)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": cs, "count": len(cs)})
}

func (s *Server) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, err := s.cfg.Store.GetCustomer(r.Context(), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		writeMessage(w, http.StatusBadRequest, "invalid limit")
		return 0, false
	}
	return n, true
}

// --- outbound whatsapp ---

func (s *Server) requireWhatsApp(w http.ResponseWriter) bool {
	if s.cfg.WhatsApp == nil {
		writeMessage(w, http.StatusServiceUnavailable, "whatsapp sender not configured")
		return false
	}
	return true
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Dispatcher == nil {
		writeMessage(w, http.StatusServiceUnavailable, "outbound delivery not configured")
		return
	}
	var req struct {
		To          string `json:"to"`
		Message     string `json:"message"`
		MessageType string `json:"message_type"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.To) == "" || req.Message == "" {
		writeMessage(w, http.StatusBadRequest, "to and message are required")
		return
	}
	res := s.cfg.Dispatcher.Send(r.Context(), domain.ChannelWhatsApp, req.To, req.Message, req.MessageType)
	if !res.Success {
		writeJSON(w, http.StatusBadRequest, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSendTemplate(w http.ResponseWriter, r *http.Request) {
	if !s.requireWhatsApp(w) {
		return
	}
	var req struct {
		To           string `json:"to"`
		TemplateName string `json:"template_name"`
		LanguageCode string `json:"language_code"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.To) == "" || req.TemplateName == "" {
		writeMessage(w, http.StatusBadRequest, "to and template_name are required")
		return
	}
	res := s.cfg.WhatsApp.SendTemplate(r.Context(), req.To, req.TemplateName, req.LanguageCode)
	if s.cfg.Dispatcher != nil {
		s.cfg.Dispatcher.Record(domain.ChannelWhatsApp, res)
	}
	body := map[string]any{
		"success":    res.Success,
		"message_id": res.MessageID,
		"template":   req.TemplateName,
		"recipient":  res.Recipient,
		"status":     res.Status,
	}
	if !res.Success {
		body["error"] = res.Error
		writeJSON(w, http.StatusBadRequest, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	if !s.requireWhatsApp(w) {
		return
	}
	id := r.PathValue("id")
	res, err := s.cfg.WhatsApp.Status(r.Context(), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message_id": id,
		"status":     res.Status,
		"timestamp":  res.Timestamp,
	})
}

func (s *Server) handleWhatsAppHealth(w http.ResponseWriter, r *http.Request) {
	if !s.requireWhatsApp(w) {
		return
	}
	h := s.cfg.WhatsApp.Health()
	writeJSON(w, http.StatusOK, map[string]any{
		"service":   "whatsapp",
		"status":    "healthy",
		"details":   h,
		"timestamp": h.Timestamp,
	})
}

func (s *Server) handleWhatsAppConfig(w http.ResponseWriter, r *http.Request) {
	if !s.requireWhatsApp(w) {
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.WhatsApp.Info())
}

// --- classification ---

type classifyResponse struct {
	domain.ClassificationResult
	Description string          `json:"description"`
	Priority    domain.Priority `json:"priority"`
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text     string `json:"text"`
		Language string `json:"language"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Language == "" {
		req.Language = intent.HintAuto
	}
	res := s.cfg.Classify(req.Text, req.Language)
	writeJSON(w, http.StatusOK, classifyResponse{
		ClassificationResult: res,
		Description:          intent.Describe(res.Intent),
		Priority:             routing.ResolvePriority(res.Intent),
	})
}

// --- health ---

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "欢迎使用" + s.cfg.Name,
		"version": s.cfg.Version,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": s.cfg.Name})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Store != nil {
		if err := s.cfg.Store.Ping(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": "storage unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "alive",
		"timestamp": time.Now().UTC(),
	})
}
