// Package stripetest 提供内存版 Stripe PaymentIntent 接口，用于本地测试。
package stripetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// Server 模拟 Stripe 的 PaymentIntent / Refund 接口
// capture_method=manual 的意图停在 requires_capture，其余直接 succeeded
type Server struct {
	*httptest.Server

	mu      sync.Mutex
	seq     int
	intents map[string]map[string]interface{}
	byKey   map[string]string

	// DeclineCreate 为 true 时创建请求返回 card_declined
	DeclineCreate bool
	Refunds       []map[string]interface{}
}

// NewServer 启动模拟服务，调用方负责 Close
func NewServer() *Server {
	s := &Server{
		intents: make(map[string]map[string]interface{}),
		byKey:   make(map[string]string),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Intent 返回指定意图的当前快照
func (s *Server) Intent(id string) map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyIntent(s.intents[id])
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/v1/")
	switch {
	case r.Method == http.MethodPost && path == "payment_intents":
		s.createIntent(w, r)
	case r.Method == http.MethodGet && path == "payment_intents/search":
		s.searchIntent(w, r)
	case r.Method == http.MethodPost && path == "refunds":
		s.createRefund(w, r)
	case strings.HasPrefix(path, "payment_intents/"):
		parts := strings.Split(strings.TrimPrefix(path, "payment_intents/"), "/")
		intent, ok := s.intents[parts[0]]
		if !ok {
			writeError(w, http.StatusNotFound, "invalid_request_error", "no such payment_intent")
			return
		}
		switch {
		case len(parts) == 1 && r.Method == http.MethodGet:
			writeJSON(w, intent)
		case len(parts) == 2 && parts[1] == "capture":
			s.captureIntent(w, r, intent)
		case len(parts) == 2 && parts[1] == "cancel":
			s.cancelIntent(w, intent)
		default:
			writeError(w, http.StatusNotFound, "invalid_request_error", "unknown route")
		}
	default:
		writeError(w, http.StatusNotFound, "invalid_request_error", "unknown route")
	}
}

func (s *Server) createIntent(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	if existing, ok := s.byKey[key]; ok && key != "" {
		writeJSON(w, s.intents[existing])
		return
	}
	if s.DeclineCreate {
		writeError(w, http.StatusPaymentRequired, "card_error", "card_declined")
		return
	}
	amount, _ := strconv.ParseInt(r.PostForm.Get("amount"), 10, 64)
	s.seq++
	id := fmt.Sprintf("pi_test_%d", s.seq)
	intent := map[string]interface{}{
		"id":             id,
		"object":         "payment_intent",
		"amount":         amount,
		"currency":       r.PostForm.Get("currency"),
		"capture_method": r.PostForm.Get("capture_method"),
		"payment_method": r.PostForm.Get("payment_method"),
		"customer":       r.PostForm.Get("customer"),
		"latest_charge":  fmt.Sprintf("ch_test_%d", s.seq),
		"metadata":       readMetadata(r),
	}
	if r.PostForm.Get("capture_method") == "manual" {
		intent["status"] = "requires_capture"
		intent["amount_capturable"] = amount
		intent["amount_received"] = int64(0)
	} else {
		intent["status"] = "succeeded"
		intent["amount_capturable"] = int64(0)
		intent["amount_received"] = amount
	}
	s.intents[id] = intent
	if key != "" {
		s.byKey[key] = id
	}
	writeJSON(w, intent)
}

func (s *Server) searchIntent(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	data := make([]interface{}, 0, 1)
	for _, intent := range s.intents {
		metadata, _ := intent["metadata"].(map[string]interface{})
		key, _ := metadata["idempotency_key"].(string)
		if key != "" && strings.Contains(query, "'"+key+"'") {
			data = append(data, intent)
			break
		}
	}
	writeJSON(w, map[string]interface{}{"object": "search_result", "data": data})
}

func (s *Server) captureIntent(w http.ResponseWriter, r *http.Request, intent map[string]interface{}) {
	if intent["status"] != "requires_capture" {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "payment_intent_unexpected_state")
		return
	}
	amount, _ := intent["amount"].(int64)
	if raw := r.PostForm.Get("amount_to_capture"); raw != "" {
		amount, _ = strconv.ParseInt(raw, 10, 64)
	}
	intent["status"] = "succeeded"
	intent["amount_capturable"] = int64(0)
	intent["amount_received"] = amount
	writeJSON(w, intent)
}

func (s *Server) cancelIntent(w http.ResponseWriter, intent map[string]interface{}) {
	if intent["status"] == "succeeded" || intent["status"] == "canceled" {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "payment_intent_unexpected_state")
		return
	}
	intent["status"] = "canceled"
	intent["amount_capturable"] = int64(0)
	writeJSON(w, intent)
}

func (s *Server) createRefund(w http.ResponseWriter, r *http.Request) {
	amount, _ := strconv.ParseInt(r.PostForm.Get("amount"), 10, 64)
	refund := map[string]interface{}{
		"id":             fmt.Sprintf("re_test_%d", len(s.Refunds)+1),
		"object":         "refund",
		"status":         "succeeded",
		"amount":         amount,
		"charge":         r.PostForm.Get("charge"),
		"payment_intent": r.PostForm.Get("payment_intent"),
	}
	s.Refunds = append(s.Refunds, refund)
	writeJSON(w, refund)
}

func readMetadata(r *http.Request) map[string]interface{} {
	metadata := make(map[string]interface{})
	for key, values := range r.PostForm {
		if !strings.HasPrefix(key, "metadata[") || !strings.HasSuffix(key, "]") || len(values) == 0 {
			continue
		}
		metadata[strings.TrimSuffix(strings.TrimPrefix(key, "metadata["), "]")] = values[0]
	}
	return metadata
}

func copyIntent(intent map[string]interface{}) map[string]interface{} {
	if intent == nil {
		return nil
	}
	out := make(map[string]interface{}, len(intent))
	for key, value := range intent {
		out[key] = value
	}
	return out
}

func writeJSON(w http.ResponseWriter, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{"type": errType, "message": message},
	})
}
