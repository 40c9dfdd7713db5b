package webchat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/flossyai/dental-ai-platform/internal/conversation"
	"github.com/flossyai/dental-ai-platform/internal/http/middleware"
	"github.com/flossyai/dental-ai-platform/internal/identity"
	"github.com/flossyai/dental-ai-platform/pkg/logging"
)

// TurnHandler runs one conversation turn and returns the reply text.
type TurnHandler interface {
	HandleUtterance(ctx context.Context, sess *conversation.Session, utterance string) string
}

// UserResolver maps an authenticated email to its account, provisioning on
// first contact.
type UserResolver interface {
	StoreIfNew(ctx context.Context, email, role string) (*identity.User, error)
}

// Handler serves the text chat channel: an HTTP endpoint for the dashboard
// widget and a WebSocket endpoint for live chat.
type Handler struct {
	director TurnHandler
	sessions *conversation.SessionStore
	users    UserResolver
	logger   *logging.Logger
}

// InboundMessage is what the chat widget sends over the socket.
type InboundMessage struct {
	Type    string `json:"type"` // "text", "ping"
	Content string `json:"content"`
}

// OutboundMessage is what we send back.
type OutboundMessage struct {
	Type string `json:"type"` // "bot_text", "pong", "error"
	Text string `json:"text,omitempty"`
}

// NewHandler creates the webchat handler.
func NewHandler(director TurnHandler, sessions *conversation.SessionStore, users UserResolver, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		director: director,
		sessions: sessions,
		users:    users,
		logger:   logger,
	}
}

// generateSessionID creates a random session identifier for anonymous chats.
func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return uuid.New().String()
	}
	return hex.EncodeToString(b)
}

// resolveSession picks the session identity: the authenticated user's email
// when present so history survives reconnects, otherwise the supplied or a
// fresh anonymous session id. Authenticated users also get their account id
// attached so bookings link to them. ephemeral reports that no caller-side
// identity existed, so the session cannot be addressed again and should not
// outlive the request.
func (h *Handler) resolveSession(ctx context.Context, sessionID string) (sess *conversation.Session, ephemeral bool) {
	var userID *uuid.UUID
	id := sessionID

	if claims, ok := middleware.ClerkClaimsFromContext(ctx); ok && claims.UserEmail() != "" {
		id = "user:" + strings.ToLower(claims.UserEmail())
		if h.users != nil {
			if user, err := h.users.StoreIfNew(ctx, claims.UserEmail(), ""); err == nil {
				userID = &user.ID
			}
		}
	}
	if id == "" {
		id = generateSessionID()
		ephemeral = true
	}
	return h.sessions.Attach(id, "text", userID), ephemeral
}

// HandleAIResponse is the HTTP chat endpoint the patient dashboard posts to.
func (h *Handler) HandleAIResponse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query     string `json:"query"`
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(req.Query) == "" {
		h.writeAnswer(w, conversation.EmptyPrompt)
		return
	}

	sess, ephemeral := h.resolveSession(r.Context(), req.SessionID)
	if ephemeral {
		defer h.sessions.Detach(sess.ID)
	}
	reply := h.director.HandleUtterance(r.Context(), sess, req.Query)
	h.writeAnswer(w, reply)
}

func (h *Handler) writeAnswer(w http.ResponseWriter, answer string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"answer": answer})
}

// HandleWebSocket upgrades to WebSocket and relays chat turns.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = generateSessionID()
	}

	sess, _ := h.resolveSession(r.Context(), sessionID)
	defer h.sessions.Detach(sess.ID)

	h.logger.Info("webchat: connection opened", "session_id", sess.ID)
	_ = websocket.JSON.Send(conn, OutboundMessage{Type: "bot_text", Text: conversation.Greeting})

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Info("webchat: connection closed", "session_id", sess.ID, "error", err)
			return
		}

		if msg.Type == "ping" {
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "pong"})
			continue
		}
		if msg.Type != "text" || strings.TrimSpace(msg.Content) == "" {
			continue
		}

		h.sessions.Touch(sess.ID)
		reply := h.director.HandleUtterance(r.Context(), sess, msg.Content)
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "bot_text", Text: reply})
	}
}
