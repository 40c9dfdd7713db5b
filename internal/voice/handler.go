package voice

import (
	"context"
	"encoding/base64"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/flossyai/dental-ai-platform/internal/conversation"
	"github.com/flossyai/dental-ai-platform/internal/speech"
	"github.com/flossyai/dental-ai-platform/pkg/logging"
)

const audioChunkSize = 32 * 1024

// Frame is the wire envelope both directions share. Inbound types are
// "audio_chunk", "audio_done" and "text"; outbound are "bot_text",
// "audio_chunk", "audio_done" and "transcript".
type Frame struct {
	Type    string `json:"type"`
	Data    string `json:"data,omitempty"`
	Content string `json:"content,omitempty"`
	Text    string `json:"text,omitempty"`
	Final   bool   `json:"final,omitempty"`
}

// TurnHandler runs one conversation turn and returns the reply text.
type TurnHandler interface {
	HandleUtterance(ctx context.Context, sess *conversation.Session, utterance string) string
}

// Handler serves the voice agent WebSocket. One connection is one session:
// the caller streams microphone audio in chunks, we transcribe on
// audio_done, run the turn and stream back both text and synthesized audio.
type Handler struct {
	director     TurnHandler
	sessions     *conversation.SessionStore
	recognizer   speech.Recognizer
	synthesizer  speech.Synthesizer
	synthTimeout time.Duration
	logger       *logging.Logger
	upgrader     websocket.Upgrader
}

// NewHandler creates the voice handler. synthTimeout bounds each TTS call so
// a hung synthesis backend cannot stall the session.
func NewHandler(director TurnHandler, sessions *conversation.SessionStore, recognizer speech.Recognizer, synthesizer speech.Synthesizer, synthTimeout time.Duration, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if synthTimeout <= 0 {
		synthTimeout = 20 * time.Second
	}
	return &Handler{
		director:     director,
		sessions:     sessions,
		recognizer:   recognizer,
		synthesizer:  synthesizer,
		synthTimeout: synthTimeout,
		logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			// The widget is served from arbitrary clinic pages.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// conn wraps the socket with a write lock, since turns complete on their own
// goroutines and gorilla permits only one concurrent writer.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) send(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(f)
}

// ServeWS upgrades the request and runs the connection's read loop.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("voice: upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	connID := uuid.New().String()
	sess := h.sessions.Attach(connID, "voice", nil)
	defer h.sessions.Detach(connID)

	c := &conn{ws: ws}
	h.logger.Info("voice: connection opened", "session_id", connID)
	h.sendBot(r.Context(), c, conversation.Greeting)

	var buffer []byte
	for {
		var frame Frame
		if err := ws.ReadJSON(&frame); err != nil {
			h.logger.Info("voice: connection closed", "session_id", connID, "error", err)
			return
		}

		switch frame.Type {
		case "audio_chunk":
			chunk, err := base64.StdEncoding.DecodeString(frame.Data)
			if err != nil {
				h.logger.Warn("voice: dropping undecodable chunk", "session_id", connID)
				continue
			}
			buffer = append(buffer, chunk...)

		case "audio_done":
			audio := buffer
			buffer = nil
			h.finishUtterance(r.Context(), c, sess, audio)

		case "text":
			go h.runTurn(r.Context(), c, sess, frame.Content)
		}
	}
}

func (h *Handler) finishUtterance(ctx context.Context, c *conn, sess *conversation.Session, audio []byte) {
	transcript, err := h.recognizer.Recognize(ctx, audio)
	if err != nil {
		h.logger.Warn("voice: transcription failed", "session_id", sess.ID, "error", err)
		h.sendBot(ctx, c, conversation.RetryPrompt)
		return
	}

	if err := c.send(Frame{Type: "transcript", Final: true, Text: transcript}); err != nil {
		return
	}

	// The turn runs off the read loop so a slow oracle call does not block
	// incoming frames; the session's own lock keeps turns ordered.
	go h.runTurn(ctx, c, sess, transcript)
}

func (h *Handler) runTurn(ctx context.Context, c *conn, sess *conversation.Session, utterance string) {
	reply := h.director.HandleUtterance(ctx, sess, utterance)
	h.sendBot(ctx, c, reply)
}

// sendBot delivers a reply as text first, then as streamed audio.
func (h *Handler) sendBot(ctx context.Context, c *conn, text string) {
	if err := c.send(Frame{Type: "bot_text", Text: text}); err != nil {
		return
	}

	synthCtx, cancel := context.WithTimeout(ctx, h.synthTimeout)
	defer cancel()
	audio, err := h.synthesizer.Synthesize(synthCtx, text)
	if err != nil {
		h.logger.Warn("voice: synthesis failed", "error", err)
		return
	}
	h.streamAudio(c, audio)
}

func (h *Handler) streamAudio(c *conn, audio []byte) {
	for start := 0; start < len(audio); start += audioChunkSize {
		end := start + audioChunkSize
		if end > len(audio) {
			end = len(audio)
		}
		frame := Frame{
			Type: "audio_chunk",
			Data: base64.StdEncoding.EncodeToString(audio[start:end]),
		}
		if err := c.send(frame); err != nil {
			return
		}
		time.Sleep(3 * time.Millisecond)
	}
	_ = c.send(Frame{Type: "audio_done"})
}
