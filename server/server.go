// Package server exposes the memory pipeline over a WebSocket chat
// endpoint. Each connection gets its own engine and conversation
// history; the store behind it is shared, so facts learned in one
// session are recalled in the next.
package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/gorilla/websocket"

	"github.com/novamind/engram/core"
	"github.com/novamind/engram/engine"
	"github.com/novamind/engram/memory"
)

// Config configures the server.
type Config struct {
	// AnthropicKey authenticates planner and classifier calls. Required.
	AnthropicKey string

	// SystemPrompt overrides the default planner prompt when non-empty.
	SystemPrompt string

	// Model is the planner model. Empty takes the planner default.
	Model string

	// MaxTokens caps the planner response. Zero takes the default.
	MaxTokens int64

	// Store is the shared long-term fact store. Required.
	Store memory.Store

	// Memory tunes the pipeline. Nil takes defaults.
	Memory *memory.Config

	// Classifier optionally swaps the trigger detector, e.g. the
	// LLM judge from classifier/claude. Nil keeps the rule classifier.
	Classifier memory.TriggerClassifier
}

// Server handles WebSocket chat connections.
type Server struct {
	config   Config
	client   anthropic.Client
	upgrader websocket.Upgrader
}

// New creates a server from the config.
func New(config Config) (*Server, error) {
	if config.AnthropicKey == "" {
		return nil, fmt.Errorf("AnthropicKey is required")
	}
	if config.Store == nil {
		return nil, fmt.Errorf("Store is required")
	}
	return &Server{
		config: config,
		client: anthropic.NewClient(option.WithAPIKey(config.AnthropicKey)),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}, nil
}

// Run starts the HTTP server on addr with /ws and /health endpoints.
// It blocks until the listener fails.
func (s *Server) Run(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	log.Printf("[SERVER] listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// inboundMessage is one client frame.
type inboundMessage struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// outboundMessage is one server frame. Chunks stream while the planner
// responds; the final frame carries the full text.
type outboundMessage struct {
	Type     string `json:"type"` // chunk, response, error
	Content  string `json:"content,omitempty"`
	Recalled int    `json:"recalled,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[SERVER] upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	log.Printf("[SERVER] connection from %s", r.RemoteAddr)

	// Per-connection pipeline: the planner streams back over this
	// connection, the engine tracks this connection's pending writes.
	planner := engine.NewClaudePlanner(&s.client, s.config.Model, s.config.MaxTokens)
	if s.config.SystemPrompt != "" {
		planner.WithSystemPrompt(s.config.SystemPrompt)
	}
	planner.StreamCallback = func(chunk string, done bool) {
		if done {
			return
		}
		conn.WriteJSON(outboundMessage{Type: "chunk", Content: chunk})
	}

	var opts []engine.Option
	if s.config.Classifier != nil {
		opts = append(opts, engine.WithClassifier(s.config.Classifier))
	}
	eng := engine.NewEngine(planner, s.config.Store, s.config.Memory, opts...)

	var history []*core.ConversationTurn
	seq := 0
	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[SERVER] read error: %v", err)
			}
			return
		}
		if msg.Type != "message" || msg.Content == "" {
			continue
		}

		seq++
		turn := &core.ConversationTurn{
			UserUtterance:  msg.Content,
			SubjectID:      msg.UserID,
			SessionID:      msg.SessionID,
			Timestamp:      time.Now().UTC(),
			SequenceNumber: seq,
		}

		out, err := eng.Run(r.Context(), turn, history)
		if err != nil {
			log.Printf("[SERVER] turn failed: %v", err)
			conn.WriteJSON(outboundMessage{Type: "error", Error: "something went wrong, please try again"})
			continue
		}
		history = append(history, turn.WithAgentResponse(out.Text))

		recalled := 0
		if !out.Recalled.Empty() {
			recalled = len(out.Recalled.Facts)
		}
		if err := conn.WriteJSON(outboundMessage{Type: "response", Content: out.Text, Recalled: recalled}); err != nil {
			log.Printf("[SERVER] write error: %v", err)
			return
		}
	}
}
