package ws

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/playcue/backend/internal/match"
	"github.com/playcue/backend/internal/physics"
)

// Match message data types
type ShotData struct {
	Angle float64      `json:"angle"`
	Power float64      `json:"power"`
	Spin  physics.Vec2 `json:"spin"`
}

type PlaceCueBallData struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type BreakChoiceData struct {
	Rerack bool `json:"rerack"`
}

// StateAckData carries the client's event digest for one shot. The digest
// is a decimal string because uint64 does not survive JSON numbers intact.
type StateAckData struct {
	Seq    int    `json:"seq"`
	Digest string `json:"digest"`
}

// MatchHub is the single hub for all matches.
var MatchHub *Hub

func init() {
	MatchHub = NewHub()
	go runMatchHub(MatchHub)
}

// HandleWebSocket handles WebSocket connections for matches. The match
// token comes from the route param when mounted under /matches/:token/ws,
// or from the query string.
func HandleWebSocket(c *gin.Context) {
	matchToken := c.Param("token")
	if matchToken == "" {
		matchToken = c.Query("token")
	}
	joinToken := c.Query("pt")

	if matchToken == "" || joinToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token and pt required"})
		return
	}

	s, err := match.Manager.GetSession(matchToken)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
		return
	}

	playerID, err := s.Authorize(joinToken)
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid join token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] Upgrade error: %v", err)
		return
	}

	client := &Client{
		conn:       conn,
		playerID:   playerID,
		opponentID: s.OpponentOf(playerID),
		matchToken: matchToken,
		send:       make(chan []byte, sendBuffer),
	}

	MatchHub.register <- client

	go client.writePump()
	go client.readPump()
}

// runMatchHub runs the hub with match lifecycle logic.
func runMatchHub(h *Hub) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()

			isReconnect := false
			if oldClient, exists := h.clients[client.playerID]; exists {
				log.Printf("[WS] Player %d reconnecting - closing old connection", client.playerID)
				if err := oldClient.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "replaced by new connection"), time.Now().Add(5*time.Second)); err != nil {
					log.Printf("Error writing close control to old client %d: %v", oldClient.playerID, err)
				}
				oldClient.conn.Close()
				select {
				case <-oldClient.send:
				default:
					close(oldClient.send)
				}
				delete(h.clients, client.playerID)
				if room, exists := h.matchRooms[oldClient.matchToken]; exists {
					delete(room, client.playerID)
				}
				isReconnect = true
			}

			h.clients[client.playerID] = client
			if _, exists := h.matchRooms[client.matchToken]; !exists {
				h.matchRooms[client.matchToken] = make(map[int]*Client)
			}
			h.matchRooms[client.matchToken][client.playerID] = client
			h.mu.Unlock()

			log.Printf("[WS] Player %d connected to match %s", client.playerID, client.matchToken)

			s, err := match.Manager.GetSession(client.matchToken)
			if err != nil {
				log.Printf("[WS] Match not found for token %s: %v", client.matchToken, err)
				continue
			}

			client.opponentID = s.OpponentOf(client.playerID)
			s.SetConnected(client.playerID, true)

			h.SendToPlayer(client.playerID, map[string]interface{}{
				"type":        "joined",
				"match_token": client.matchToken,
				"player":      client.playerID,
				"opponent":    client.opponentID,
				"preset":      s.Preset,
				"status":      string(s.Status()),
			})

			if !s.HasStarted() && s.BothConnected() {
				log.Printf("Both players connected - scheduling start of match %s", client.matchToken)

				go func(token string) {
					time.Sleep(150 * time.Millisecond)
					s2, err := match.Manager.GetSession(token)
					if err != nil || s2.HasStarted() || !s2.BothConnected() {
						return
					}
					if err := s2.Start(); err != nil {
						log.Printf("[WS] Start failed for match %s: %v", token, err)
						return
					}

					h.BroadcastToMatch(token, map[string]interface{}{
						"type":    "match_starting",
						"message": "Both players connected! Break shot...",
					})
				}(client.matchToken)
			} else if !s.HasStarted() {
				h.SendToPlayer(client.playerID, map[string]interface{}{
					"type":    "waiting_for_opponent",
					"message": "Waiting for opponent...",
				})
			} else {
				// Resume: hand the reconnecting client the authoritative state
				// plus the journal so it can rebuild its local simulation.
				client.sendResync(s, resumeReason)

				if isReconnect && s.Status() == match.StatusInProgress {
					h.BroadcastToMatch(client.matchToken, map[string]interface{}{
						"type":    "player_connected",
						"player":  client.playerID,
						"message": "Opponent connected",
					})
				}
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if cur, ok := h.clients[client.playerID]; ok && cur == client {
				delete(h.clients, client.playerID)
				if room, exists := h.matchRooms[client.matchToken]; exists {
					delete(room, client.playerID)
					if len(room) == 0 {
						delete(h.matchRooms, client.matchToken)
					}
				}

				log.Printf("[WS] Player %d disconnected from match %s", client.playerID, client.matchToken)

				match.Manager.NoteDisconnect(client.matchToken, client.playerID)

				if s, err := match.Manager.GetSession(client.matchToken); err == nil && s.Status() == match.StatusInProgress {
					go func(token string, playerID int) {
						time.Sleep(500 * time.Millisecond)
						s2, err := match.Manager.GetSession(token)
						if err != nil {
							return
						}
						seat := s2.Seats()[s2.SeatOf(playerID)]
						if seat == nil || seat.Connected || seat.DisconnectedAt == nil {
							return
						}
						grace := reconnectGraceSeconds()
						h.BroadcastToMatch(token, map[string]interface{}{
							"type":            "player_disconnected",
							"player":          playerID,
							"grace_seconds":   grace,
							"disconnected_at": seat.DisconnectedAt.Unix(),
							"message":         fmt.Sprintf("Opponent disconnected. Waiting %d seconds...", grace),
						})
					}(client.matchToken, client.playerID)
				}

				select {
				case <-client.send:
				default:
					close(client.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

func reconnectGraceSeconds() int {
	if wsConfig != nil {
		return wsConfig.ReconnectGraceSeconds
	}
	if match.Manager != nil {
		if cfg := match.Manager.GetConfig(); cfg != nil {
			return cfg.ReconnectGraceSeconds
		}
	}
	return 120
}

// readPump reads messages for a match connection.
func (c *Client) readPump() {
	defer func() {
		MatchHub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error (unexpected) for player %d: %v", c.playerID, err)
			} else {
				log.Printf("WebSocket read error for player %d: %v", c.playerID, err)
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		c.handleMessage(msg)
	}
}

// handleMessage processes incoming match messages.
func (c *Client) handleMessage(msg WSMessage) {
	s, err := match.Manager.GetSession(c.matchToken)
	if err != nil {
		c.sendError("Match not found")
		return
	}

	switch msg.Type {
	case "shot":
		var data ShotData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("Invalid shot data")
			return
		}
		c.handleShot(s, data)

	case "place_cue_ball":
		var data PlaceCueBallData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("Invalid placement data")
			return
		}
		if err := s.PlaceCueBall(c.playerID, physics.Vec2{X: data.X, Y: data.Y}); err != nil {
			c.sendError(err.Error())
		}

	case "pass_turn":
		if err := s.PassTurn(c.playerID); err != nil {
			c.sendError(err.Error())
		}

	case "break_choice":
		var data BreakChoiceData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("Invalid break choice data")
			return
		}
		if err := s.ResolveBreakChoice(c.playerID, data.Rerack); err != nil {
			c.sendError(err.Error())
		}

	case "state_ack":
		var data StateAckData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("Invalid ack data")
			return
		}
		c.handleStateAck(s, data)

	case "get_state":
		c.sendResync(s, queryReason)

	case "concede":
		if err := s.Concede(c.playerID); err != nil {
			c.sendError(err.Error())
		}

	default:
		c.sendError("Unknown message type")
	}
}

// handleShot processes a shot message.
func (c *Client) handleShot(s *match.Session, data ShotData) {
	cmd := physics.ShotCommand{
		Player: c.playerID,
		Angle:  data.Angle,
		Power:  data.Power,
		Spin:   data.Spin,
	}

	// Relay shot params to the opponent immediately (before simulation)
	// so they can start client-side animation while the server computes
	MatchHub.SendToPlayer(c.opponentID, map[string]interface{}{
		"type":   "shot_relay",
		"player": c.playerID,
		"shot":   cmd,
	})

	if _, err := s.SubmitShot(cmd); err != nil {
		c.sendError(err.Error())
		return
	}
	// The session loop broadcasts the state_update with the outcome.
}

// handleStateAck verifies a client digest and forces a resync on mismatch.
func (c *Client) handleStateAck(s *match.Session, data StateAckData) {
	digest, err := strconv.ParseUint(data.Digest, 10, 64)
	if err != nil {
		c.sendError("Invalid digest")
		return
	}

	if s.VerifyAck(data.Seq, digest) {
		return
	}

	log.Printf("[WS] Desync detected for player %d in match %s (seq %d) - sending authoritative state", c.playerID, c.matchToken, data.Seq)
	c.sendResync(s, desyncReason)
}

type resyncReason string

const (
	resumeReason resyncReason = "resume"
	queryReason  resyncReason = "query"
	desyncReason resyncReason = "desync"
)

// sendResync ships the authoritative snapshot plus the full journal to
// this client only. The journal is what lets a client rebuild a bit-exact
// local simulation rather than just repainting ball positions.
func (c *Client) sendResync(s *match.Session, reason resyncReason) {
	snap, err := s.State()
	if err != nil {
		c.sendError(err.Error())
		return
	}

	msg := map[string]interface{}{
		"type":        "resync",
		"reason":      string(reason),
		"match_state": snap,
	}
	if rec, ok := s.ReplayRecord(); ok {
		msg["seq"] = len(rec.Moves) - 1
		msg["replay"] = rec
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[WS] Error marshaling resync for player %d: %v", c.playerID, err)
		return
	}
	if !c.trySend(data) {
		log.Printf("[WS] Resync dropped for player %d (buffer full)", c.playerID)
	}
}
