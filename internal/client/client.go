package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/playcue/backend/internal/physics"
	"github.com/playcue/backend/internal/replay"
	"github.com/playcue/backend/internal/rules"
)

// ErrDigestMismatch reports that the local simulation diverged from the
// server's. The connection survives it: the failed ack makes the server
// answer with an authoritative resync and the mirror is rebuilt from the
// journal.
var ErrDigestMismatch = errors.New("event digest mismatch")

// Update is one server message, decoded as far as the client understands
// it. Seq is the journal index of the move that produced a state_update;
// shot acks use the shot's own sequence number, which rides inside the
// outcome.
type Update struct {
	Type    string
	Move    string
	Reason  string
	Seq     int
	State   *rules.MatchSnapshot
	Outcome *rules.ShotOutcome
	Winner  int
	Message string
	Err     error
}

// serverMessage covers every field any server-to-client message carries.
type serverMessage struct {
	Type       string               `json:"type"`
	Move       string               `json:"move"`
	Seq        *int                 `json:"seq"`
	MatchState *rules.MatchSnapshot `json:"match_state"`
	Outcome    *rules.ShotOutcome   `json:"outcome"`
	Record     *replay.Move         `json:"record"`
	Replay     *replay.Record       `json:"replay"`
	Reason     string               `json:"reason"`
	Message    string               `json:"message"`
	Player     int                  `json:"player"`
	Winner     int                  `json:"winner"`
}

// Client is one player's connection to a live match. With prediction
// enabled it keeps a full local rule engine in lockstep by replaying every
// broadcast move, and acknowledges each shot's event digest so the server
// can catch divergence.
type Client struct {
	conn    *websocket.Conn
	token   string
	predict bool

	mu       sync.Mutex
	playerID int
	mirror   *rules.Match
	applied  int
	desyncs  int

	writeMu   sync.Mutex
	updates   chan Update
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Client before it starts reading.
type Option func(*Client)

// WithPrediction turns on the local mirror simulation.
func WithPrediction() Option {
	return func(c *Client) { c.predict = true }
}

// Join dials the match websocket and starts reading server updates.
// baseURL is the server origin, e.g. "http://localhost:8080"; the scheme
// is rewritten for websockets.
func Join(baseURL, matchToken, joinToken string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("bad server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/v1/matches/" + matchToken + "/ws"
	q := u.Query()
	q.Set("pt", joinToken)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.String(), err)
	}

	c := &Client{
		conn:    conn,
		token:   matchToken,
		updates: make(chan Update, 64),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}

	go c.readLoop()
	return c, nil
}

// Updates delivers decoded server messages in arrival order. The channel
// closes when the connection drops.
func (c *Client) Updates() <-chan Update { return c.updates }

// Token returns the match token this client joined.
func (c *Client) Token() string { return c.token }

// PlayerID returns the identity the server assigned, zero before joined.
func (c *Client) PlayerID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID
}

// Desyncs counts digest mismatches seen so far.
func (c *Client) Desyncs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desyncs
}

// LocalState returns the mirror's snapshot, if the mirror exists yet.
func (c *Client) LocalState() (rules.MatchSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mirror == nil {
		return rules.MatchSnapshot{}, false
	}
	return c.mirror.Snapshot(), true
}

func (c *Client) send(msgType string, data interface{}) error {
	env := struct {
		Type string      `json:"type"`
		Data interface{} `json:"data,omitempty"`
	}{Type: msgType, Data: data}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, raw)
}

// SubmitShot asks the server to play a shot. The server decides the
// shooter from the connection, so no player id travels with it.
func (c *Client) SubmitShot(angle, power float64, spin physics.Vec2) error {
	return c.send("shot", map[string]interface{}{
		"angle": angle,
		"power": power,
		"spin":  spin,
	})
}

// PlaceCueBall places the cue ball during ball-in-hand.
func (c *Client) PlaceCueBall(pos physics.Vec2) error {
	return c.send("place_cue_ball", map[string]interface{}{"x": pos.X, "y": pos.Y})
}

// PassTurn ends a ball-in-hand turn after placement.
func (c *Client) PassTurn() error {
	return c.send("pass_turn", nil)
}

// BreakChoice answers a keep-or-rerack decision.
func (c *Client) BreakChoice(rerack bool) error {
	return c.send("break_choice", map[string]interface{}{"rerack": rerack})
}

// Concede forfeits the match.
func (c *Client) Concede() error {
	return c.send("concede", nil)
}

// RequestState asks for an authoritative resync.
func (c *Client) RequestState() error {
	return c.send("get_state", nil)
}

func (c *Client) ack(shotSeq int, digest uint64) error {
	return c.send("state_ack", map[string]interface{}{
		"seq":    shotSeq,
		"digest": strconv.FormatUint(digest, 10),
	})
}

// Close shuts the connection down politely.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Client) readLoop() {
	defer close(c.updates)

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				log.Printf("[CLIENT] read error: %v", err)
			}
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("[CLIENT] bad message: %v", err)
			continue
		}

		up := c.handleServer(msg)
		select {
		case c.updates <- up:
		case <-c.done:
			return
		}
	}
}

func (c *Client) handleServer(msg serverMessage) Update {
	up := Update{
		Type:    msg.Type,
		Move:    msg.Move,
		Reason:  msg.Reason,
		State:   msg.MatchState,
		Outcome: msg.Outcome,
		Winner:  msg.Winner,
		Message: msg.Message,
	}
	if msg.Seq != nil {
		up.Seq = *msg.Seq
	}

	switch msg.Type {
	case "joined":
		c.mu.Lock()
		c.playerID = msg.Player
		c.mu.Unlock()

	case "resync":
		if c.predict && msg.Replay != nil {
			if err := c.rebuildMirror(*msg.Replay); err != nil {
				up.Err = err
			}
		}

	case "state_update":
		if c.predict {
			up.Err = c.advanceMirror(msg)
		}

	case "error":
		up.Err = errors.New(msg.Message)
	}

	return up
}

// rebuildMirror replays the full journal into a fresh rule engine. The
// playback verifies recorded digests on the way, so a mirror built here is
// bit-exact with the server.
func (c *Client) rebuildMirror(rec replay.Record) error {
	pb, err := replay.NewPlayback(rec)
	if err != nil {
		return fmt.Errorf("rebuild local match: %w", err)
	}
	if _, err := pb.RunAll(); err != nil {
		return fmt.Errorf("rebuild local match: %w", err)
	}

	c.mu.Lock()
	c.mirror = pb.Match()
	c.applied = len(rec.Moves)
	c.mu.Unlock()
	return nil
}

// advanceMirror applies one broadcast move to the local mirror and, for
// shots, acknowledges the locally computed digest. Any gap or rejected
// move falls back to a full resync request.
func (c *Client) advanceMirror(msg serverMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mirror == nil || msg.Move == "start" {
		// No local history yet; fetch the journal.
		if err := c.RequestState(); err != nil {
			log.Printf("[CLIENT] resync request failed: %v", err)
		}
		return nil
	}
	if msg.Seq == nil || msg.Record == nil {
		return nil
	}
	if *msg.Seq != c.applied {
		log.Printf("[CLIENT] move gap: have %d, server sent seq %d", c.applied, *msg.Seq)
		if err := c.RequestState(); err != nil {
			log.Printf("[CLIENT] resync request failed: %v", err)
		}
		return nil
	}

	out, err := c.applyMove(*msg.Record)
	if err != nil {
		c.desyncs++
		log.Printf("[CLIENT] local apply failed at seq %d: %v", *msg.Seq, err)
		if reqErr := c.RequestState(); reqErr != nil {
			log.Printf("[CLIENT] resync request failed: %v", reqErr)
		}
		return fmt.Errorf("%w: %v", ErrDigestMismatch, err)
	}
	c.applied++

	if msg.Record.Type == replay.MoveShot && out != nil {
		if err := c.ack(out.Shot.Seq, out.Digest); err != nil {
			log.Printf("[CLIENT] ack failed: %v", err)
		}
		if msg.Outcome != nil && out.Digest != msg.Outcome.Digest {
			c.desyncs++
			log.Printf("[CLIENT] digest mismatch at shot %d: local %d, server %d",
				out.Shot.Seq, out.Digest, msg.Outcome.Digest)
			return ErrDigestMismatch
		}
	}
	return nil
}

func (c *Client) applyMove(mv replay.Move) (*rules.ShotOutcome, error) {
	switch mv.Type {
	case replay.MoveShot:
		if mv.Shot == nil {
			return nil, errors.New("shot move without a command")
		}
		return c.mirror.ApplyShot(*mv.Shot)
	case replay.MovePlaceBall:
		if mv.Position == nil {
			return nil, errors.New("placement move without a position")
		}
		return nil, c.mirror.PlaceCueBall(mv.Player, *mv.Position)
	case replay.MovePass:
		return nil, c.mirror.PassTurn(mv.Player)
	case replay.MoveKeepTable:
		return nil, c.mirror.ResolveBreakChoice(mv.Player, false)
	case replay.MoveRerack:
		return nil, c.mirror.ResolveBreakChoice(mv.Player, true)
	case replay.MoveTimeout:
		return c.mirror.ApplyTimeout(mv.Player)
	case replay.MoveConcede:
		return nil, c.mirror.Concede(mv.Player)
	}
	return nil, fmt.Errorf("unknown move type %q", mv.Type)
}

// Prediction is what a locally simulated shot produced ahead of the
// server's confirmation.
type Prediction struct {
	Events []physics.SimulationEvent
	Balls  []physics.Ball
	Digest uint64
}

// Predict runs a shot against the mirror's world without committing
// anything; the world is snapshotted and restored around the simulation.
// Useful for rendering the stroke while the authoritative update is in
// flight.
func (c *Client) Predict(angle, power float64, spin physics.Vec2) (*Prediction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mirror == nil {
		return nil, errors.New("no local state to predict from")
	}

	w := c.mirror.World()
	saved := w.Snapshot()
	defer w.Restore(saved)

	cmd := physics.ShotCommand{
		Player: c.playerID,
		Angle:  angle,
		Power:  power,
		Spin:   spin,
	}
	if err := w.ApplyShot(cmd); err != nil {
		return nil, err
	}
	events := w.Simulate()
	return &Prediction{
		Events: events,
		Balls:  w.Balls(),
		Digest: physics.DigestEvents(events),
	}, nil
}
