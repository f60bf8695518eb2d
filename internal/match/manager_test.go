package match

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playcue/backend/internal/physics"
	"github.com/playcue/backend/internal/rules"
)

const (
	creator = 101
	joiner  = 202
)

// recorder captures broadcasts so tests can assert on the message flow
// without a socket layer.
type recorder struct {
	mu       sync.Mutex
	messages []map[string]interface{}
	direct   map[int][]map[string]interface{}
}

func newRecorder() *recorder {
	return &recorder{direct: make(map[int][]map[string]interface{})}
}

func (r *recorder) BroadcastToMatch(token string, message interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := message.(map[string]interface{}); ok {
		r.messages = append(r.messages, m)
	}
}

func (r *recorder) SendToPlayer(playerID int, message interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := message.(map[string]interface{}); ok {
		r.direct[playerID] = append(r.direct[playerID], m)
	}
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.messages))
	for _, m := range r.messages {
		if t, ok := m["type"].(string); ok {
			out = append(out, t)
		}
	}
	return out
}

func (r *recorder) last() map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return nil
	}
	return r.messages[len(r.messages)-1]
}

// newTestManager builds a manager with no database, redis or preset store;
// persistence is skipped and the default physics config applies.
func newTestManager(t *testing.T) (*MatchManager, *recorder) {
	t.Helper()
	mm := NewMatchManager(nil, nil, nil, nil)
	rec := newRecorder()
	mm.SetBroadcaster(rec)
	return mm, rec
}

func startedSession(t *testing.T, mm *MatchManager) *Session {
	t.Helper()
	s, err := mm.CreateMatch(creator, "Ann", "", nil, nil)
	require.NoError(t, err)
	_, err = mm.JoinMatch(s.Token, joiner, "Ben")
	require.NoError(t, err)
	require.NoError(t, s.Start())
	return s
}

// softBreak is a deterministic break that reaches no rail and pockets
// nothing, always triggering the insufficient-break choice.
func softBreak(player int) physics.ShotCommand {
	return physics.ShotCommand{Player: player, Angle: 0, Power: 0.2}
}

func TestCreateAndJoinMatch(t *testing.T) {
	mm, _ := newTestManager(t)

	s, err := mm.CreateMatch(creator, "Ann", "", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, s.Status())
	assert.Equal(t, "standard", s.Preset)
	assert.NotEmpty(t, s.Token)

	_, err = mm.CreateMatch(creator, "Ann", "", nil, nil)
	require.ErrorIs(t, err, ErrAlreadyInMatch)

	_, err = mm.JoinMatch(s.Token, creator, "Ann")
	require.ErrorIs(t, err, ErrAlreadyInMatch)

	joined, err := mm.JoinMatch(s.Token, joiner, "Ben")
	require.NoError(t, err)
	assert.Same(t, s, joined)

	_, err = mm.JoinMatch(s.Token, 303, "Cay")
	require.ErrorIs(t, err, ErrMatchFull)

	// Joined but not started: no state yet, still waiting.
	assert.Equal(t, StatusWaiting, s.Status())
	_, err = s.State()
	require.ErrorIs(t, err, ErrMatchNotStarted)

	got, err := mm.GetSession(s.Token)
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = mm.GetSession("no-such-token")
	require.ErrorIs(t, err, ErrMatchNotFound)

	got, err = mm.GetSessionForPlayer(joiner)
	require.NoError(t, err)
	assert.Same(t, s, got)
}

func TestAuthorizeJoinTokens(t *testing.T) {
	mm, _ := newTestManager(t)
	s := startedSession(t, mm)

	seats := s.Seats()
	require.NotNil(t, seats[0])
	require.NotNil(t, seats[1])

	// Seats() copies hide nothing here; tokens come from the live seats.
	id, err := s.Authorize(s.seats[0].JoinToken)
	require.NoError(t, err)
	assert.Equal(t, creator, id)

	id, err = s.Authorize(s.seats[1].JoinToken)
	require.NoError(t, err)
	assert.Equal(t, joiner, id)

	_, err = s.Authorize("bogus")
	require.ErrorIs(t, err, ErrBadJoinToken)

	assert.Equal(t, joiner, s.OpponentOf(creator))
	assert.Equal(t, creator, s.OpponentOf(joiner))
	assert.Equal(t, 0, s.OpponentOf(999))
}

func TestStartArmsMatch(t *testing.T) {
	mm, rec := newTestManager(t)
	s := startedSession(t, mm)

	assert.Equal(t, StatusInProgress, s.Status())
	require.NotNil(t, s.StartedAt)

	snap, err := s.State()
	require.NoError(t, err)
	assert.Equal(t, rules.PhaseBreak, snap.Phase)
	assert.Equal(t, creator, snap.Current)

	types := rec.types()
	require.NotEmpty(t, types)
	assert.Equal(t, "state_update", types[len(types)-1])
	assert.Equal(t, "start", rec.last()["move"])

	// Start is idempotent.
	require.NoError(t, s.Start())
}

func TestOutOfTurnShotRejected(t *testing.T) {
	mm, _ := newTestManager(t)
	s := startedSession(t, mm)

	_, err := s.SubmitShot(softBreak(joiner))
	require.ErrorIs(t, err, rules.ErrNotYourTurn)

	// State unchanged: still the breaker's turn, no shots on the clock.
	snap, err := s.State()
	require.NoError(t, err)
	assert.Equal(t, creator, snap.Current)
	assert.Equal(t, 0, snap.ShotCount)
}

func TestShotFlowWithBreakChoice(t *testing.T) {
	mm, rec := newTestManager(t)
	s := startedSession(t, mm)

	out, err := s.SubmitShot(softBreak(creator))
	require.NoError(t, err)
	assert.True(t, out.Foul)
	assert.Equal(t, rules.FoulInsufficientBreak, out.FoulReason)
	assert.Equal(t, joiner, out.PendingChoice)

	assert.True(t, s.VerifyAck(out.Shot.Seq, out.Digest))
	assert.False(t, s.VerifyAck(out.Shot.Seq, out.Digest+1))
	assert.False(t, s.VerifyAck(99, out.Digest))

	last := rec.last()
	assert.Equal(t, "state_update", last["type"])
	assert.Equal(t, "shot", last["move"])

	// The shooter cannot answer the opponent's choice.
	err = s.ResolveBreakChoice(creator, true)
	require.Error(t, err)

	// Keep the table: open phase, chooser gets ball in hand.
	require.NoError(t, s.ResolveBreakChoice(joiner, false))
	snap, err := s.State()
	require.NoError(t, err)
	assert.Equal(t, rules.PhaseOpen, snap.Phase)
	assert.Equal(t, joiner, snap.Current)
	assert.Equal(t, joiner, snap.BallInHand)

	require.NoError(t, s.PlaceCueBall(joiner, physics.Vec2{X: 0.5, Y: 0.4}))
	require.NoError(t, s.PassTurn(joiner))

	snap, err = s.State()
	require.NoError(t, err)
	assert.Equal(t, creator, snap.Current)

	rec2, ok := s.ReplayRecord()
	require.True(t, ok)
	assert.Equal(t, 4, len(rec2.Moves)) // shot, keep, place, pass
}

func TestTimeoutFlowAndForfeit(t *testing.T) {
	mm, rec := newTestManager(t)
	s := startedSession(t, mm)

	out, err := mm.HandleTurnTimeout(s.Token, creator)
	require.NoError(t, err)
	assert.True(t, out.Foul)
	assert.Equal(t, rules.FoulTimeout, out.FoulReason)
	assert.Equal(t, joiner, out.BallInHand)

	// Stale deadline for a player no longer awaited is rejected.
	_, err = mm.HandleTurnTimeout(s.Token, creator)
	require.Error(t, err)

	_, err = mm.HandleTurnTimeout(s.Token, joiner)
	require.NoError(t, err)
	_, err = mm.HandleTurnTimeout(s.Token, creator)
	require.NoError(t, err)
	_, err = mm.HandleTurnTimeout(s.Token, joiner)
	require.NoError(t, err)

	// Third consecutive timeout by the breaker forfeits the match.
	out, err = mm.HandleTurnTimeout(s.Token, creator)
	require.NoError(t, err)
	assert.Equal(t, joiner, out.Winner)
	assert.Equal(t, rules.EndTimeoutForfeit, out.EndReason)

	assert.Equal(t, StatusCompleted, s.Status())
	assert.Contains(t, rec.types(), "match_ended")

	_, err = s.SubmitShot(softBreak(joiner))
	require.ErrorIs(t, err, rules.ErrMatchEnded)
}

func TestConcedeEndsMatch(t *testing.T) {
	mm, rec := newTestManager(t)
	s := startedSession(t, mm)

	require.NoError(t, s.Concede(joiner))

	snap, err := s.State()
	require.NoError(t, err)
	assert.Equal(t, rules.PhaseEnded, snap.Phase)
	assert.Equal(t, creator, snap.Winner)
	assert.Equal(t, rules.EndConcede, snap.EndReason)
	assert.Equal(t, StatusCompleted, s.Status())

	last := rec.last()
	assert.Equal(t, "match_ended", last["type"])
	assert.Equal(t, creator, last["winner"])
}

func TestCommandsBeforeStart(t *testing.T) {
	mm, _ := newTestManager(t)
	s, err := mm.CreateMatch(creator, "Ann", "", nil, nil)
	require.NoError(t, err)

	_, err = s.SubmitShot(softBreak(creator))
	require.ErrorIs(t, err, ErrMatchNotStarted)
	err = s.PlaceCueBall(creator, physics.Vec2{X: 0.5, Y: 0.4})
	require.ErrorIs(t, err, ErrMatchNotStarted)
	_, err = s.HandleTimeout(creator)
	require.ErrorIs(t, err, ErrMatchNotStarted)
}

func TestCustomConfigAndValidation(t *testing.T) {
	mm, _ := newTestManager(t)

	bad := physics.DefaultConfig()
	bad.BallRadius = -1
	_, err := mm.CreateMatch(creator, "Ann", "", &bad, nil)
	var cfgErr *physics.ConfigError
	require.ErrorAs(t, err, &cfgErr)

	good := physics.DefaultConfig()
	good.RollingFriction = 0.08
	s, err := mm.CreateMatch(creator, "Ann", "", &good, nil)
	require.NoError(t, err)
	assert.Equal(t, "custom", s.Preset)
	assert.Equal(t, 0.08, s.Config().RollingFriction)
}

func TestCustomRackLayout(t *testing.T) {
	mm, _ := newTestManager(t)

	// A practice layout: the standard triangle mirrored to the other half.
	cfg := physics.DefaultConfig()
	rack := physics.StandardRack(cfg)
	for i := range rack {
		rack[i].Position.X = cfg.TableLength - rack[i].Position.X
	}

	s, err := mm.CreateMatch(creator, "Ann", "", nil, rack)
	require.NoError(t, err)
	_, err = mm.JoinMatch(s.Token, joiner, "Ben")
	require.NoError(t, err)
	require.NoError(t, s.Start())

	snap, err := s.State()
	require.NoError(t, err)
	cue := snap.Balls[physics.CueBallID]
	assert.InDelta(t, cfg.TableLength-cfg.TableLength/3, cue.Position.X, 1e-9)

	// The journal records the edited layout, so replays reproduce it.
	rec, ok := s.ReplayRecord()
	require.True(t, ok)
	assert.Equal(t, rack, rec.Rack)

	// An unplayable layout is rejected before the match exists.
	overlap := physics.StandardRack(cfg)
	overlap[1].Position = overlap[2].Position
	_, err = mm.CreateMatch(303, "Cay", "", nil, overlap)
	require.ErrorIs(t, err, physics.ErrBadRack)
}

func TestRemoveSessionFreesPlayers(t *testing.T) {
	mm, _ := newTestManager(t)
	s := startedSession(t, mm)

	mm.RemoveSession(s.Token)
	assert.Equal(t, 0, mm.ActiveSessionCount())

	_, err := mm.GetSessionForPlayer(creator)
	require.ErrorIs(t, err, ErrMatchNotFound)

	// Players can start fresh matches afterwards.
	_, err = mm.CreateMatch(creator, "Ann", "", nil, nil)
	require.NoError(t, err)

	// The stopped loop rejects straggler commands instead of hanging.
	_, err = s.State()
	require.ErrorIs(t, err, ErrSessionClosed)
}

func TestDisconnectTracking(t *testing.T) {
	mm, _ := newTestManager(t)
	s := startedSession(t, mm)

	mm.NoteDisconnect(s.Token, joiner)
	seats := s.Seats()
	require.NotNil(t, seats[1])
	assert.False(t, seats[1].Connected)
	assert.NotNil(t, seats[1].DisconnectedAt)
	assert.False(t, s.BothConnected())

	s.SetConnected(joiner, true)
	seats = s.Seats()
	assert.True(t, seats[1].Connected)
	assert.Nil(t, seats[1].DisconnectedAt)

	// The match never paused.
	assert.Equal(t, StatusInProgress, s.Status())
}

func TestParseMember(t *testing.T) {
	token, player := parseMember(memberFor("abc-123", 42))
	assert.Equal(t, "abc-123", token)
	assert.Equal(t, 42, player)

	token, player = parseMember("garbage")
	assert.Equal(t, "", token)
	assert.Equal(t, 0, player)

	token, player = parseMember("m:tok:p:notanumber")
	assert.Equal(t, "", token)
	assert.Equal(t, 0, player)
}
