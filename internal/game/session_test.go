// internal/game/session_test.go
package game

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/crusty/internal/events"
	"github.com/jason-s-yu/crusty/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingEmitter collects events instead of sending them to a broker.
type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (e *recordingEmitter) Enqueue(ev events.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *recordingEmitter) all() []events.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.events)
}

func (e *recordingEmitter) kinds() []events.Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]events.Kind, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (e *recordingEmitter) clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// testCards builds a catalog slice. Prompt i asks for (i % maxBlanks) + 1 responses.
func testCards(prompts, responses, maxBlanks int) ([]models.Card, []models.Card) {
	ps := make([]models.Card, prompts)
	for i := range ps {
		ps[i] = models.Card{
			ID:     fmt.Sprintf("p-%d", i),
			PackID: "base",
			Kind:   models.CardKindPrompt,
			Text:   fmt.Sprintf("prompt %d", i),
			Blanks: i%maxBlanks + 1,
		}
	}
	rs := make([]models.Card, responses)
	for i := range rs {
		rs[i] = models.Card{
			ID:     fmt.Sprintf("r-%d", i),
			PackID: "base",
			Kind:   models.CardKindResponse,
			Text:   fmt.Sprintf("response %d", i),
		}
	}
	return ps, rs
}

func testRules(handSize int) Rules {
	r := DefaultRules()
	r.HandSize = handSize
	r.ScoreTarget = 100
	return r
}

type testGame struct {
	reg       *Registry
	h         *Handle
	players   []uuid.UUID
	em        *recordingEmitter
	prompts   []models.Card
	responses []models.Card
}

// setupTestGame creates a session and joins numPlayers players to it. With
// AutoStart set the game is running by the time it returns.
func setupTestGame(t *testing.T, numPlayers int, rules Rules, maxBlanks int, responses int) *testGame {
	t.Helper()
	tg := &testGame{em: &recordingEmitter{}}
	tg.prompts, tg.responses = testCards(20, responses, maxBlanks)
	tg.reg = NewRegistry(tg.em, time.Minute, quietLogger())

	id := uuid.New()
	h, created, err := tg.reg.GetOrCreate(id, func() (*Session, error) {
		return NewSession(SessionOptions{
			ID:        id,
			Name:      "test game",
			Rules:     rules,
			Prompts:   tg.prompts,
			Responses: tg.responses,
			Seed:      42,
			Logger:    quietLogger(),
		})
	})
	require.NoError(t, err)
	require.True(t, created)
	tg.h = h

	for i := 0; i < numPlayers; i++ {
		tg.join(t, fmt.Sprintf("player-%d", i))
	}
	return tg
}

func (tg *testGame) join(t *testing.T, name string) uuid.UUID {
	t.Helper()
	pid := uuid.New()
	_, err := tg.h.Exec(func(s *Session) error { return s.Join(pid, name) })
	require.NoError(t, err)
	tg.players = append(tg.players, pid)
	return pid
}

func (tg *testGame) session() *Session { return tg.h.session }

func (tg *testGame) hand(pid uuid.UUID) []string {
	p, ok := tg.session().Player(pid)
	if !ok {
		return nil
	}
	return slices.Clone(p.Hand)
}

func (tg *testGame) submit(pid uuid.UUID, cardIDs ...string) error {
	_, err := tg.h.Exec(func(s *Session) error { return s.Submit(pid, cardIDs) })
	return err
}

// submitFromHand plays the first cards of the hand that the prompt asks for.
func (tg *testGame) submitFromHand(pid uuid.UUID) error {
	n := tg.session().Round.Prompt.Responses()
	return tg.submit(pid, tg.hand(pid)[:n]...)
}

// pick has judge choose the submission of winner. A player without a
// submission is looked up under an id no submission has.
func (tg *testGame) pick(judge, winner uuid.UUID) error {
	_, err := tg.h.Exec(func(s *Session) error {
		entry := uuid.New()
		if s.Round != nil {
			if id, ok := s.Round.entries[winner]; ok {
				entry = id
			}
		}
		return s.PickWinner(judge, entry)
	})
	return err
}

func (tg *testGame) pickEntry(judge, entry uuid.UUID) error {
	_, err := tg.h.Exec(func(s *Session) error { return s.PickWinner(judge, entry) })
	return err
}

func (tg *testGame) leave(pid uuid.UUID) error {
	_, err := tg.h.Exec(func(s *Session) error { return s.Leave(pid) })
	return err
}

func (tg *testGame) disconnect(pid uuid.UUID) error {
	_, err := tg.h.Exec(func(s *Session) error { return s.Disconnect(pid) })
	return err
}

// playRound has every connected non-judge submit, then the judge picks the first submission.
func (tg *testGame) playRound(t *testing.T) {
	t.Helper()
	s := tg.session()
	require.NotNil(t, s.Round)
	for _, p := range slices.Clone(s.Players) {
		if p.ID == s.Round.Judge || !p.Connected {
			continue
		}
		require.NoError(t, tg.submitFromHand(p.ID))
		tg.checkConservation(t)
	}
	require.Equal(t, PhaseJudging, s.Round.Phase)
	require.NoError(t, tg.pick(s.Round.Judge, s.Round.order[0]))
	tg.checkConservation(t)
}

// checkConservation asserts that every card drawn from the packs is in exactly
// one place: a hand, a deck pile, a submission or the active prompt slot.
func (tg *testGame) checkConservation(t *testing.T) {
	t.Helper()
	s := tg.session()

	var responses []string
	for _, p := range s.Players {
		responses = append(responses, p.Hand...)
	}
	responses = append(responses, s.Responses.Cards()...)
	prompts := s.Prompts.Cards()
	if s.Round != nil {
		for _, sub := range s.Round.Submissions {
			responses = append(responses, sub...)
		}
		prompts = append(prompts, s.Round.Prompt.ID)
	}

	assert.ElementsMatch(t, ids(tg.responses), responses, "response cards must be conserved")
	assert.ElementsMatch(t, ids(tg.prompts), prompts, "prompt cards must be conserved")
}

func ids(cards []models.Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.ID
	}
	return out
}

// TestRoundScenarioThreePlayers walks one full round with three players and a hand size of 7.
func TestRoundScenarioThreePlayers(t *testing.T) {
	tg := setupTestGame(t, 3, testRules(7), 1, 60)
	s := tg.session()
	judge, a, b := tg.players[0], tg.players[1], tg.players[2]

	require.Equal(t, StatusActive, s.Status, "third join reaches the minimum and starts the game")
	require.NotNil(t, s.Round)
	assert.Equal(t, 1, s.Round.Number)
	assert.Equal(t, PhaseCollecting, s.Round.Phase)
	assert.Equal(t, judge, s.Round.Judge)
	assert.Len(t, tg.hand(a), 7)
	assert.Len(t, tg.hand(b), 7)

	aCard := tg.hand(a)[0]
	bCard := tg.hand(b)[0]

	require.NoError(t, tg.submit(a, aCard))
	assert.Equal(t, PhaseCollecting, s.Round.Phase, "judging waits for every non-judge")
	assert.NotContains(t, tg.hand(a), aCard)

	require.NoError(t, tg.submit(b, bCard))
	assert.Equal(t, PhaseJudging, s.Round.Phase)

	require.NoError(t, tg.pick(judge, a))
	pa, _ := s.Player(a)
	pb, _ := s.Player(b)
	assert.Equal(t, 1, pa.Score)
	assert.Equal(t, 0, pb.Score)
	assert.Contains(t, s.Responses.discard, aCard)
	assert.Contains(t, s.Responses.discard, bCard)

	require.NotNil(t, s.Round)
	assert.Equal(t, 2, s.Round.Number)
	assert.Equal(t, a, s.Round.Judge, "judge moves to the next player")
	assert.Equal(t, PhaseCollecting, s.Round.Phase)
	require.NotNil(t, s.lastRound)
	assert.Equal(t, a, s.lastRound.Winner)
	tg.checkConservation(t)
}

// TestRoundPhasesAreObservedInOrder checks the event stream shows the phases
// of a round without skipping or going back.
func TestRoundPhasesAreObservedInOrder(t *testing.T) {
	tg := setupTestGame(t, 3, testRules(5), 1, 60)
	tg.em.clear()
	tg.playRound(t)

	var phases []events.Kind
	for _, k := range tg.em.kinds() {
		switch k {
		case events.KindRoundDealing, events.KindRoundCollecting, events.KindRoundJudging, events.KindRoundComplete:
			phases = append(phases, k)
		}
	}
	assert.Equal(t, []events.Kind{
		events.KindRoundJudging,
		events.KindRoundComplete,
		events.KindRoundDealing,
		events.KindRoundCollecting,
	}, phases)
}

func TestSubmitTwiceRejected(t *testing.T) {
	tg := setupTestGame(t, 4, testRules(7), 1, 80)
	a := tg.players[1]

	require.NoError(t, tg.submitFromHand(a))
	err := tg.submitFromHand(a)
	assert.ErrorIs(t, err, ErrInvalidSubmission)
	assert.Len(t, tg.hand(a), 6, "the rejected submission leaves the hand alone")
	tg.checkConservation(t)
}

func TestSubmitValidation(t *testing.T) {
	// Prompts alternate between one and two blanks; seed 42 decides which comes first.
	tg := setupTestGame(t, 3, testRules(7), 2, 60)
	s := tg.session()
	judge, a, b := tg.players[0], tg.players[1], tg.players[2]
	need := s.Round.Prompt.Responses()

	t.Run("judge cannot submit", func(t *testing.T) {
		err := tg.submit(judge, "r-0")
		assert.ErrorIs(t, err, ErrInvalidSubmission)
	})

	t.Run("card must be in hand", func(t *testing.T) {
		other := tg.hand(b)[:need]
		err := tg.submit(a, other...)
		assert.ErrorIs(t, err, ErrInvalidSubmission)
	})

	t.Run("card count must match the prompt", func(t *testing.T) {
		err := tg.submit(a, tg.hand(a)[:need+1]...)
		assert.ErrorIs(t, err, ErrInvalidSubmission)
	})

	t.Run("duplicate ids are rejected", func(t *testing.T) {
		if need < 2 {
			t.Skip("single blank prompt")
		}
		c := tg.hand(a)[0]
		err := tg.submit(a, c, c)
		assert.ErrorIs(t, err, ErrInvalidSubmission)
	})

	t.Run("unknown player", func(t *testing.T) {
		err := tg.submit(uuid.New(), "r-0")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	assert.Len(t, tg.hand(a), 7)
	assert.Empty(t, s.Round.Submissions)
	tg.checkConservation(t)
}

// TestFailedCommandEmitsNothing makes sure rejected commands leave no trace.
func TestFailedCommandEmitsNothing(t *testing.T) {
	tg := setupTestGame(t, 3, testRules(7), 1, 60)
	before := tg.h.Snapshot()
	seq := tg.session().Sequence()
	tg.em.clear()

	err := tg.submit(tg.players[0], "r-0")
	require.ErrorIs(t, err, ErrInvalidSubmission)

	assert.Empty(t, tg.em.all())
	assert.Equal(t, seq, tg.session().Sequence())
	assert.Same(t, before, tg.h.Snapshot(), "no new snapshot is published")
}

func TestPickWinnerValidation(t *testing.T) {
	tg := setupTestGame(t, 4, testRules(7), 1, 80)
	judge, a, b, c := tg.players[0], tg.players[1], tg.players[2], tg.players[3]

	err := tg.pick(judge, a)
	assert.ErrorIs(t, err, ErrInvalidSelection, "nothing to judge while collecting")

	require.NoError(t, tg.disconnect(c))
	require.NoError(t, tg.submitFromHand(a))
	require.NoError(t, tg.submitFromHand(b))
	require.Equal(t, PhaseJudging, tg.session().Round.Phase)

	err = tg.pick(a, b)
	assert.ErrorIs(t, err, ErrInvalidSelection, "only the judge picks")

	err = tg.pick(judge, c)
	assert.ErrorIs(t, err, ErrInvalidSelection, "c never submitted")

	err = tg.pick(uuid.New(), a)
	assert.ErrorIs(t, err, ErrNotFound)

	err = tg.pickEntry(judge, b)
	assert.ErrorIs(t, err, ErrInvalidSelection, "submissions are picked by entry id, not by player")

	require.NoError(t, tg.pick(judge, b))
	pb, _ := tg.session().Player(b)
	assert.Equal(t, 1, pb.Score)
}

// TestJudgeRotation: with no leaves every player judges once before anyone judges twice.
func TestJudgeRotation(t *testing.T) {
	tg := setupTestGame(t, 4, testRules(5), 1, 80)
	s := tg.session()

	var judges []uuid.UUID
	for i := 0; i < 8; i++ {
		judges = append(judges, s.Round.Judge)
		tg.playRound(t)
	}

	assert.Equal(t, tg.players, judges[:4])
	assert.Equal(t, judges[:4], judges[4:])
}

// TestJudgeDisconnectAbandonsRound: submissions go back, the next connected
// player judges and rotation continues from there.
func TestJudgeDisconnectAbandonsRound(t *testing.T) {
	tg := setupTestGame(t, 3, testRules(7), 1, 60)
	s := tg.session()
	judge, a, b := tg.players[0], tg.players[1], tg.players[2]

	card := tg.hand(a)[0]
	require.NoError(t, tg.submit(a, card))
	tg.em.clear()

	require.NoError(t, tg.disconnect(judge))

	assert.Contains(t, tg.em.kinds(), events.KindRoundAbandoned)
	assert.Contains(t, tg.hand(a), card, "submission returns to its owner")
	require.NotNil(t, s.Round)
	assert.Equal(t, 2, s.Round.Number)
	assert.Equal(t, a, s.Round.Judge)
	assert.Empty(t, s.Round.Submissions)
	tg.checkConservation(t)

	// only b is a connected non-judge, so one submission moves to judging
	require.NoError(t, tg.submitFromHand(b))
	assert.Equal(t, PhaseJudging, s.Round.Phase)
	require.NoError(t, tg.pick(a, b))

	assert.Equal(t, 3, s.Round.Number)
	assert.Equal(t, b, s.Round.Judge)

	tg.playRound(t)
	assert.Equal(t, a, s.Round.Judge, "the disconnected player is skipped")
	tg.checkConservation(t)
}

func TestJudgeLeaves(t *testing.T) {
	tg := setupTestGame(t, 4, testRules(7), 1, 80)
	s := tg.session()
	judge, a, b := tg.players[0], tg.players[1], tg.players[2]

	require.NoError(t, tg.submitFromHand(b))
	require.NoError(t, tg.leave(judge))

	assert.Equal(t, StatusActive, s.Status)
	assert.Len(t, s.Players, 3)
	assert.Equal(t, 2, s.Round.Number)
	assert.Equal(t, a, s.Round.Judge, "the player after the departed judge judges next")
	assert.Equal(t, a, s.Owner(), "ownership passes to the earliest remaining player")
	assert.Len(t, tg.hand(b), 7)
	tg.checkConservation(t)
}

func TestLeaveForfeitsSubmission(t *testing.T) {
	tg := setupTestGame(t, 4, testRules(7), 1, 80)
	s := tg.session()
	a, b, c := tg.players[1], tg.players[2], tg.players[3]

	require.NoError(t, tg.submitFromHand(a))
	sub := slices.Clone(s.Round.Submissions[a])
	require.NoError(t, tg.leave(a))

	assert.NotContains(t, s.Round.Submissions, a)
	for _, id := range sub {
		assert.Contains(t, s.Responses.discard, id)
	}
	tg.checkConservation(t)

	require.NoError(t, tg.submitFromHand(b))
	assert.Equal(t, PhaseCollecting, s.Round.Phase)
	require.NoError(t, tg.submitFromHand(c))
	assert.Equal(t, PhaseJudging, s.Round.Phase)
}

// TestLeaveCompletesCollection: the last missing submitter leaving moves the round on.
func TestLeaveCompletesCollection(t *testing.T) {
	tg := setupTestGame(t, 4, testRules(7), 1, 80)
	s := tg.session()

	require.NoError(t, tg.submitFromHand(tg.players[1]))
	require.NoError(t, tg.submitFromHand(tg.players[2]))
	require.NoError(t, tg.leave(tg.players[3]))

	assert.Equal(t, PhaseJudging, s.Round.Phase)
	tg.checkConservation(t)
}

func TestDisconnectForfeitsPendingSubmission(t *testing.T) {
	tg := setupTestGame(t, 4, testRules(7), 1, 80)
	s := tg.session()
	a, b, c := tg.players[1], tg.players[2], tg.players[3]

	require.NoError(t, tg.submitFromHand(a))
	require.NoError(t, tg.disconnect(a))

	assert.NotContains(t, s.Round.Submissions, a)
	assert.Len(t, tg.hand(a), 7)

	require.NoError(t, tg.disconnect(b))
	require.NoError(t, tg.submitFromHand(c))
	assert.Equal(t, PhaseJudging, s.Round.Phase, "only one non-judge is still connected")
	tg.checkConservation(t)
}

// TestGameAbandonedBelowMinimum: dropping under three players ends the game.
func TestGameAbandonedBelowMinimum(t *testing.T) {
	tg := setupTestGame(t, 3, testRules(7), 1, 60)
	s := tg.session()

	require.NoError(t, tg.submitFromHand(tg.players[1]))
	require.NoError(t, tg.leave(tg.players[2]))

	assert.Equal(t, StatusAbandoned, s.Status)
	assert.Nil(t, s.Round)
	assert.Equal(t, events.KindGameAbandoned, tg.em.kinds()[len(tg.em.kinds())-1])
	tg.checkConservation(t)

	err := tg.submit(tg.players[1], tg.hand(tg.players[1])[0])
	assert.ErrorIs(t, err, ErrInvalidSubmission)

	_, err = tg.h.Exec(func(s *Session) error { return s.Join(uuid.New(), "late") })
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestGameCompletesAtScoreTarget(t *testing.T) {
	rules := testRules(5)
	rules.ScoreTarget = 2
	tg := setupTestGame(t, 3, rules, 1, 60)
	s := tg.session()

	for s.Status == StatusActive {
		tg.playRound(t)
	}

	assert.Equal(t, StatusCompleted, s.Status)
	assert.Nil(t, s.Round)
	require.NotNil(t, s.lastRound)
	winner, _ := s.Player(s.lastRound.Winner)
	assert.Equal(t, 2, winner.Score)

	kinds := tg.em.kinds()
	assert.Equal(t, events.KindGameCompleted, kinds[len(kinds)-1])
	assert.Equal(t, events.KindRoundComplete, kinds[len(kinds)-2])
	tg.checkConservation(t)

	// sockets closing or players leaving after the end change nothing
	tg.em.clear()
	require.NoError(t, tg.disconnect(tg.players[0]))
	assert.ErrorIs(t, tg.leave(tg.players[1]), ErrSessionClosed)
	assert.Empty(t, tg.em.kinds())
	assert.True(t, s.IsParticipant(tg.players[1]))
}

// TestCardConservationOverManyRounds plays long enough to force reshuffles,
// with joins, leaves and disconnects in between.
func TestCardConservationOverManyRounds(t *testing.T) {
	tg := setupTestGame(t, 5, testRules(10), 2, 70)
	s := tg.session()

	for i := 0; i < 30 && s.Status == StatusActive; i++ {
		switch i {
		case 5:
			require.NoError(t, tg.leave(tg.players[3]))
		case 9:
			tg.join(t, "late")
		case 14:
			require.NoError(t, tg.disconnect(s.Round.Judge))
		case 20:
			require.NoError(t, tg.leave(s.Round.Judge))
		}
		tg.checkConservation(t)
		if s.Status != StatusActive {
			break
		}
		tg.playRound(t)
	}
	tg.checkConservation(t)
}

// TestSequenceNumbersStrictlyIncrease over a busy game.
func TestSequenceNumbersStrictlyIncrease(t *testing.T) {
	tg := setupTestGame(t, 4, testRules(5), 2, 80)
	for i := 0; i < 5; i++ {
		tg.playRound(t)
	}
	require.NoError(t, tg.disconnect(tg.players[2]))
	require.NoError(t, tg.leave(tg.players[1]))

	evs := tg.em.all()
	require.NotEmpty(t, evs)
	for i, ev := range evs {
		assert.Equal(t, uint64(i+1), ev.Sequence)
		assert.Equal(t, tg.h.ID, ev.GameID)
	}
	assert.Equal(t, evs[len(evs)-1].Sequence, tg.h.Snapshot().Sequence)
}

func TestJoinRules(t *testing.T) {
	rules := testRules(7)
	rules.AutoStart = false
	rules.MaxPlayers = 3
	tg := setupTestGame(t, 3, rules, 1, 60)
	s := tg.session()

	assert.Equal(t, StatusLobby, s.Status, "auto start is off")

	_, err := tg.h.Exec(func(s *Session) error { return s.Join(uuid.New(), "fourth") })
	assert.ErrorIs(t, err, ErrSessionFull)

	a := tg.players[1]
	require.NoError(t, tg.disconnect(a))
	tg.em.clear()
	_, err = tg.h.Exec(func(s *Session) error { return s.Join(a, "again") })
	require.NoError(t, err)
	pa, _ := s.Player(a)
	assert.True(t, pa.Connected)
	assert.Equal(t, []events.Kind{events.KindPlayerReconnected}, tg.em.kinds())
	assert.Len(t, s.Players, 3, "reconnecting does not take a seat")
}

func TestStartByOwner(t *testing.T) {
	rules := testRules(7)
	rules.AutoStart = false
	tg := setupTestGame(t, 2, rules, 1, 60)
	s := tg.session()
	owner := tg.players[0]

	start := func(by uuid.UUID) error {
		_, err := tg.h.Exec(func(s *Session) error { return s.Start(by) })
		return err
	}

	assert.ErrorIs(t, start(owner), ErrNotEnoughPlayers)
	third := tg.join(t, "third")
	assert.ErrorIs(t, start(third), ErrNotOwner)
	assert.ErrorIs(t, start(uuid.New()), ErrNotFound)

	require.NoError(t, start(owner))
	assert.Equal(t, StatusActive, s.Status)
	assert.Equal(t, 1, s.Round.Number)
	assert.ErrorIs(t, start(owner), ErrAlreadyStarted)
}

func TestMidGameJoinerIsDealtIn(t *testing.T) {
	tg := setupTestGame(t, 3, testRules(7), 1, 80)
	s := tg.session()

	require.NoError(t, tg.submitFromHand(tg.players[1]))
	require.NoError(t, tg.submitFromHand(tg.players[2]))
	require.Equal(t, PhaseJudging, s.Round.Phase)

	late := tg.join(t, "late")
	assert.Len(t, tg.hand(late), 7)
	assert.Equal(t, PhaseJudging, s.Round.Phase, "a late joiner does not reopen collection")

	require.NoError(t, tg.pick(tg.players[0], tg.players[1]))
	require.NoError(t, tg.submitFromHand(late))
	tg.checkConservation(t)
}

func TestRetractSubmission(t *testing.T) {
	tg := setupTestGame(t, 3, testRules(7), 1, 60)
	s := tg.session()
	a := tg.players[1]

	retract := func() error {
		_, err := tg.h.Exec(func(s *Session) error { return s.Retract(a) })
		return err
	}

	card := tg.hand(a)[0]
	require.NoError(t, tg.submit(a, card))
	require.NoError(t, retract())
	assert.Contains(t, tg.hand(a), card)
	assert.Empty(t, s.Round.Submissions)
	assert.ErrorIs(t, retract(), ErrInvalidSubmission)

	require.NoError(t, tg.submit(a, card), "a retracted player may submit again")
	tg.checkConservation(t)
}

func TestSnapshotHidesSubmissionsUntilJudging(t *testing.T) {
	tg := setupTestGame(t, 3, testRules(7), 1, 60)
	a, b := tg.players[1], tg.players[2]

	require.NoError(t, tg.submitFromHand(a))
	snap := tg.h.Snapshot()
	require.NotNil(t, snap.Round)
	assert.Equal(t, 1, snap.Round.Submitted)
	assert.Empty(t, snap.Round.Submissions)
	info, ok := snap.Player(a)
	require.True(t, ok)
	assert.True(t, info.Submitted)
	assert.Equal(t, 6, info.HandSize)

	hand, ok := snap.Hand(a)
	require.True(t, ok)
	assert.Len(t, hand, 6)

	require.NoError(t, tg.submitFromHand(b))
	snap = tg.h.Snapshot()
	assert.Equal(t, PhaseJudging, snap.Round.Phase)
	assert.Len(t, snap.Round.Submissions, 2)
}

func TestNewSessionValidation(t *testing.T) {
	_, responses := testCards(1, 10, 1)
	_, err := NewSession(SessionOptions{Rules: DefaultRules(), Responses: responses, Logger: quietLogger()})
	assert.ErrorIs(t, err, ErrDeckExhausted, "a game needs at least one prompt")

	prompts, _ := testCards(1, 0, 1)
	bad := DefaultRules()
	bad.HandSize = 2
	_, err = NewSession(SessionOptions{Rules: bad, Prompts: prompts, Logger: quietLogger()})
	assert.ErrorIs(t, err, ErrInvalidRules)

	rules := testRules(7)
	_, err = NewSession(SessionOptions{Rules: rules, Prompts: prompts, Logger: quietLogger()})
	assert.ErrorIs(t, err, ErrDeckExhausted, "a game without response cards can never be played")

	prompts, responses = testCards(1, 13, 1)
	_, err = NewSession(SessionOptions{Rules: rules, Prompts: prompts, Responses: responses, Logger: quietLogger()})
	assert.ErrorIs(t, err, ErrDeckExhausted, "13 cards cannot fill two hands of 7")

	prompts, responses = testCards(1, 14, 1)
	_, err = NewSession(SessionOptions{Rules: rules, Prompts: prompts, Responses: responses, Logger: quietLogger()})
	assert.NoError(t, err)
}

func TestHandMatchesSnapshot(t *testing.T) {
	tg := setupTestGame(t, 3, testRules(5), 1, 60)
	for _, pid := range tg.players {
		cards, err := tg.session().Hand(pid)
		require.NoError(t, err)
		fromSnap, ok := tg.h.Snapshot().Hand(pid)
		require.True(t, ok)
		assert.Equal(t, ids(fromSnap), ids(cards))
		assert.ElementsMatch(t, tg.hand(pid), ids(cards))
	}

	_, err := tg.session().Hand(uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestJudgingKeepsSubmittersAnonymous: nothing published while judging ties a
// submission to a player; scoring the round names them.
func TestJudgingKeepsSubmittersAnonymous(t *testing.T) {
	tg := setupTestGame(t, 4, testRules(7), 1, 80)
	s := tg.session()
	judge, a, b, c := tg.players[0], tg.players[1], tg.players[2], tg.players[3]
	submitters := []uuid.UUID{a, b, c}

	tg.em.clear()
	for _, pid := range submitters {
		require.NoError(t, tg.submitFromHand(pid))
	}
	require.Equal(t, PhaseJudging, s.Round.Phase)

	snap := tg.h.Snapshot()
	require.Len(t, snap.Round.Submissions, 3)
	round, err := json.Marshal(snap.Round)
	require.NoError(t, err)

	var judging []byte
	for _, ev := range tg.em.all() {
		if ev.Kind == events.KindRoundJudging {
			judging, err = json.Marshal(ev.Payload)
			require.NoError(t, err)
		}
	}
	require.NotNil(t, judging)

	for _, pid := range submitters {
		assert.NotContains(t, string(round), pid.String())
		assert.NotContains(t, string(judging), pid.String())
	}
	for _, sub := range snap.Round.Submissions {
		assert.Nil(t, sub.PlayerID)
		assert.NotContains(t, submitters, sub.ID, "entry ids are not player ids")
	}

	entry := snap.Round.Submissions[1]
	require.NoError(t, tg.pickEntry(judge, entry.ID))

	require.NotNil(t, s.lastRound)
	assert.Equal(t, ids(entry.Cards), ids(s.lastRound.WinningCards))
	require.Len(t, s.lastRound.Submissions, 3)
	revealed := make(map[uuid.UUID]uuid.UUID)
	for _, sub := range s.lastRound.Submissions {
		require.NotNil(t, sub.PlayerID)
		revealed[sub.ID] = *sub.PlayerID
	}
	assert.Equal(t, s.lastRound.Winner, revealed[entry.ID])
	assert.ElementsMatch(t, submitters, []uuid.UUID{revealed[snap.Round.Submissions[0].ID], revealed[snap.Round.Submissions[1].ID], revealed[snap.Round.Submissions[2].ID]})

	// entry ids are fresh every round
	require.Equal(t, a, s.Round.Judge)
	for _, pid := range []uuid.UUID{b, c, judge} {
		require.NoError(t, tg.submitFromHand(pid))
	}
	require.Equal(t, PhaseJudging, s.Round.Phase)
	for _, sub := range tg.h.Snapshot().Round.Submissions {
		_, reused := revealed[sub.ID]
		assert.False(t, reused)
	}
}
