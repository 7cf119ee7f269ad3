// internal/game/session.go
package game

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/crusty/internal/events"
	"github.com/jason-s-yu/crusty/internal/models"
	"github.com/sirupsen/logrus"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusLobby     Status = "lobby"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
)

// Terminal reports whether the session can no longer change.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// Player is a seated participant. Hand holds response card ids.
type Player struct {
	ID        uuid.UUID
	Name      string
	Hand      []string
	Score     int
	Connected bool
	JoinedAt  time.Time
}

func (p *Player) holds(cardID string) bool {
	return slices.Contains(p.Hand, cardID)
}

func (p *Player) removeFromHand(cardIDs []string) {
	p.Hand = slices.DeleteFunc(p.Hand, func(id string) bool {
		return slices.Contains(cardIDs, id)
	})
}

// RoundSummary is what survives of a scored round.
type RoundSummary struct {
	Number       int              `json:"number"`
	Prompt       models.Card      `json:"prompt"`
	Judge        uuid.UUID        `json:"judge"`
	Winner       uuid.UUID        `json:"winner"`
	WinningCards []models.Card    `json:"winning_cards"`
	Submissions  []SubmissionView `json:"submissions"`
}

// SessionOptions configures a new session.
type SessionOptions struct {
	ID        uuid.UUID
	Name      string
	Rules     Rules
	Prompts   []models.Card
	Responses []models.Card
	Seed      uint64 // shuffle seed; zero picks a random one
	Now       func() time.Time
	Logger    *logrus.Logger
}

// Session is one game. Its methods are not safe for concurrent use: every
// call goes through a Handle, which holds the session lock.
type Session struct {
	ID        uuid.UUID
	Name      string
	Rules     Rules
	Status    Status
	Players   []*Player // join order; Players[0] owns the game
	Round     *Round    // nil outside of an active round
	Prompts   *Deck
	Responses *Deck
	CreatedAt time.Time

	judgeIdx  int // index into Players of the current judge, -1 before the first round
	roundNo   int
	lastRound *RoundSummary
	cards     map[string]models.Card
	rng       *rand.Rand
	banned    map[uuid.UUID]bool
	chat      []ChatMessage

	seq     uint64
	pending []events.Event

	now func() time.Time
	log *logrus.Entry
}

// NewSession validates opts and builds a session in the lobby state with both decks shuffled.
func NewSession(opts SessionOptions) (*Session, error) {
	if err := opts.Rules.Validate(); err != nil {
		return nil, err
	}
	if len(opts.Prompts) == 0 {
		return nil, fmt.Errorf("%w: no prompt cards in the selected packs", ErrDeckExhausted)
	}
	if need := opts.Rules.HandSize * (opts.Rules.MinPlayers - 1); len(opts.Responses) < need {
		return nil, fmt.Errorf("%w: %d response cards cannot fill %d hands of %d", ErrDeckExhausted, len(opts.Responses), opts.Rules.MinPlayers-1, opts.Rules.HandSize)
	}
	if opts.ID == uuid.Nil {
		opts.ID = uuid.New()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	cards := make(map[string]models.Card, len(opts.Prompts)+len(opts.Responses))
	promptIDs := make([]string, 0, len(opts.Prompts))
	for _, c := range opts.Prompts {
		cards[c.ID] = c
		promptIDs = append(promptIDs, c.ID)
	}
	responseIDs := make([]string, 0, len(opts.Responses))
	for _, c := range opts.Responses {
		cards[c.ID] = c
		responseIDs = append(responseIDs, c.ID)
	}

	return &Session{
		ID:        opts.ID,
		Name:      opts.Name,
		Rules:     opts.Rules,
		Status:    StatusLobby,
		Prompts:   NewDeck(promptIDs, rng),
		Responses: NewDeck(responseIDs, rng),
		CreatedAt: opts.Now(),
		judgeIdx:  -1,
		cards:     cards,
		rng:       rng,
		banned:    make(map[uuid.UUID]bool),
		now:       opts.Now,
		log:       opts.Logger.WithFields(logrus.Fields{"component": "session", "game_id": opts.ID}),
	}, nil
}

// Owner returns the earliest-joined remaining player, or uuid.Nil for an empty session.
func (s *Session) Owner() uuid.UUID {
	if len(s.Players) == 0 {
		return uuid.Nil
	}
	return s.Players[0].ID
}

// Player looks up a seated player.
func (s *Session) Player(id uuid.UUID) (*Player, bool) {
	i := s.playerIndex(id)
	if i < 0 {
		return nil, false
	}
	return s.Players[i], true
}

// IsParticipant reports whether id is seated in this session.
func (s *Session) IsParticipant(id uuid.UUID) bool {
	return s.playerIndex(id) >= 0
}

// ConnectedCount is the number of players currently connected.
func (s *Session) ConnectedCount() int {
	n := 0
	for _, p := range s.Players {
		if p.Connected {
			n++
		}
	}
	return n
}

// Join seats a new player or reconnects a known one. Joining a fresh lobby
// that reaches MinPlayers starts the game when AutoStart is set; a stopped
// game waits for its owner. A player joining an active game is dealt a hand
// immediately.
func (s *Session) Join(id uuid.UUID, name string) error {
	if s.Status.Terminal() {
		return fmt.Errorf("%w: game %s is %s", ErrSessionClosed, s.ID, s.Status)
	}
	if s.banned[id] {
		return fmt.Errorf("%w: player %s", ErrBanned, id)
	}

	if p, ok := s.Player(id); ok {
		if p.Connected {
			return nil
		}
		p.Connected = true
		s.emit(events.KindPlayerReconnected, map[string]interface{}{
			"player_id": p.ID,
		})
		return nil
	}

	if len(s.Players) >= s.Rules.MaxPlayers {
		return fmt.Errorf("%w: game %s already has %d players", ErrSessionFull, s.ID, len(s.Players))
	}

	p := &Player{
		ID:        id,
		Name:      name,
		Connected: true,
		JoinedAt:  s.now(),
	}
	s.Players = append(s.Players, p)
	s.emit(events.KindPlayerJoined, map[string]interface{}{
		"player_id": p.ID,
		"name":      p.Name,
		"owner":     s.Owner(),
	})

	switch s.Status {
	case StatusLobby:
		if s.Rules.AutoStart && s.roundNo == 0 && len(s.Players) >= s.Rules.MinPlayers {
			return s.start()
		}
	case StatusActive:
		s.refill(p)
	}
	return nil
}

// Start begins a game that is waiting in the lobby. Only the owner may start it.
func (s *Session) Start(by uuid.UUID) error {
	if !s.IsParticipant(by) {
		return fmt.Errorf("%w: player %s is not in game %s", ErrNotFound, by, s.ID)
	}
	if s.Status.Terminal() {
		return fmt.Errorf("%w: game %s is %s", ErrSessionClosed, s.ID, s.Status)
	}
	if s.Status == StatusActive {
		return fmt.Errorf("%w: game %s", ErrAlreadyStarted, s.ID)
	}
	if by != s.Owner() {
		return fmt.Errorf("%w: player %s cannot start game %s", ErrNotOwner, by, s.ID)
	}
	if len(s.Players) < s.Rules.MinPlayers {
		return fmt.Errorf("%w: %d of %d players", ErrNotEnoughPlayers, len(s.Players), s.Rules.MinPlayers)
	}
	return s.start()
}

func (s *Session) start() error {
	s.Status = StatusActive
	s.lastRound = nil
	ids := make([]uuid.UUID, 0, len(s.Players))
	for _, p := range s.Players {
		p.Score = 0
		ids = append(ids, p.ID)
	}
	s.emit(events.KindGameStarted, map[string]interface{}{
		"players":      ids,
		"hand_size":    s.Rules.HandSize,
		"score_target": s.Rules.ScoreTarget,
	})
	return s.dealRound()
}

// Leave removes a player. Their hand and any submission go to the discard pile.
// A judge leaving abandons the round; dropping below MinPlayers abandons the game.
func (s *Session) Leave(id uuid.UUID) error {
	idx := s.playerIndex(id)
	if idx < 0 {
		return fmt.Errorf("%w: player %s is not in game %s", ErrNotFound, id, s.ID)
	}
	if s.Status.Terminal() {
		return fmt.Errorf("%w: game %s is %s", ErrSessionClosed, s.ID, s.Status)
	}
	return s.removePlayer(idx, events.KindPlayerLeft, nil)
}

// removePlayer unseats Players[idx] and emits kind with the player id, the
// resulting owner and extra.
func (s *Session) removePlayer(idx int, kind events.Kind, extra map[string]interface{}) error {
	p := s.Players[idx]
	id := p.ID
	wasJudge := s.Round != nil && s.Round.Judge == id

	s.Responses.Discard(p.Hand...)
	p.Hand = nil
	if s.Round != nil {
		if sub, ok := s.Round.Submissions[id]; ok {
			s.Responses.Discard(sub...)
			s.Round.removeSubmission(id)
		}
	}

	s.Players = slices.Delete(s.Players, idx, idx+1)
	switch {
	case idx < s.judgeIdx:
		s.judgeIdx--
	case idx == s.judgeIdx:
		// the player after the departed judge now sits at idx and judges next
		s.judgeIdx = idx - 1
	}

	payload := map[string]interface{}{
		"player_id": id,
		"owner":     s.Owner(),
	}
	for k, v := range extra {
		payload[k] = v
	}
	s.emit(kind, payload)

	if s.Status != StatusActive {
		return nil
	}
	if len(s.Players) < s.Rules.MinPlayers {
		s.abandon("not enough players")
		return nil
	}
	if s.Round == nil {
		return s.dealRound()
	}
	if wasJudge {
		return s.abandonRound("judge left")
	}
	if s.Round.Phase == PhaseJudging && len(s.Round.Submissions) == 0 {
		return s.abandonRound("no submissions left")
	}
	s.maybeStartJudging()
	return nil
}

// Disconnect marks a player as gone without removing them. A judge
// disconnecting abandons the round; anyone else forfeits a submission that is
// still being collected.
func (s *Session) Disconnect(id uuid.UUID) error {
	p, ok := s.Player(id)
	if !ok {
		return fmt.Errorf("%w: player %s is not in game %s", ErrNotFound, id, s.ID)
	}
	if !p.Connected || s.Status.Terminal() {
		return nil
	}
	p.Connected = false
	s.emit(events.KindPlayerDisconnected, map[string]interface{}{
		"player_id": id,
	})

	if s.Status != StatusActive || s.Round == nil {
		return nil
	}
	if s.Round.Judge == id {
		return s.abandonRound("judge disconnected")
	}
	if s.Round.Phase == PhaseCollecting {
		if sub, ok := s.Round.Submissions[id]; ok {
			p.Hand = append(p.Hand, sub...)
			s.Round.removeSubmission(id)
			s.emit(events.KindSubmissionRetracted, map[string]interface{}{
				"player_id": id,
				"forfeit":   true,
			})
		}
		s.maybeStartJudging()
	}
	return nil
}

// Abandon ends a session that is still open, for example on shutdown.
func (s *Session) Abandon(reason string) {
	if s.Status.Terminal() {
		return
	}
	s.abandon(reason)
}

func (s *Session) abandon(reason string) {
	s.discardRound()
	s.Status = StatusAbandoned
	s.emit(events.KindGameAbandoned, map[string]interface{}{
		"reason": reason,
		"scores": s.scores(),
	})
	s.log.Infof("game abandoned: %s", reason)
}

// discardRound moves every card of the current round to the discard piles.
func (s *Session) discardRound() {
	if s.Round == nil {
		return
	}
	for _, pid := range s.Round.order {
		s.Responses.Discard(s.Round.Submissions[pid]...)
	}
	s.Prompts.Discard(s.Round.Prompt.ID)
	s.Round = nil
}

// Hand returns a player's hand as cards.
func (s *Session) Hand(id uuid.UUID) ([]models.Card, error) {
	p, ok := s.Player(id)
	if !ok {
		return nil, fmt.Errorf("%w: player %s is not in game %s", ErrNotFound, id, s.ID)
	}
	return s.lookup(p.Hand), nil
}

// commit assigns sequence numbers to the events produced by the last command
// and clears the pending list.
func (s *Session) commit() []events.Event {
	out := s.pending
	for i := range out {
		s.seq++
		out[i].Sequence = s.seq
	}
	s.pending = nil
	return out
}

// rollback drops events of a failed command.
func (s *Session) rollback() {
	s.pending = nil
}

// Sequence is the number of the last committed event.
func (s *Session) Sequence() uint64 { return s.seq }

func (s *Session) emit(kind events.Kind, payload map[string]interface{}) {
	ev := events.Event{
		GameID:    s.ID,
		Kind:      kind,
		Payload:   payload,
		Timestamp: s.now().UnixMilli(),
	}
	if s.Round != nil {
		ev.Round = s.Round.Number
		ev.Phase = string(s.Round.Phase)
	}
	s.pending = append(s.pending, ev)
}

func (s *Session) refill(p *Player) {
	need := s.Rules.HandSize - len(p.Hand)
	if need <= 0 {
		return
	}
	ids, err := s.Responses.Draw(need)
	if err != nil {
		s.log.WithField("player_id", p.ID).Warnf("cannot refill hand: %v", err)
		return
	}
	if len(ids) < need {
		s.log.WithField("player_id", p.ID).Warnf("response cards ran out, hand short by %d", need-len(ids))
	}
	p.Hand = append(p.Hand, ids...)
}

func (s *Session) playerIndex(id uuid.UUID) int {
	return slices.IndexFunc(s.Players, func(p *Player) bool { return p.ID == id })
}

func (s *Session) lookup(ids []string) []models.Card {
	out := make([]models.Card, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.cards[id])
	}
	return out
}

func (s *Session) scores() map[string]int {
	out := make(map[string]int, len(s.Players))
	for _, p := range s.Players {
		out[p.ID.String()] = p.Score
	}
	return out
}
