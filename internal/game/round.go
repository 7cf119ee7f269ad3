// internal/game/round.go
package game

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jason-s-yu/crusty/internal/events"
	"github.com/jason-s-yu/crusty/internal/models"
)

// Phase is the position of a round in its state machine.
// Rounds only ever move forward: dealing, collecting, judging, complete.
type Phase string

const (
	PhaseDealing    Phase = "dealing"
	PhaseCollecting Phase = "collecting_submissions"
	PhaseJudging    Phase = "judging"
	PhaseComplete   Phase = "round_complete"
)

// Round is one prompt/judge/submission cycle. It is dropped once scored; only
// a RoundSummary is kept.
type Round struct {
	Number      int
	Prompt      models.Card
	Judge       uuid.UUID
	Phase       Phase
	Submissions map[uuid.UUID][]string

	// order lists submitters. It is submission order while collecting and a
	// shuffled presentation order once judging starts.
	order []uuid.UUID
	// entries maps submitters to the anonymous ids their submissions are
	// judged under. Assigned when judging starts.
	entries map[uuid.UUID]uuid.UUID
}

func (r *Round) addSubmission(pid uuid.UUID, cardIDs []string) {
	r.Submissions[pid] = cardIDs
	r.order = append(r.order, pid)
}

func (r *Round) removeSubmission(pid uuid.UUID) {
	delete(r.Submissions, pid)
	delete(r.entries, pid)
	r.order = slices.DeleteFunc(r.order, func(id uuid.UUID) bool { return id == pid })
}

// submitter resolves an entry id back to the player who submitted it.
func (r *Round) submitter(entryID uuid.UUID) (uuid.UUID, bool) {
	for pid, id := range r.entries {
		if id == entryID {
			return pid, true
		}
	}
	return uuid.Nil, false
}

// dealRound draws a prompt, rotates the judge and refills every other hand,
// leaving the round in the collecting phase. Assumes an active session.
func (s *Session) dealRound() error {
	if len(s.Players) < s.Rules.MinPlayers {
		s.abandon("not enough players")
		return nil
	}
	promptID, err := s.Prompts.DrawOne()
	if err != nil {
		return fmt.Errorf("deal round %d: %w", s.roundNo+1, err)
	}

	s.advanceJudge()
	judge := s.Players[s.judgeIdx]
	s.roundNo++
	s.Round = &Round{
		Number:      s.roundNo,
		Prompt:      s.cards[promptID],
		Judge:       judge.ID,
		Phase:       PhaseDealing,
		Submissions: make(map[uuid.UUID][]string),
	}
	s.emit(events.KindRoundDealing, map[string]interface{}{
		"judge":  judge.ID,
		"prompt": s.Round.Prompt,
	})

	for _, p := range s.Players {
		if p.ID != judge.ID {
			s.refill(p)
		}
	}

	s.Round.Phase = PhaseCollecting
	s.emit(events.KindRoundCollecting, map[string]interface{}{
		"judge":     judge.ID,
		"responses": s.Round.Prompt.Responses(),
	})
	return nil
}

// advanceJudge moves the judge seat to the next connected player after the
// current one. With nobody connected the next seat is used regardless.
func (s *Session) advanceJudge() {
	n := len(s.Players)
	for i := 1; i <= n; i++ {
		idx := ((s.judgeIdx+i)%n + n) % n
		if s.Players[idx].Connected {
			s.judgeIdx = idx
			return
		}
	}
	s.judgeIdx = ((s.judgeIdx+1)%n + n) % n
}

// Submit plays cardIDs from a player's hand against the current prompt.
func (s *Session) Submit(id uuid.UUID, cardIDs []string) error {
	p, ok := s.Player(id)
	if !ok {
		return fmt.Errorf("%w: player %s is not in game %s", ErrNotFound, id, s.ID)
	}
	if s.Status != StatusActive || s.Round == nil || s.Round.Phase != PhaseCollecting {
		return fmt.Errorf("%w: round is not collecting submissions", ErrInvalidSubmission)
	}
	if s.Round.Judge == id {
		return fmt.Errorf("%w: the judge cannot submit", ErrInvalidSubmission)
	}
	if _, done := s.Round.Submissions[id]; done {
		return fmt.Errorf("%w: already submitted in round %d", ErrInvalidSubmission, s.Round.Number)
	}
	if want := s.Round.Prompt.Responses(); len(cardIDs) != want {
		return fmt.Errorf("%w: prompt takes %d card(s), got %d", ErrInvalidSubmission, want, len(cardIDs))
	}
	for i, cid := range cardIDs {
		if slices.Contains(cardIDs[:i], cid) {
			return fmt.Errorf("%w: card %s submitted twice", ErrInvalidSubmission, cid)
		}
		if !p.holds(cid) {
			return fmt.Errorf("%w: card %s is not in hand", ErrInvalidSubmission, cid)
		}
	}

	played := append([]string(nil), cardIDs...)
	p.removeFromHand(played)
	s.Round.addSubmission(id, played)
	s.emit(events.KindCardSubmitted, map[string]interface{}{
		"player_id": id,
		"submitted": len(s.Round.Submissions),
	})
	s.maybeStartJudging()
	return nil
}

// Retract takes a player's submission back into their hand while submissions
// are still being collected.
func (s *Session) Retract(id uuid.UUID) error {
	p, ok := s.Player(id)
	if !ok {
		return fmt.Errorf("%w: player %s is not in game %s", ErrNotFound, id, s.ID)
	}
	if s.Status != StatusActive || s.Round == nil || s.Round.Phase != PhaseCollecting {
		return fmt.Errorf("%w: round is not collecting submissions", ErrInvalidSubmission)
	}
	sub, ok := s.Round.Submissions[id]
	if !ok {
		return fmt.Errorf("%w: nothing submitted in round %d", ErrInvalidSubmission, s.Round.Number)
	}
	p.Hand = append(p.Hand, sub...)
	s.Round.removeSubmission(id)
	s.emit(events.KindSubmissionRetracted, map[string]interface{}{
		"player_id": id,
	})
	return nil
}

// maybeStartJudging moves a collecting round to judging once every connected
// non-judge player has submitted and there is at least one submission.
func (s *Session) maybeStartJudging() {
	r := s.Round
	if r == nil || r.Phase != PhaseCollecting || len(r.Submissions) == 0 {
		return
	}
	for _, p := range s.Players {
		if p.ID == r.Judge || !p.Connected {
			continue
		}
		if _, ok := r.Submissions[p.ID]; !ok {
			return
		}
	}

	s.rng.Shuffle(len(r.order), func(i, j int) { r.order[i], r.order[j] = r.order[j], r.order[i] })
	r.entries = make(map[uuid.UUID]uuid.UUID, len(r.order))
	for _, pid := range r.order {
		r.entries[pid] = uuid.New()
	}
	r.Phase = PhaseJudging
	s.emit(events.KindRoundJudging, map[string]interface{}{
		"judge":       r.Judge,
		"submissions": s.submissionViews(false),
	})
}

// PickWinner scores the round for the submission judged under entryID. Only
// the judge may pick. Submitters stay anonymous until the round is scored.
func (s *Session) PickWinner(judgeID, entryID uuid.UUID) error {
	if !s.IsParticipant(judgeID) {
		return fmt.Errorf("%w: player %s is not in game %s", ErrNotFound, judgeID, s.ID)
	}
	if s.Status != StatusActive || s.Round == nil || s.Round.Phase != PhaseJudging {
		return fmt.Errorf("%w: round is not being judged", ErrInvalidSelection)
	}
	if s.Round.Judge != judgeID {
		return fmt.Errorf("%w: only the judge may pick a winner", ErrInvalidSelection)
	}
	winnerID, ok := s.Round.submitter(entryID)
	if !ok {
		return fmt.Errorf("%w: no submission %s in round %d", ErrInvalidSelection, entryID, s.Round.Number)
	}
	winningCards := s.Round.Submissions[winnerID]
	winner, ok := s.Player(winnerID)
	if !ok {
		return fmt.Errorf("%w: player %s is no longer in game %s", ErrInvalidSelection, winnerID, s.ID)
	}

	r := s.Round
	winner.Score++
	r.Phase = PhaseComplete
	s.lastRound = &RoundSummary{
		Number:       r.Number,
		Prompt:       r.Prompt,
		Judge:        r.Judge,
		Winner:       winnerID,
		WinningCards: s.lookup(winningCards),
		Submissions:  s.submissionViews(true),
	}
	s.emit(events.KindRoundComplete, map[string]interface{}{
		"winner":        winnerID,
		"winning_entry": entryID,
		"winning_cards": s.lastRound.WinningCards,
		"submissions":   s.lastRound.Submissions,
		"scores":        s.scores(),
	})
	s.discardRound()

	if winner.Score >= s.Rules.ScoreTarget {
		s.Status = StatusCompleted
		s.emit(events.KindGameCompleted, map[string]interface{}{
			"winner": winnerID,
			"scores": s.scores(),
			"rounds": r.Number,
		})
		s.log.Infof("game completed, winner %s", winnerID)
		return nil
	}
	return s.dealRound()
}

// abandonRound cancels the current round: submissions go back to their
// owners, the prompt is discarded and a fresh round is dealt.
func (s *Session) abandonRound(reason string) error {
	r := s.Round
	if r != nil {
		for _, pid := range r.order {
			if p, ok := s.Player(pid); ok {
				p.Hand = append(p.Hand, r.Submissions[pid]...)
			} else {
				s.Responses.Discard(r.Submissions[pid]...)
			}
		}
		s.Prompts.Discard(r.Prompt.ID)
		s.emit(events.KindRoundAbandoned, map[string]interface{}{
			"reason": reason,
		})
		s.Round = nil
	}
	return s.dealRound()
}
