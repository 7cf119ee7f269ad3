// internal/game/rules.go
package game

import "fmt"

// Limits accepted for game rules.
const (
	MinHandSize    = 3
	MaxHandSize    = 20
	MinScoreTarget = 1
	MaxScoreTarget = 100
	MinPlayerCount = 3
	MaxPlayerCount = 100
)

// Rules is the per-game configuration fixed when the session is created.
type Rules struct {
	HandSize    int  `json:"hand_size"`    // cards each non-judge player holds after dealing
	ScoreTarget int  `json:"score_target"` // first player to reach this many points wins
	MinPlayers  int  `json:"min_players"`  // below this an active game is abandoned
	MaxPlayers  int  `json:"max_players"`
	AutoStart   bool `json:"auto_start"` // start as soon as MinPlayers have joined
}

// DefaultRules returns the rules used when nothing is configured.
func DefaultRules() Rules {
	return Rules{
		HandSize:    10,
		ScoreTarget: 8,
		MinPlayers:  MinPlayerCount,
		MaxPlayers:  10,
		AutoStart:   true,
	}
}

// Validate checks every field against the accepted limits.
func (r Rules) Validate() error {
	if r.HandSize < MinHandSize || r.HandSize > MaxHandSize {
		return fmt.Errorf("%w: hand size must be between %d and %d, got %d", ErrInvalidRules, MinHandSize, MaxHandSize, r.HandSize)
	}
	if r.ScoreTarget < MinScoreTarget || r.ScoreTarget > MaxScoreTarget {
		return fmt.Errorf("%w: score target must be between %d and %d, got %d", ErrInvalidRules, MinScoreTarget, MaxScoreTarget, r.ScoreTarget)
	}
	if r.MinPlayers < MinPlayerCount {
		return fmt.Errorf("%w: at least %d players are required, got %d", ErrInvalidRules, MinPlayerCount, r.MinPlayers)
	}
	if r.MaxPlayers < r.MinPlayers || r.MaxPlayers > MaxPlayerCount {
		return fmt.Errorf("%w: max players must be between %d and %d, got %d", ErrInvalidRules, r.MinPlayers, MaxPlayerCount, r.MaxPlayers)
	}
	return nil
}

// Update overrides rules with the values present in newRules, as decoded from
// a JSON body. Missing or null keys keep their old value. The result is validated.
func (r *Rules) Update(newRules map[string]interface{}) error {
	next := *r

	assignBool := func(field *bool, key string) error {
		if val, exists := newRules[key]; exists && val != nil {
			b, ok := val.(bool)
			if !ok {
				return fmt.Errorf("%w: invalid type for %s", ErrInvalidRules, key)
			}
			*field = b
		}
		return nil
	}

	assignInt := func(field *int, key string) error {
		if val, exists := newRules[key]; exists && val != nil {
			// JSON numbers decode as float64
			switch v := val.(type) {
			case float64:
				*field = int(v)
			case int:
				*field = v
			default:
				return fmt.Errorf("%w: invalid type for %s", ErrInvalidRules, key)
			}
		}
		return nil
	}

	if err := assignInt(&next.HandSize, "hand_size"); err != nil {
		return err
	}
	if err := assignInt(&next.ScoreTarget, "score_target"); err != nil {
		return err
	}
	if err := assignInt(&next.MaxPlayers, "max_players"); err != nil {
		return err
	}
	if err := assignBool(&next.AutoStart, "auto_start"); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*r = next
	return nil
}
