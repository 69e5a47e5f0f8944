package detection

import "strings"

// Character is a classification label produced by the external worker pool.
// CharacterNone is the sentinel for "no confident classification"; it is a
// negative result, not an error.
type Character int

const (
	CharacterNone Character = iota
	CharacterAlter
	CharacterAsh
	CharacterBallistic
	CharacterBangalore
	CharacterBloodhound
	CharacterCatalyst
	CharacterCaustic
	CharacterConduit
	CharacterCrypto
	CharacterFuse
	CharacterGibraltar
	CharacterHorizon
	CharacterLifeline
	CharacterLoba
	CharacterMadMaggie
	CharacterMirage
	CharacterNewcastle
	CharacterOctane
	CharacterPathfinder
	CharacterRampart
	CharacterRevenant
	CharacterSeer
	CharacterValkyrie
	CharacterVantage
	CharacterWattson
	CharacterWraith
)

var characterNames = [...]string{
	CharacterNone:       "none",
	CharacterAlter:      "alter",
	CharacterAsh:        "ash",
	CharacterBallistic:  "ballistic",
	CharacterBangalore:  "bangalore",
	CharacterBloodhound: "bloodhound",
	CharacterCatalyst:   "catalyst",
	CharacterCaustic:    "caustic",
	CharacterConduit:    "conduit",
	CharacterCrypto:     "crypto",
	CharacterFuse:       "fuse",
	CharacterGibraltar:  "gibraltar",
	CharacterHorizon:    "horizon",
	CharacterLifeline:   "lifeline",
	CharacterLoba:       "loba",
	CharacterMadMaggie:  "mad_maggie",
	CharacterMirage:     "mirage",
	CharacterNewcastle:  "newcastle",
	CharacterOctane:     "octane",
	CharacterPathfinder: "pathfinder",
	CharacterRampart:    "rampart",
	CharacterRevenant:   "revenant",
	CharacterSeer:       "seer",
	CharacterValkyrie:   "valkyrie",
	CharacterVantage:    "vantage",
	CharacterWattson:    "wattson",
	CharacterWraith:     "wraith",
}

var charactersByName = func() map[string]Character {
	m := make(map[string]Character, len(characterNames))
	for i, name := range characterNames {
		m[name] = Character(i)
	}
	return m
}()

func (c Character) String() string {
	if c < 0 || int(c) >= len(characterNames) {
		return characterNames[CharacterNone]
	}
	return characterNames[c]
}

// IsNone reports whether c is the sentinel classification.
func (c Character) IsNone() bool {
	return c == CharacterNone
}

// ParseCharacter maps a worker label onto the enumeration. Matching ignores
// case and treats spaces and hyphens as underscores ("Mad Maggie" and
// "mad-maggie" both resolve). The boolean is false for unknown labels, in
// which case CharacterNone is returned.
func ParseCharacter(label string) (Character, bool) {
	key := strings.ToLower(strings.TrimSpace(label))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if key == "" {
		return CharacterNone, false
	}
	c, ok := charactersByName[key]
	if !ok {
		return CharacterNone, false
	}
	return c, true
}

// Characters returns every non-sentinel label in enumeration order.
func Characters() []Character {
	out := make([]Character, 0, len(characterNames)-1)
	for i := 1; i < len(characterNames); i++ {
		out = append(out, Character(i))
	}
	return out
}

func (c Character) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText accepts any label ParseCharacter knows. Unknown labels decode
// to CharacterNone.
func (c *Character) UnmarshalText(text []byte) error {
	*c, _ = ParseCharacter(string(text))
	return nil
}
