package persona

// ID identifies one of the built-in assistant personas. The set is closed.
type ID string

const (
	// NoviceGuide explains games to people who have never played.
	NoviceGuide ID = "professor-ozy"
	// ExpertGuru coaches experienced players towards mastery.
	ExpertGuru ID = "ozy-guru"
)

// Valid reports whether id belongs to the closed persona set.
func (id ID) Valid() bool {
	switch id {
	case NoviceGuide, ExpertGuru:
		return true
	default:
		return false
	}
}

// Audience describes the experience level a persona assumes.
type Audience string

const (
	AudienceNovice Audience = "novice"
	AudienceExpert Audience = "expert"
)

// Persona captures the attributes exposed to the frontend persona selector.
type Persona struct {
	ID          ID       `json:"id"`
	Name        string   `json:"name"`
	Title       string   `json:"title"`
	Emoji       string   `json:"emoji"`
	Audience    Audience `json:"audience"`
	Summary     string   `json:"summary"`
	OpeningLine string   `json:"openingLine"`
}

// Seed provides the two personas the assistant ships with.
func Seed() []Persona {
	return []Persona{
		{
			ID:          NoviceGuide,
			Name:        "Professor Ozy",
			Title:       "Your friend for learning to play",
			Emoji:       "👨‍🏫",
			Audience:    AudienceNovice,
			Summary:     "Ideal for anyone just starting out: explains clearly and without jargon. Great for learning to play with your kids or simply enjoying games without complications.",
			OpeningLine: "Hello, my friend! Take your time, we will learn this together, one small step at a time.",
		},
		{
			ID:          ExpertGuru,
			Name:        "Ozy the Guru",
			Title:       "Master of advanced tutorials",
			Emoji:       "🧙‍♂️",
			Audience:    AudienceExpert,
			Summary:     "Ideal for experienced gamers who want to spend less time hunting for tutorials and other content.",
			OpeningLine: "Ah, a seeker of mastery arrives! Speak, young padawan, and the path to enlightenment shall be revealed.",
		},
	}
}
