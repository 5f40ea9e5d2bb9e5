package card

import (
	"context"
	"errors"
	"math/rand"
	"slices"
)

var ErrEmptyDeck = errors.New("deck has no cards")

// ErrUnavailable marks a failed draw; callers wrap provider errors with it.
var ErrUnavailable = errors.New("card provider unavailable")

const (
	StatHP             = "hp"
	StatAttack         = "attack"
	StatDefense        = "defense"
	StatSpeed          = "speed"
	StatSpecialAttack  = "special-attack"
	StatSpecialDefense = "special-defense"
)

// Stats lists every attribute a picker may select.
var Stats = []string{StatHP, StatAttack, StatDefense, StatSpeed, StatSpecialAttack, StatSpecialDefense}

func IsStat(name string) bool {
	return slices.Contains(Stats, name)
}

// Card is one drawn creature. Values are never mutated after a provider returns them.
type Card struct {
	ID    int            `json:"id"`
	Name  string         `json:"name"`
	Image string         `json:"image"`
	HP    int            `json:"hp"`
	Stats map[string]int `json:"stats"`
}

// Value returns the numeric value of stat, reading hp from HP.
func (c Card) Value(stat string) (int, bool) {
	if !IsStat(stat) {
		return 0, false
	}
	if stat == StatHP {
		return c.HP, true
	}
	v, ok := c.Stats[stat]
	return v, ok
}

// Provider draws a random card. Implementations must be safe for concurrent use.
type Provider interface {
	Fetch(ctx context.Context) (Card, error)
}

// Deck is an in-memory Provider drawing uniformly from a fixed set of cards.
type Deck struct {
	cards []Card
}

func NewDeck(cards []Card) *Deck {
	return &Deck{cards: slices.Clone(cards)}
}

func (d *Deck) Fetch(ctx context.Context) (Card, error) {
	if err := ctx.Err(); err != nil {
		return Card{}, err
	}
	if len(d.cards) == 0 {
		return Card{}, ErrEmptyDeck
	}
	return d.cards[rand.Intn(len(d.cards))], nil
}

// Builtin is the offline deck used when no external card source is configured.
func Builtin() []Card {
	return []Card{
		newCard(1, "bulbasaur", 45, 49, 49, 45, 65, 65),
		newCard(4, "charmander", 39, 52, 43, 65, 60, 50),
		newCard(7, "squirtle", 44, 48, 65, 43, 50, 64),
		newCard(25, "pikachu", 35, 55, 40, 90, 50, 50),
		newCard(39, "jigglypuff", 115, 45, 20, 20, 45, 25),
		newCard(52, "meowth", 40, 45, 35, 90, 40, 40),
		newCard(66, "machop", 70, 80, 50, 35, 35, 35),
		newCard(74, "geodude", 40, 80, 100, 20, 30, 30),
		newCard(94, "gengar", 60, 65, 60, 110, 130, 75),
		newCard(95, "onix", 35, 45, 160, 70, 30, 45),
		newCard(129, "magikarp", 20, 10, 55, 80, 15, 20),
		newCard(131, "lapras", 130, 85, 80, 60, 85, 95),
		newCard(143, "snorlax", 160, 110, 65, 30, 65, 110),
		newCard(149, "dragonite", 91, 134, 95, 80, 100, 100),
		newCard(150, "mewtwo", 106, 110, 90, 130, 154, 90),
	}
}

func newCard(id int, name string, hp, atk, def, spd, spAtk, spDef int) Card {
	return Card{
		ID:    id,
		Name:  name,
		Image: officialArtwork(id),
		HP:    hp,
		Stats: map[string]int{
			StatAttack:         atk,
			StatDefense:        def,
			StatSpeed:          spd,
			StatSpecialAttack:  spAtk,
			StatSpecialDefense: spDef,
		},
	}
}
