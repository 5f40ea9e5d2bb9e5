package card

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultPokeAPIURL = "https://pokeapi.co/api/v2"
	DefaultMaxID      = 1025
)

func officialArtwork(id int) string {
	return fmt.Sprintf("https://raw.githubusercontent.com/PokeAPI/sprites/master/sprites/pokemon/other/official-artwork/%d.png", id)
}

type pokemonResponse struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Sprites struct {
		FrontDefault string `json:"front_default"`
		Other        struct {
			OfficialArtwork struct {
				FrontDefault string `json:"front_default"`
			} `json:"official-artwork"`
		} `json:"other"`
	} `json:"sprites"`
	Stats []struct {
		BaseStat int `json:"base_stat"`
		Stat     struct {
			Name string `json:"name"`
		} `json:"stat"`
	} `json:"stats"`
}

// PokeAPI fetches a random pokemon from a PokeAPI compatible endpoint.
type PokeAPI struct {
	baseURL string
	maxID   int
	client  *http.Client
	log     *zap.Logger
}

func NewPokeAPI(baseURL string, maxID int, log *zap.Logger) *PokeAPI {
	if baseURL == "" {
		baseURL = DefaultPokeAPIURL
	}
	if maxID < 1 {
		maxID = DefaultMaxID
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PokeAPI{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		maxID:   maxID,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

func (p *PokeAPI) Fetch(ctx context.Context) (Card, error) {
	id := rand.Intn(p.maxID) + 1
	url := fmt.Sprintf("%s/pokemon/%d", p.baseURL, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Card{}, err
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return Card{}, fmt.Errorf("fetch pokemon %d: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Card{}, fmt.Errorf("fetch pokemon %d: unexpected status %d", id, resp.StatusCode)
	}

	var body pokemonResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Card{}, fmt.Errorf("decode pokemon %d: %w", id, err)
	}

	p.log.Debug("card fetched",
		zap.Int("id", body.ID),
		zap.String("name", body.Name),
		zap.Duration("took", time.Since(start)),
	)

	return body.toCard(), nil
}

func (r pokemonResponse) toCard() Card {
	c := Card{
		ID:    r.ID,
		Name:  r.Name,
		Image: r.Sprites.Other.OfficialArtwork.FrontDefault,
		Stats: make(map[string]int, len(r.Stats)),
	}
	if c.Image == "" {
		c.Image = r.Sprites.FrontDefault
	}
	for _, s := range r.Stats {
		if s.Stat.Name == StatHP {
			c.HP = s.BaseStat
			continue
		}
		if IsStat(s.Stat.Name) {
			c.Stats[s.Stat.Name] = s.BaseStat
		}
	}
	return c
}
