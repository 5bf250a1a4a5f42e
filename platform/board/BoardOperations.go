package board

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/DedS3t/monopoly-arena/app/models"
)

const (
	Size             = 40
	GoPosition       = 0
	JailPosition     = 10
	GoToJailPosition = 30
	GoBonus          = 200
)

//go:embed properties.json cards.json
var static embed.FS

var ErrNotFound = errors.New("not found")

var (
	loadOnce   sync.Once
	squares    [Size]models.Property
	actions    [Size]models.Action
	decks      map[models.Deck][]models.Card
	railways   []int
	utilities  []int
	groupIndex map[string][]int
)

var actionByType = map[models.SquareType]models.Action{
	models.SquareGo:        models.ActionGo,
	models.SquareLand:      models.ActionLand,
	models.SquareRailway:   models.ActionRailway,
	models.SquareUtility:   models.ActionUtility,
	models.SquareTax:       models.ActionTax,
	models.SquareChance:    models.ActionChance,
	models.SquareCommunity: models.ActionCommunity,
	models.SquareJail:      models.ActionJail,
	models.SquareFree:      models.ActionFree,
	models.SquareGoToJail:  models.ActionGoToJail,
}

// load builds the lookup tables once. The data is compiled in, so a decoding
// failure is a programming error.
func load() {
	loadOnce.Do(func() {
		if err := parse(); err != nil {
			panic(fmt.Sprintf("board: %v", err))
		}
	})
}

func parse() error {
	raw, err := static.ReadFile("properties.json")
	if err != nil {
		return err
	}
	var properties []models.Property
	if err := json.Unmarshal(raw, &properties); err != nil {
		return fmt.Errorf("properties.json: %w", err)
	}
	if len(properties) != Size {
		return fmt.Errorf("properties.json: expected %d squares, got %d", Size, len(properties))
	}

	groupIndex = make(map[string][]int)
	for i, property := range properties {
		if property.Id != i {
			return fmt.Errorf("properties.json: square %d has id %d", i, property.Id)
		}
		if property.Type == models.SquareLand && len(property.Rent) != 6 {
			return fmt.Errorf("properties.json: %s needs 6 rent tiers", property.Name)
		}
		squares[i] = property
		actions[i] = actionByType[property.Type]
		switch property.Type {
		case models.SquareRailway:
			railways = append(railways, i)
		case models.SquareUtility:
			utilities = append(utilities, i)
		case models.SquareLand:
			groupIndex[property.Group] = append(groupIndex[property.Group], i)
		}
	}

	raw, err = static.ReadFile("cards.json")
	if err != nil {
		return err
	}
	var cards []models.Card
	if err := json.Unmarshal(raw, &cards); err != nil {
		return fmt.Errorf("cards.json: %w", err)
	}
	decks = make(map[models.Deck][]models.Card)
	for _, card := range cards {
		decks[card.Deck] = append(decks[card.Deck], card)
	}
	return nil
}

func LoadProperties() []models.Property {
	load()
	out := make([]models.Property, Size)
	copy(out, squares[:])
	return out
}

func GetByPos(pos int) (models.Property, error) {
	load()
	if pos < 0 || pos >= Size {
		return models.Property{}, fmt.Errorf("square %d: %w", pos, ErrNotFound)
	}
	return squares[pos], nil
}

// MustGet is GetByPos for positions already known to be on the board.
func MustGet(pos int) models.Property {
	p, err := GetByPos(pos)
	if err != nil {
		panic(err)
	}
	return p
}

// Classify maps a square id to the action recorded when a token lands on it.
func Classify(pos int) models.Action {
	load()
	return actions[Wrap(pos)]
}

// Wrap folds any position (including negative relative moves) onto the board.
func Wrap(pos int) int {
	return ((pos % Size) + Size) % Size
}

// NextOfType returns the first square of type t strictly after pos,
// wrapping to the lowest one.
func NextOfType(pos int, t models.SquareType) int {
	load()
	var ids []int
	switch t {
	case models.SquareRailway:
		ids = railways
	case models.SquareUtility:
		ids = utilities
	default:
		return pos
	}
	for _, id := range ids {
		if id > pos {
			return id
		}
	}
	return ids[0]
}

// Group lists the positions sharing a colour group.
func Group(name string) []int {
	load()
	return groupIndex[name]
}

func Deck(d models.Deck) []models.Card {
	load()
	return decks[d]
}
