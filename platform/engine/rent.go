package engine

import "github.com/DedS3t/monopoly-arena/app/models"

var railwayRent = map[int]int{1: 25, 2: 50, 3: 100, 4: 200}

var utilityMultiplier = map[int]int{1: 4, 2: 10}

// Rent computes what a visitor owes for landing on an owned, unmortgaged
// square. ownedOfType is the owner's count of squares of the same type
// (railways or utilities); level is the development level for land.
func Rent(p models.Property, level, ownedOfType, diceTotal int) int {
	switch p.Type {
	case models.SquareRailway:
		return railwayRent[ownedOfType]
	case models.SquareUtility:
		return diceTotal * utilityMultiplier[ownedOfType]
	case models.SquareLand:
		if level < 0 || level >= len(p.Rent) {
			return 0
		}
		return p.Rent[level]
	}
	return 0
}
