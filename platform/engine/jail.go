package engine

import "github.com/DedS3t/monopoly-arena/app/models"

// MaxJailRolls is the count at which the next roll always releases the seat.
const MaxJailRolls = 2

// PayOutOfJailFee is charged by PayOutOfJail.
const PayOutOfJailFee = 50

// JailStatus is FREE when InJail is false, otherwise IN_JAIL(RollCount).
type JailStatus struct {
	InJail    bool
	RollCount int
}

func jailOf(s *models.Seat) JailStatus {
	return JailStatus{InJail: s.InJail, RollCount: s.JailRollCount}
}

func (j JailStatus) String() string {
	if !j.InJail {
		return "FREE"
	}
	return "IN_JAIL"
}

// EscapeMet reports whether a roll releases a jailed seat.
func (j JailStatus) EscapeMet(a, b int) bool {
	return a == b || j.RollCount >= MaxJailRolls || a+b == 12
}

// Roll applies one roll attempt. A failed attempt consumes the roll and
// bumps the count.
func (j JailStatus) Roll(a, b int) (JailStatus, bool) {
	if !j.InJail {
		return j, false
	}
	if j.EscapeMet(a, b) {
		return JailStatus{}, true
	}
	return JailStatus{InJail: true, RollCount: j.RollCount + 1}, false
}

func (j JailStatus) Enter() JailStatus {
	return JailStatus{InJail: true}
}

func (j JailStatus) Release() JailStatus {
	return JailStatus{}
}

func (j JailStatus) apply(s *models.Seat) {
	s.InJail = j.InJail
	s.JailRollCount = j.RollCount
}
