package domain

import "math"

// Coins is the fixed denomination set, largest first. Deposit validation and
// change breakdown both read it.
var Coins = [...]int{100, 50, 20, 10, 5}

// SmallestCoin is the unit every cost and deposit moves in.
const SmallestCoin = 5

// MaxAmount caps stored costs and stock counts at the range of a
// positive 32-bit column.
const MaxAmount = math.MaxInt32

func IsCoin(amount int) bool {
	for _, c := range Coins {
		if c == amount {
			return true
		}
	}
	return false
}

// Denominate breaks amount into coins greedily, largest first. Greedy is
// optimal only because this set is canonical. amount must be non-negative;
// callers only ever pass multiples of SmallestCoin.
func Denominate(amount int) []int {
	change := []int{}
	for _, c := range Coins {
		for n := amount / c; n > 0; n-- {
			change = append(change, c)
		}
		amount %= c
	}
	return change
}

// ValidCost reports whether cost is a positive multiple of the smallest coin
// no larger than MaxAmount.
func ValidCost(cost int) bool {
	return cost > 0 && cost <= MaxAmount && cost%SmallestCoin == 0
}
