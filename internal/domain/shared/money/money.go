package money

import (
	"errors"
	"strconv"
)

var ErrNegativeAmount = errors.New("money: amount must not be negative")

// Amount keeps session prices in whole currency units to avoid floating point issues.
type Amount int64

// Zero is the price of bookings owned by administrative accounts.
const Zero Amount = 0

// Parse reads a non-negative integer amount.
func Parse(raw string) (Amount, error) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, ErrNegativeAmount
	}
	return Amount(v), nil
}

func (a Amount) Int64() int64 {
	return int64(a)
}

func (a Amount) IsZero() bool {
	return a == 0
}

// Positive reports whether the amount counts as billed revenue.
func (a Amount) Positive() bool {
	return a > 0
}

func (a Amount) String() string {
	return strconv.FormatInt(int64(a), 10)
}

// Sum adds the provided amounts.
func Sum(values ...Amount) Amount {
	var total Amount
	for _, v := range values {
		total += v
	}
	return total
}
