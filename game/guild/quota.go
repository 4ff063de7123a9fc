package guild

import (
	"encoding/json"
	"strconv"
)

// Quota is a daily allowance: either a finite number or unlimited.
// The guild master's allowances are always unlimited.
type Quota struct {
	n         uint64
	unlimited bool
}

// Limited returns a finite quota of n.
func Limited(n uint64) Quota { return Quota{n: n} }

// Unlimited returns a quota that covers any amount.
func Unlimited() Quota { return Quota{unlimited: true} }

// IsUnlimited reports whether the quota has no bound.
func (q Quota) IsUnlimited() bool { return q.unlimited }

// Value returns the finite amount. It is meaningless when unlimited.
func (q Quota) Value() uint64 { return q.n }

// IsZero reports whether nothing is left.
func (q Quota) IsZero() bool { return !q.unlimited && q.n == 0 }

// Covers reports whether amount fits in the quota.
func (q Quota) Covers(amount uint64) bool { return q.unlimited || amount <= q.n }

// Sub returns what remains after used has been consumed, never below zero.
func (q Quota) Sub(used uint64) Quota {
	if q.unlimited {
		return q
	}
	if used >= q.n {
		return Limited(0)
	}
	return Limited(q.n - used)
}

func (q Quota) String() string {
	if q.unlimited {
		return "unlimited"
	}
	return strconv.FormatUint(q.n, 10)
}

// MarshalJSON encodes unlimited as the string "unlimited" and finite
// quotas as numbers.
func (q Quota) MarshalJSON() ([]byte, error) {
	if q.unlimited {
		return []byte(`"unlimited"`), nil
	}
	return []byte(strconv.FormatUint(q.n, 10)), nil
}

// UnmarshalJSON accepts either form produced by MarshalJSON.
func (q *Quota) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "unlimited" {
			return &json.UnsupportedValueError{Str: s}
		}
		*q = Unlimited()
		return nil
	}
	var n uint64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*q = Limited(n)
	return nil
}
