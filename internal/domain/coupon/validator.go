package coupon

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
)

// Validator checks a user-entered code against the backend and the local
// eligibility rules. It never applies the coupon.
type Validator struct {
	client Client
	filter Filter
	now    func() time.Time

	// inflight collapses concurrent lookups of the same code.
	inflight singleflight.Group
}

// NewValidator creates a Validator backed by the given Client. filter may
// be nil.
func NewValidator(client Client, filter Filter) *Validator {
	return &Validator{client: client, filter: filter, now: time.Now}
}

// Validate normalizes code, looks it up and returns the coupon if it is
// usable right now. Business-rule failures satisfy IsRejection; transport
// failures wrap ErrUnavailable.
func (v *Validator) Validate(ctx context.Context, code string) (*Coupon, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, &NotFoundError{Message: "coupon code required"}
	}
	if v.filter != nil && !v.filter.TestString(code) {
		return nil, &NotFoundError{Code: code}
	}

	res, err, _ := v.inflight.Do(code, func() (any, error) {
		return v.client.Lookup(ctx, code)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	lookup := res.(*LookupResult)
	if lookup == nil || lookup.Coupon == nil {
		msg := ""
		if lookup != nil {
			msg = lookup.Message
		}
		return nil, &NotFoundError{Code: code, Message: msg}
	}

	c := *lookup.Coupon
	if err := c.Check(v.now()); err != nil {
		return nil, err
	}
	return &c, nil
}
