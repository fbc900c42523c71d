package promo

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindPercent      Kind = "percent"
	KindFlat         Kind = "flat"
	KindFreeShipping Kind = "free_shipping"
)

type Rule struct {
	Code        string          `json:"code"`
	Kind        Kind            `json:"kind"`
	Value       decimal.Decimal `json:"value"`
	Description string          `json:"description"`
}

var ErrInvalidPromoCode = errors.New("invalid promo code")

// InvalidPromoCodeError carries the message shown to the customer.
type InvalidPromoCodeError struct {
	Code string
}

func (e *InvalidPromoCodeError) Error() string {
	if e.Code == "" {
		return "Please enter a promo code."
	}
	return fmt.Sprintf("Promo code %q is not valid.", e.Code)
}

func (e *InvalidPromoCodeError) Is(target error) bool { return target == ErrInvalidPromoCode }

// Registry maps normalized codes to rules. It is read-only after construction.
type Registry struct {
	rules map[string]Rule
}

func Normalize(code string) string { return strings.ToUpper(strings.TrimSpace(code)) }

func NewRegistry(rules ...Rule) *Registry {
	r := &Registry{rules: make(map[string]Rule, len(rules))}
	for _, rule := range rules {
		rule.Code = Normalize(rule.Code)
		r.rules[rule.Code] = rule
	}
	return r
}

func DefaultRegistry() *Registry {
	return NewRegistry(
		Rule{Code: "OGA10", Kind: KindPercent, Value: decimal.NewFromInt(10), Description: "10% off your order"},
		Rule{Code: "WELCOME5", Kind: KindFlat, Value: decimal.NewFromInt(5), Description: "$5 off your first order"},
		Rule{Code: "FREESHIP", Kind: KindFreeShipping, Value: decimal.Zero, Description: "Free delivery"},
	)
}

// ParseRegistry builds a registry from a JSON array of rules, e.g. loaded from config.
func ParseRegistry(raw string) (*Registry, error) {
	var rules []Rule
	if err := json.Unmarshal([]byte(raw), &rules); err != nil {
		return nil, fmt.Errorf("parse promo codes: %w", err)
	}
	for _, r := range rules {
		switch r.Kind {
		case KindPercent, KindFlat, KindFreeShipping:
		default:
			return nil, fmt.Errorf("promo %s: unknown kind %q", r.Code, r.Kind)
		}
		if r.Value.IsNegative() {
			return nil, fmt.Errorf("promo %s: negative value", r.Code)
		}
	}
	return NewRegistry(rules...), nil
}

func (r *Registry) Resolve(input string) (Rule, error) {
	code := Normalize(input)
	rule, ok := r.rules[code]
	if !ok {
		return Rule{}, &InvalidPromoCodeError{Code: code}
	}
	return rule, nil
}

func (r *Registry) Len() int { return len(r.rules) }
