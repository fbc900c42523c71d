package promo

// Selection holds the single promo applied to a cart. Applying a new code
// replaces the old one; a failed apply leaves it in place.
type Selection struct {
	active *Rule
}

func (s *Selection) Apply(reg *Registry, input string) (Rule, error) {
	rule, err := reg.Resolve(input)
	if err != nil {
		return Rule{}, err
	}
	s.active = &rule
	return rule, nil
}

func (s *Selection) Clear() { s.active = nil }

// Active returns the applied rule or nil.
func (s *Selection) Active() *Rule {
	if s.active == nil {
		return nil
	}
	r := *s.active
	return &r
}

// Code is the applied code, empty when none.
func (s *Selection) Code() string {
	if s.active == nil {
		return ""
	}
	return s.active.Code
}
