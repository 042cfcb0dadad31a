package model

// UsageClass is one row of the building usage classification.
type UsageClass struct {
	Code        string
	Name        string
	Significant bool
	Sauna       bool
}

// CodeTables holds the reference classifications for one run. It is built
// once and never mutated, so it can be shared freely.
type CodeTables struct {
	usages map[string]UsageClass
}

// NewCodeTables builds code tables from usage classes.
func NewCodeTables(classes []UsageClass) *CodeTables {
	usages := make(map[string]UsageClass, len(classes))
	for _, c := range classes {
		usages[c.Code] = c
	}
	return &CodeTables{usages: usages}
}

// Usage looks up a usage classification code.
func (t *CodeTables) Usage(code string) (UsageClass, bool) {
	if t == nil {
		return UsageClass{}, false
	}
	c, ok := t.usages[code]
	return c, ok
}

// UsageClasses returns a copy of every usage class.
func (t *CodeTables) UsageClasses() []UsageClass {
	out := make([]UsageClass, 0, len(t.usages))
	for _, c := range t.usages {
		out = append(out, c)
	}
	return out
}

// DefaultUsageClasses is the building classification used when the store
// carries no reference table. Residential, care, education and social
// buildings are significant; 931 is the sauna class.
func DefaultUsageClasses() []UsageClass {
	return []UsageClass{
		{Code: "011", Name: "One-dwelling house", Significant: true},
		{Code: "012", Name: "Two-dwelling house", Significant: true},
		{Code: "013", Name: "Other detached house", Significant: true},
		{Code: "021", Name: "Row house", Significant: true},
		{Code: "022", Name: "Chain house", Significant: true},
		{Code: "032", Name: "Gallery-access block", Significant: true},
		{Code: "039", Name: "Apartment block", Significant: true},
		{Code: "041", Name: "Holiday residence", Significant: true},
		{Code: "511", Name: "Comprehensive school", Significant: true},
		{Code: "521", Name: "Vocational institution", Significant: true},
		{Code: "531", Name: "University building", Significant: true},
		{Code: "541", Name: "Research institute", Significant: true},
		{Code: "611", Name: "Central hospital", Significant: true},
		{Code: "613", Name: "Other hospital", Significant: true},
		{Code: "614", Name: "Health centre", Significant: true},
		{Code: "621", Name: "Care home", Significant: true},
		{Code: "631", Name: "Children's day-care centre", Significant: true},
		{Code: "639", Name: "Other social service building", Significant: true},
		{Code: "641", Name: "Prison", Significant: true},
		{Code: "691", Name: "Rehabilitation institution", Significant: true},
		{Code: "699", Name: "Other care institution", Significant: true},
		{Code: "931", Name: "Sauna", Sauna: true},
		{Code: "941", Name: "Outbuilding"},
		{Code: "999", Name: "Other building"},
	}
}

// DefaultCodeTables returns code tables built from DefaultUsageClasses.
func DefaultCodeTables() *CodeTables {
	return NewCodeTables(DefaultUsageClasses())
}
