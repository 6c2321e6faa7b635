package mediate

// Unit is the response type of requests that produce no value.
// It has a single value, Unit{}, and every Unit equals every other.
type Unit struct{}

func (Unit) String() string { return "()" }
