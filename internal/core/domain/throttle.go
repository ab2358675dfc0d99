package domain

// ThrottleScope names the counter a failed login is charged to.
type ThrottleScope string

const (
	// ThrottleIdentifier counts per presented username or email.
	ThrottleIdentifier ThrottleScope = "identifier"
	// ThrottleAccount counts per resolved principal, whichever identifier was used.
	ThrottleAccount ThrottleScope = "account"
)
