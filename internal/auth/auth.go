// Package auth provides the authorization policy for privileged engine
// operations. The policy is an interface so deployments can swap the
// static allow-set for role registries without touching business logic.
package auth

// Policy answers whether an account may perform administrator actions
// (force-cancel, force-remove, whitelist changes, slashing).
type Policy interface {
	IsAdmin(account string) bool
}

// Static is a fixed allow-set of administrator accounts.
type Static struct {
	admins map[string]bool
}

// NewStatic creates a policy admitting exactly the given accounts.
func NewStatic(accounts ...string) *Static {
	admins := make(map[string]bool, len(accounts))
	for _, a := range accounts {
		admins[a] = true
	}
	return &Static{admins: admins}
}

func (p *Static) IsAdmin(account string) bool {
	return p.admins[account]
}
