package auth

// Known OAuth scopes used by the reconciliation surface.
const (
	ScopeReconciliationWrite = "reconciliation:write"
	ScopeReconciliationRead  = "reconciliation:read"
	ScopeRulesWrite          = "rules:write"
)
