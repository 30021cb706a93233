package constants

const (
	ViewData       = "view_data"
	SubmitRequest  = "submit_request"
	ReviewRequests = "review_requests"
	ManageBudgets  = "manage_budgets"
	OperateLedger  = "operate_ledger"
	ImportBudgets  = "import_budgets"
	ViewAudit      = "view_audit"
)

// PermissionRoles maps each permission to the roles allowed to perform it.
var PermissionRoles = map[string][]string{
	ViewData:       {Requester, FPA, Admin},
	SubmitRequest:  {Requester, FPA, Admin},
	ReviewRequests: {FPA, Admin},
	ManageBudgets:  {FPA, Admin},
	OperateLedger:  {FPA, Admin},
	ImportBudgets:  {FPA, Admin},
	ViewAudit:      {FPA, Admin},
}

// AllowedRole returns true if role is in the list of allowed roles for the permission.
func AllowedRole(permission, role string) bool {
	for _, r := range PermissionRoles[permission] {
		if r == role {
			return true
		}
	}
	return false
}
