package domain

// OperatorRole differentiates what an operator may do.
type OperatorRole string

const (
	OperatorRoleAgent OperatorRole = "AGENT"
	OperatorRoleAdmin OperatorRole = "ADMIN"
)

// Operator is the authenticated person filing incidents.
type Operator struct {
	ID   string
	Name string
	Role OperatorRole
}
