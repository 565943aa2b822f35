package models

// Actor roles carried in the JWT. Issuance lives in the auth service; the
// core only reads them.
const (
	RoleUser           = "User"
	RoleAdmin          = "Admin"
	RoleManager        = "Manager"
	RoleDeliveryPerson = "Delivery_Person"
)

// StaffRole reports whether the role may act on orders it does not own.
func StaffRole(role string) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleDeliveryPerson:
		return true
	}
	return false
}
