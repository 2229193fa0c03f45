package enums

import "fmt"

// UserRole is the authorization role attached to an account.
type UserRole string

const (
	UserRoleCustomer UserRole = "CUSTOMER"
	UserRoleEmployee UserRole = "EMPLOYEE"
	UserRoleOwner    UserRole = "OWNER"
)

var validUserRoles = []UserRole{
	UserRoleCustomer,
	UserRoleEmployee,
	UserRoleOwner,
}

// String implements fmt.Stringer.
func (u UserRole) String() string {
	return string(u)
}

// IsValid reports whether the value is a known UserRole.
func (u UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == u {
			return true
		}
	}
	return false
}

// IsStaff reports whether the role carries back-office privileges.
func (u UserRole) IsStaff() bool {
	return u == UserRoleEmployee || u == UserRoleOwner
}

// IsOwner reports whether the role is the owner role.
func (u UserRole) IsOwner() bool {
	return u == UserRoleOwner
}

// ParseUserRole converts raw input into a UserRole.
func ParseUserRole(value string) (UserRole, error) {
	for _, candidate := range validUserRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user role %q", value)
}
