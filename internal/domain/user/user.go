package user

import "time"

// Role values accepted by the users.role column.
const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// Credential origins. Federated accounts carry no local password hash.
const (
	ProviderLocal  = "local"
	ProviderGoogle = "google"
)

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	// nil for federated accounts; never serialized
	PasswordHash *string   `json:"-"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	AuthProvider string    `json:"authProvider"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Public is the projection returned to clients. It deliberately has no
// password hash field at all, so one can never leak through serialization.
type Public struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u User) Public() Public {
	return Public{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}
