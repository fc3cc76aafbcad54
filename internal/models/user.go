package models

type UserRole string

const (
	UserRoleAdmin       UserRole = "admin"
	UserRoleOrganizer   UserRole = "organizer"
	UserRoleParticipant UserRole = "participant"
)

func (r UserRole) Valid() bool {
	switch r {
	case UserRoleAdmin, UserRoleOrganizer, UserRoleParticipant:
		return true
	default:
		return false
	}
}

type User struct {
	BaseModel
	Username     string   `json:"username" gorm:"type:varchar(150);uniqueIndex;not null"`
	Email        string   `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string   `json:"-" gorm:"type:text;not null"`
	FirstName    string   `json:"firstName" gorm:"type:varchar(100);not null"`
	LastName     string   `json:"lastName" gorm:"type:varchar(100);not null"`
	PhoneNumber  *string  `json:"phoneNumber,omitempty" gorm:"type:varchar(15)"`
	Role         UserRole `json:"role" gorm:"type:varchar(20);not null;default:'participant'"`
	Active       bool     `json:"active" gorm:"not null;default:false"`
	Superuser    bool     `json:"superuser" gorm:"not null;default:false"`
	RSVPEvents   []Event  `json:"-" gorm:"many2many:rsvps;"`
	Created      []Event  `json:"-" gorm:"foreignKey:CreatedByID"`
}

// EffectiveRole resolves the single role the user acts under. The
// superuser flag wins over the stored role; an unset or unknown stored
// role counts as participant, which every account starts with.
func (u *User) EffectiveRole() UserRole {
	if u.Superuser {
		return UserRoleAdmin
	}
	if !u.Role.Valid() {
		return UserRoleParticipant
	}
	return u.Role
}
