package services

import (
	"github.com/gatherly/backend/internal/models"
)

// AuthzService is the single place operations consult before touching
// events, categories, or user administration. It never mutates state;
// handlers call it first and translate a false into a 403.
type AuthzService struct{}

func NewAuthzService() *AuthzService {
	return &AuthzService{}
}

// CanManageEvents reports whether the user may create events at all.
func (a *AuthzService) CanManageEvents(user *models.User) bool {
	if user == nil {
		return false
	}
	switch user.EffectiveRole() {
	case models.UserRoleAdmin, models.UserRoleOrganizer:
		return true
	default:
		return false
	}
}

// CanManageEvent applies the ownership refinement: admins may touch any
// event, organizers only the ones they created. An event whose creator
// was deleted has no owner left, so only admins may touch it.
func (a *AuthzService) CanManageEvent(user *models.User, event *models.Event) bool {
	if user == nil || event == nil {
		return false
	}
	switch user.EffectiveRole() {
	case models.UserRoleAdmin:
		return true
	case models.UserRoleOrganizer:
		return event.CreatedByID != nil && *event.CreatedByID == user.ID
	default:
		return false
	}
}

func (a *AuthzService) CanManageCategories(user *models.User) bool {
	return a.CanManageEvents(user)
}

func (a *AuthzService) CanAdministerUsers(user *models.User) bool {
	if user == nil {
		return false
	}
	return user.EffectiveRole() == models.UserRoleAdmin
}
