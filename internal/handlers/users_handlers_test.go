package handlers

import (
	"net/http"
	"testing"

	"github.com/gatherly/backend/internal/models"
	"github.com/google/uuid"
)

func TestUserRoutesRequireAdmin(t *testing.T) {
	env := setupTestEnv(t)
	_, participantToken := createTestUser(t, env.db, "pleb", models.UserRoleParticipant, true, false)
	_, organizerToken := createTestUser(t, env.db, "middle", models.UserRoleOrganizer, true, false)

	for name, token := range map[string]string{
		"participant": participantToken,
		"organizer":   organizerToken,
	} {
		t.Run(name+" is rejected", func(t *testing.T) {
			resp := performRequest(t, env.app, http.MethodGet, "/api/users", nil, authHeaders(token))
			body := decodeJSONMap(t, resp)

			assertStatus(t, resp, http.StatusForbidden)
			assertEnvelopeError(t, body, "admin access required")
		})
	}

	t.Run("superuser acts as admin regardless of stored role", func(t *testing.T) {
		_, superToken := createTestUser(t, env.db, "root", models.UserRoleParticipant, true, true)

		resp := performRequest(t, env.app, http.MethodGet, "/api/users", nil, authHeaders(superToken))
		assertStatus(t, resp, http.StatusOK)
	})
}

func TestUserListSearch(t *testing.T) {
	env := setupTestEnv(t)
	_, adminToken := createTestUser(t, env.db, "admin", models.UserRoleAdmin, true, false)
	createTestUser(t, env.db, "aaron", models.UserRoleParticipant, true, false)
	createTestUser(t, env.db, "zelda", models.UserRoleParticipant, true, false)

	t.Run("lists users sorted by username", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/users", nil, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusOK)

		items := dataSlice(t, decodeJSONMap(t, resp))
		if len(items) != 3 {
			t.Fatalf("expected 3 users, got %d", len(items))
		}
		first, _ := items[0].(map[string]any)
		if first["username"] != "aaron" {
			t.Fatalf("expected aaron first, got %v", first["username"])
		}
	})

	t.Run("search narrows the result", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/users?search=ZEL", nil, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusOK)

		items := dataSlice(t, decodeJSONMap(t, resp))
		if len(items) != 1 {
			t.Fatalf("expected 1 match, got %d", len(items))
		}
		match, _ := items[0].(map[string]any)
		if match["username"] != "zelda" {
			t.Fatalf("expected zelda, got %v", match["username"])
		}
	})
}

func TestUserDelete(t *testing.T) {
	env := setupTestEnv(t)
	casual := createTestCategory(t, env.db, models.CategoryCasual)
	_, adminToken := createTestUser(t, env.db, "admin", models.UserRoleAdmin, true, false)
	superuser, _ := createTestUser(t, env.db, "root", models.UserRoleAdmin, true, true)
	victim, _ := createTestUser(t, env.db, "leaver", models.UserRoleOrganizer, true, false)

	orphaned := createTestEvent(t, env.db, "Orphaned Event", day(5), casual, victim)
	other := createTestEvent(t, env.db, "Other Event", day(5), casual, nil)
	if err := env.db.Model(other).Association("RSVPs").Append(victim); err != nil {
		t.Fatalf("failed seeding rsvp: %v", err)
	}

	t.Run("superuser cannot be deleted", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodDelete, "/api/users/"+superuser.ID.String(), nil, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)

		assertStatus(t, resp, http.StatusForbidden)
		assertEnvelopeError(t, body, "superuser accounts cannot be deleted")

		var still models.User
		if err := env.db.First(&still, "id = ?", superuser.ID).Error; err != nil {
			t.Fatalf("expected superuser to survive: %v", err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodDelete, "/api/users/"+uuid.NewString(), nil, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)

		assertStatus(t, resp, http.StatusNotFound)
		assertEnvelopeError(t, body, "user not found")
	})

	t.Run("delete clears creatorship and rsvps", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodDelete, "/api/users/"+victim.ID.String(), nil, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusOK)

		var gone int64
		if err := env.db.Model(&models.User{}).Where("id = ?", victim.ID).Count(&gone).Error; err != nil {
			t.Fatalf("failed counting users: %v", err)
		}
		if gone != 0 {
			t.Fatalf("expected user to be deleted, found %d", gone)
		}

		var event models.Event
		if err := env.db.First(&event, "id = ?", orphaned.ID).Error; err != nil {
			t.Fatalf("expected created event to survive: %v", err)
		}
		if event.CreatedByID != nil {
			t.Fatalf("expected creator to be cleared, got %v", event.CreatedByID)
		}

		var rsvps int64
		if err := env.db.Table("rsvps").Where("user_id = ?", victim.ID).Count(&rsvps).Error; err != nil {
			t.Fatalf("failed counting rsvps: %v", err)
		}
		if rsvps != 0 {
			t.Fatalf("expected rsvp rows to be deleted, found %d", rsvps)
		}
	})
}

func TestUserToggleActive(t *testing.T) {
	env := setupTestEnv(t)
	_, adminToken := createTestUser(t, env.db, "admin", models.UserRoleAdmin, true, false)
	target, targetToken := createTestUser(t, env.db, "flaky", models.UserRoleParticipant, true, false)

	t.Run("deactivates an active user", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/users/"+target.ID.String()+"/active", nil, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusOK)

		data := dataMap(t, decodeJSONMap(t, resp))
		if active, _ := data["active"].(bool); active {
			t.Fatalf("expected user to be deactivated, got %v", data["active"])
		}
	})

	t.Run("deactivated user is locked out immediately", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/auth/me", nil, authHeaders(targetToken))
		body := decodeJSONMap(t, resp)

		assertStatus(t, resp, http.StatusUnauthorized)
		assertEnvelopeError(t, body, "account is not active")
	})

	t.Run("toggling again reactivates", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/users/"+target.ID.String()+"/active", nil, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusOK)

		data := dataMap(t, decodeJSONMap(t, resp))
		if active, _ := data["active"].(bool); !active {
			t.Fatalf("expected user to be reactivated, got %v", data["active"])
		}
	})
}

func TestUserChangeRole(t *testing.T) {
	env := setupTestEnv(t)
	_, adminToken := createTestUser(t, env.db, "admin", models.UserRoleAdmin, true, false)
	superuser, _ := createTestUser(t, env.db, "root", models.UserRoleParticipant, true, true)
	target, _ := createTestUser(t, env.db, "climber", models.UserRoleParticipant, true, false)

	t.Run("invalid role is rejected", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/users/"+target.ID.String()+"/role", map[string]any{
			"role": "overlord",
		}, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)

		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "invalid role")
	})

	t.Run("superuser role cannot be changed", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/users/"+superuser.ID.String()+"/role", map[string]any{
			"role": "participant",
		}, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)

		assertStatus(t, resp, http.StatusForbidden)
		assertEnvelopeError(t, body, "cannot change the role of a superuser")
	})

	t.Run("promotes to organizer", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/users/"+target.ID.String()+"/role", map[string]any{
			"role": "organizer",
		}, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusOK)

		data := dataMap(t, decodeJSONMap(t, resp))
		if data["role"] != "organizer" {
			t.Fatalf("expected organizer, got %v", data["role"])
		}
	})

	t.Run("repeating the same role is a no-op", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/users/"+target.ID.String()+"/role", map[string]any{
			"role": "organizer",
		}, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusOK)

		var stored models.User
		if err := env.db.First(&stored, "id = ?", target.ID).Error; err != nil {
			t.Fatalf("failed loading user: %v", err)
		}
		if stored.Role != models.UserRoleOrganizer {
			t.Fatalf("expected stored role organizer, got %q", stored.Role)
		}
	})
}
