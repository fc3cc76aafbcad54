package handlers

import (
	"fmt"
	"net/mail"
	"regexp"
	"strconv"
	"strings"

	"github.com/gatherly/backend/internal/config"
	"github.com/gatherly/backend/internal/middleware"
	"github.com/gatherly/backend/internal/models"
	"github.com/gatherly/backend/internal/services"
	"github.com/gatherly/backend/pkg/activation"
	"github.com/gatherly/backend/pkg/logger"
	"github.com/gatherly/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const activationFailedMessage = "invalid or expired activation link"

var phonePattern = regexp.MustCompile(`^\+?1?\d{9,15}$`)

type AuthHandler struct {
	DB       *gorm.DB
	Notifier *services.Notifier
	Config   *config.Config
}

func NewAuthHandler(db *gorm.DB, notifier *services.Notifier, cfg *config.Config) *AuthHandler {
	return &AuthHandler{DB: db, Notifier: notifier, Config: cfg}
}

// accountFingerprint condenses the state an activation token is bound
// to. Activating the account or changing the password changes the
// fingerprint and so voids every previously issued link.
func accountFingerprint(user *models.User) string {
	return activation.Fingerprint(user.PasswordHash, strconv.FormatBool(user.Active))
}

type registerRequest struct {
	Username    string  `json:"username"`
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	FirstName   string  `json:"firstName"`
	LastName    string  `json:"lastName"`
	PhoneNumber *string `json:"phoneNumber"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)

	fields := map[string]string{}
	if req.Username == "" {
		fields["username"] = "username is required"
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		fields["email"] = "invalid email"
	}
	if len(req.Password) < 8 {
		fields["password"] = "password must be at least 8 characters"
	}
	if req.FirstName == "" {
		fields["firstName"] = "firstName is required"
	}
	if req.LastName == "" {
		fields["lastName"] = "lastName is required"
	}
	if req.PhoneNumber != nil {
		trimmed := strings.TrimSpace(*req.PhoneNumber)
		if trimmed == "" {
			req.PhoneNumber = nil
		} else if !phonePattern.MatchString(trimmed) {
			fields["phoneNumber"] = "phone number must be in the format +999999999 with up to 15 digits"
		} else {
			req.PhoneNumber = &trimmed
		}
	}
	if len(fields) > 0 {
		return utils.ValidationError(c, fields)
	}

	var existing models.User
	if err := h.DB.First(&existing, "username = ?", req.Username).Error; err == nil {
		return utils.Error(c, fiber.StatusConflict, "username already taken")
	} else if err != gorm.ErrRecordNotFound {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking existing user")
	}
	if err := h.DB.First(&existing, "email = ?", req.Email).Error; err == nil {
		return utils.Error(c, fiber.StatusConflict, "email already registered")
	} else if err != gorm.ErrRecordNotFound {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking existing user")
	}

	passwordHash, err := utils.HashPassword(req.Password)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to hash password")
	}

	user := models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: passwordHash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PhoneNumber:  req.PhoneNumber,
		Role:         models.UserRoleParticipant,
		Active:       h.Config.Auth.AutoActivate,
	}

	if err := h.DB.Create(&user).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating user")
	}

	logger.Info("user_registered", map[string]interface{}{
		"user_id":  user.ID.String(),
		"username": user.Username,
		"active":   user.Active,
	})

	if user.Active {
		token, err := utils.GenerateToken(&user)
		if err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
		}
		return utils.Success(c, fiber.StatusCreated, fiber.Map{"token": token, "user": user})
	}

	h.sendActivationMail(&user)

	return utils.Success(c, fiber.StatusCreated, fiber.Map{
		"user":    user,
		"message": "account created, check your email for the activation link",
	})
}

func (h *AuthHandler) sendActivationMail(user *models.User) {
	uid := activation.EncodeUserID(user.ID.String())
	token := activation.Generate(user.ID.String(), accountFingerprint(user))
	link := fmt.Sprintf("%s/users/activate/%s/%s/", h.Config.Server.FrontendURL, uid, token)

	body := fmt.Sprintf(
		"Hi %s,\n\nPlease activate your account by clicking on the link below:\n%s\n\nThank you.",
		user.Username,
		link,
	)
	h.Notifier.Send(user.Email, "Activate Your Account", body)
}

// Activate flips a pending account to usable. Every failure mode
// produces the same response so the endpoint cannot be used to probe
// which account ids exist.
func (h *AuthHandler) Activate(c *fiber.Ctx) error {
	decodedID, err := activation.DecodeUserID(c.Params("uid"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, activationFailedMessage)
	}

	userID, err := parseUUID(decodedID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, activationFailedMessage)
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		return utils.Error(c, fiber.StatusBadRequest, activationFailedMessage)
	}

	if err := activation.Validate(c.Params("token"), user.ID.String(), accountFingerprint(&user)); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, activationFailedMessage)
	}

	if err := h.DB.Model(&models.User{}).Where("id = ?", user.ID).Update("active", true).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed activating account")
	}

	logger.InfoWithUser(user.ID.String(), "account_activated", map[string]interface{}{
		"username": user.Username,
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "account activated"})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Username = strings.TrimSpace(req.Username)

	if req.Username == "" || req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "username and password are required")
	}

	var user models.User
	if err := h.DB.First(&user, "username = ?", req.Username).Error; err != nil {
		logger.Warn("login_failed_user_not_found", map[string]interface{}{
			"username": req.Username,
			"ip":       c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid username or password")
	}

	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		logger.WarnWithUser(user.ID.String(), "login_failed_invalid_password", map[string]interface{}{
			"username": req.Username,
			"ip":       c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid username or password")
	}

	if !user.Active {
		logger.WarnWithUser(user.ID.String(), "login_failed_inactive_account", map[string]interface{}{
			"username": req.Username,
			"ip":       c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "account is not activated")
	}

	logger.InfoWithUser(user.ID.String(), "user_login", map[string]interface{}{
		"username": user.Username,
		"ip":       c.IP(),
	})

	token, err := utils.GenerateToken(&user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"token": token, "user": user})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return utils.Success(c, fiber.StatusOK, user)
}

type updateMeRequest struct {
	FirstName   *string `json:"firstName"`
	LastName    *string `json:"lastName"`
	PhoneNumber *string `json:"phoneNumber"`
}

func (h *AuthHandler) UpdateMe(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req updateMeRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{}
	if req.FirstName != nil {
		value := strings.TrimSpace(*req.FirstName)
		if value == "" {
			return utils.Error(c, fiber.StatusBadRequest, "firstName cannot be empty")
		}
		updates["first_name"] = value
	}
	if req.LastName != nil {
		value := strings.TrimSpace(*req.LastName)
		if value == "" {
			return utils.Error(c, fiber.StatusBadRequest, "lastName cannot be empty")
		}
		updates["last_name"] = value
	}
	if req.PhoneNumber != nil {
		trimmed := strings.TrimSpace(*req.PhoneNumber)
		if trimmed == "" {
			updates["phone_number"] = nil
		} else if !phonePattern.MatchString(trimmed) {
			return utils.Error(c, fiber.StatusBadRequest, "invalid phone number")
		} else {
			updates["phone_number"] = trimmed
		}
	}

	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	if err := h.DB.Model(&models.User{}).Where("id = ?", currentUser.ID).Updates(updates).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating user")
	}

	var updated models.User
	if err := h.DB.First(&updated, "id = ?", currentUser.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching updated user")
	}

	return utils.Success(c, fiber.StatusOK, updated)
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if len(req.NewPassword) < 8 {
		return utils.Error(c, fiber.StatusBadRequest, "newPassword must be at least 8 characters")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", currentUser.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading user")
	}

	if !utils.CheckPassword(req.OldPassword, user.PasswordHash) {
		return utils.Error(c, fiber.StatusBadRequest, "oldPassword is incorrect")
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed hashing password")
	}

	if err := h.DB.Model(&models.User{}).Where("id = ?", user.ID).Update("password_hash", hash).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating password")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "password updated"})
}
