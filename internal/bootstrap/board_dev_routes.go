package bootstrap

import (
	"strconv"
	"time"

	"mailboard_server/adapter/in/http"
	"mailboard_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// RegisterDevRoutes registers development-only routes without
// authentication. Never enable outside local development.
func RegisterDevRoutes(app *fiber.App, deps *Dependencies) {
	dev := app.Group("/dev")

	// Mint a signed token for a user, creating the user row on first
	// use. Lets local clients skip the real identity provider.
	dev.Post("/token", func(c *fiber.Ctx) error {
		var req struct {
			Email string `json:"email"`
			Name  string `json:"name"`
		}
		if err := c.BodyParser(&req); err != nil || req.Email == "" {
			return http.ErrorResponse(c, fiber.StatusBadRequest, "email required")
		}

		user, err := deps.UserRepo.GetOrCreateByEmail(c.Context(), req.Email, req.Name)
		if err != nil {
			return http.ErrorResponse(c, fiber.StatusInternalServerError, err.Error())
		}

		claims := jwt.MapClaims{
			"sub":   strconv.FormatInt(user.ID, 10),
			"email": user.Email,
			"iat":   time.Now().Unix(),
			"exp":   time.Now().Add(24 * time.Hour).Unix(),
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
			SignedString([]byte(deps.Config.JWTSecret))
		if err != nil {
			return http.ErrorResponse(c, fiber.StatusInternalServerError, err.Error())
		}

		logger.Info("[Dev] Issued token for user=%d email=%s", user.ID, user.Email)
		return http.SuccessResponse(c, fiber.Map{
			"token": token,
			"user":  user,
		})
	})
}
