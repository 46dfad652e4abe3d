package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"petpulse/server/internal/config"
)

type App struct {
	cfg config.Config
	db  *pgxpool.Pool
	ai  AIClient
}

type AuthUser struct {
	ID    int64
	Email string
}

func New(cfg config.Config, db *pgxpool.Pool, ai AIClient) *App {
	return &App{cfg: cfg, db: db, ai: ai}
}

func (a *App) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     a.cfg.CORSAllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api := router.Group(a.cfg.APIPrefix)
	api.GET("/health", a.health)
	api.POST("/auth/send-code", a.sendVerificationCode)
	api.POST("/auth/register", a.register)
	api.POST("/auth/login", a.login)

	authed := api.Group("")
	authed.Use(a.authMiddleware())

	authed.GET("/pets", a.listPets)
	authed.POST("/pets", a.createPet)
	authed.GET("/pets/:pet_id", a.getPet)
	authed.PUT("/pets/:pet_id", a.updatePet)
	authed.GET("/pets/:pet_id/logs", a.listLogs)
	authed.POST("/pets/:pet_id/logs", a.addLog)
	authed.PUT("/pets/:pet_id/logs/:log_id", a.updateLog)
	authed.DELETE("/pets/:pet_id/logs/:log_id", a.deleteLog)
	authed.GET("/pets/:pet_id/expenses", a.listExpenses)
	authed.POST("/pets/:pet_id/expenses", a.addExpense)
	authed.PUT("/pets/:pet_id/expenses/:expense_id", a.updateExpense)
	authed.DELETE("/pets/:pet_id/expenses/:expense_id", a.deleteExpense)
	authed.GET("/pets/:pet_id/memos", a.listMemos)
	authed.POST("/pets/:pet_id/memos", a.addMemo)
	authed.PUT("/pets/:pet_id/memos/:memo_id", a.updateMemo)
	authed.DELETE("/pets/:pet_id/memos/:memo_id", a.deleteMemo)
	authed.POST("/pets/:pet_id/photos", a.addPhoto)
	authed.DELETE("/pets/:pet_id/photos/:photo_id", a.deletePhoto)
	authed.POST("/gemini/analyze", a.analyze)
	authed.POST("/gemini/parse", a.parse)
	authed.POST("/gemini/chat", a.chat)

	return router
}

func (a *App) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "petpulse-api",
	})
}

// authMiddleware validates the bearer token and derives the caller identity
// from the signed claims alone.
func (a *App) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			writeError(c, http.StatusUnauthorized, "Bearer token required")
			return
		}
		tokenString := strings.TrimSpace(authHeader[len("Bearer "):])
		if tokenString == "" {
			writeError(c, http.StatusUnauthorized, "Bearer token required")
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
			if token.Method == nil || token.Method.Alg() != a.cfg.JWTAlgorithm {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(a.cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			writeError(c, http.StatusUnauthorized, "Invalid bearer token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			writeError(c, http.StatusUnauthorized, "Invalid token payload")
			return
		}
		email, _ := claims["sub"].(string)
		email = strings.TrimSpace(email)
		if email == "" {
			writeError(c, http.StatusUnauthorized, "Token subject missing")
			return
		}

		c.Set("authUser", AuthUser{
			ID:    int64(extractNumberFromMap(claims, "uid")),
			Email: email,
		})
		c.Next()
	}
}

func authUserFromContext(c *gin.Context) (AuthUser, bool) {
	raw, ok := c.Get("authUser")
	if !ok {
		return AuthUser{}, false
	}
	user, ok := raw.(AuthUser)
	return user, ok
}

func writeError(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

func mustJSON(c *gin.Context, payload any) bool {
	if err := c.ShouldBindJSON(payload); err != nil {
		writeError(c, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	return true
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Param(name)), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, http.StatusBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func extractNumberFromMap(data map[string]any, keys ...string) float64 {
	if data == nil {
		return 0
	}
	for _, key := range keys {
		raw, ok := data[key]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case float64:
			return v
		case float32:
			return float64(v)
		case int:
			return float64(v)
		case int64:
			return float64(v)
		case json.Number:
			f, err := v.Float64()
			if err == nil {
				return f
			}
		case string:
			var parsed float64
			_, err := fmt.Sscanf(v, "%f", &parsed)
			if err == nil {
				return parsed
			}
		}
	}
	return 0
}

func parseJSONStringMap(input []byte) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	var result map[string]any
	if err := json.Unmarshal(input, &result); err != nil || result == nil {
		return map[string]any{}
	}
	return result
}

func mustMarshalJSON(input any) string {
	encoded, err := json.Marshal(input)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}

func toString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}
