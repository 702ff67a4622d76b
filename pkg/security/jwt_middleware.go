package security

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sitewarehouse/pkg/models"
	"sitewarehouse/pkg/roles"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const actorKey = "actor"

// Claims is the token payload issued by the identity service.
type Claims struct {
	UserID           int    `json:"userID"`
	Role             string `json:"role"`
	CurrentProjectID *int   `json:"currentProjectID,omitempty"`
	jwt.RegisteredClaims
}

type JWT struct {
	secret []byte
}

func NewJWT(secret string) *JWT {
	return &JWT{secret: []byte(secret)}
}

// GenerateToken signs a token for actor valid for ttl.
func (j *JWT) GenerateToken(actor models.Actor, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID:           actor.UserID,
		Role:             actor.Role.String(),
		CurrentProjectID: actor.CurrentProjectID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(actor.UserID),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

func (j *JWT) Parse(tokenString string) (models.Actor, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return j.secret, nil
	})
	if err != nil || !token.Valid {
		return models.Actor{}, errors.New("invalid token")
	}

	role := roles.Role(claims.Role)
	if claims.UserID == 0 || !role.IsValid() {
		return models.Actor{}, errors.New("token does not carry a valid user and role")
	}

	return models.Actor{
		UserID:           claims.UserID,
		Role:             role,
		CurrentProjectID: claims.CurrentProjectID,
	}, nil
}

// Middleware validates the bearer token and stores the actor on the context.
func (j *JWT) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header missing"})
			return
		}

		actor, err := j.Parse(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token", "details": err.Error()})
			return
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

// Authorize ensures the actor's role grants the permission.
func Authorize(p roles.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		if !ok || !actor.Role.Can(p) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden: insufficient permissions"})
			return
		}

		c.Next()
	}
}

func ActorFromContext(c *gin.Context) (models.Actor, bool) {
	value, exists := c.Get(actorKey)
	if !exists {
		return models.Actor{}, false
	}
	actor, ok := value.(models.Actor)
	return actor, ok
}
