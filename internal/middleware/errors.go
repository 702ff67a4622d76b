package middleware

import (
	custom_error "sitewarehouse/pkg/errors"

	"github.com/gin-gonic/gin"
)

// AbortWithError writes err using the status of its taxonomy type. Domain
// errors carry their structured fields as details.
func AbortWithError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	if custom_error.IsDomainError(err) {
		body["details"] = err
	}
	if id := RequestID(c); id != "" {
		body["request_id"] = id
	}

	c.AbortWithStatusJSON(custom_error.HTTPStatus(err), body)
}
