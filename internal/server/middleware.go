package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/clipperpay/internal/authorization"
	obscontext "github.com/smallbiznis/clipperpay/internal/observability/context"
)

const (
	HeaderOperator       = "X-Operator-ID"
	contextOperatorIDKey = "operator_id"
)

// OperatorRequired reads the operator identity set by the upstream gateway.
// Authentication happens before requests reach this service.
func (s *Server) OperatorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		operatorID := strings.TrimSpace(c.GetHeader(HeaderOperator))
		if operatorID == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextOperatorIDKey, operatorID)
		c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), "operator", operatorID))
		c.Next()
	}
}

// authorizeAction guards routes whose service does not check the actor itself.
func (s *Server) authorizeAction(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authzSvc.Authorize(c.Request.Context(), operatorActor(c), object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func operatorActor(c *gin.Context) string {
	return authorization.OperatorActor(c.GetString(contextOperatorIDKey))
}
