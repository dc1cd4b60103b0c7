package testutil

import (
	"testing"

	"github.com/smallbiznis/clipperpay/internal/authorization"
	"github.com/smallbiznis/clipperpay/internal/config"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Authz returns the casbin-backed service with the given operator roles.
func Authz(t *testing.T, roles map[string]string) authorization.Service {
	t.Helper()
	enforcer, err := authorization.NewEnforcer(config.Config{OperatorRoles: roles})
	require.NoError(t, err)
	return authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer})
}
