package echoapi

import (
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/madrasa/core/user"
)

const roleMember = "member"

const authzModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && regexMatch(r.act, p.act)
`

// authzPolicies: admins reach everything; teachers & students share the member routes.
var authzPolicies = [][]string{
	{user.TypeAdmin, "/api/*", ".*"},

	{roleMember, "/api/levels", "GET"},
	{roleMember, "/api/groups", "GET"},
	{roleMember, "/api/subjects", "GET"},
	{roleMember, "/api/user/:id/chat-groups", "GET"},
	{roleMember, "/api/chat-groups/:id/messages", "GET"},
	{roleMember, "/api/chat-groups/:id/members", "GET"},
	{roleMember, "/api/chat-groups/:id/details", "GET"},
	{roleMember, "/api/chat-groups/:id/settings", "POST"},
	{roleMember, "/api/conversation/mark-read", "POST"},
	{roleMember, "/api/conversation/:u1/:u2", "GET"},
	{roleMember, "/api/message/send", "POST"},
	{roleMember, "/api/message/upload", "POST"},
	{roleMember, "/api/lessons", "GET"},
	{roleMember, "/api/notifications/:uid", "GET"},
	{roleMember, "/api/notifications/read/:id", "POST"},
	{roleMember, "/api/notifications/clear/:uid", "POST"},
	{roleMember, "/api/users/:id/avatar", "POST"},

	{user.TypeTeacher, "/api/teacher/:id/linked-students", "GET"},
	{user.TypeTeacher, "/api/teachers/:id/scope", "GET"},
	{user.TypeTeacher, "/api/teachers/:id/lessons", "GET"},
	{user.TypeTeacher, "/api/lessons", "POST"},
	{user.TypeTeacher, "/api/lessons/:id", "DELETE"},

	{user.TypeStudent, "/api/student/:id/linked-teachers", "GET"},
}

var authzRoles = [][]string{
	{user.TypeTeacher, roleMember},
	{user.TypeStudent, roleMember},
}

func newEnforcer() (*casbin.Enforcer, error) {
	m, err := model.NewModelFromString(authzModel)
	if err != nil {
		return nil, errors.Wrap(err, "parsing authz model")
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, errors.Wrap(err, "creating enforcer")
	}
	if _, err = e.AddPolicies(authzPolicies); err != nil {
		return nil, errors.Wrap(err, "adding policies")
	}
	if _, err = e.AddGroupingPolicies(authzRoles); err != nil {
		return nil, errors.Wrap(err, "adding roles")
	}
	return e, nil
}

// authzMiddleware lets the request through when the token's user type may call the route.
func authzMiddleware(e *casbin.Enforcer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			ok, err := e.Enforce(claims.Type, ctx.Request().URL.Path, ctx.Request().Method)
			if err != nil {
				return errors.Wrap(err, "enforcing policy")
			}
			if !ok {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}
