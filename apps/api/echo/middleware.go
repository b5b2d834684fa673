package echoapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/madrasa/core"
	"github.com/trezcool/madrasa/core/user"
	"github.com/trezcool/madrasa/services/ratelimit"
)

var nowFunc = time.Now // mockable

const licenseExpiredHTML = `
<div style="font-family:sans-serif;text-align:center;padding:50px;direction:rtl">
    <h1>انتهت صلاحية النسخة التجريبية</h1>
    <p>يرجى التواصل مع المطور لتفعيل النسخة الكاملة.</p>
    <p>Code: EXP-OVER</p>
</div>
`

// licenseMiddleware answers every request with 402 once the license expired.
func licenseMiddleware(expiry time.Time) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if nowFunc().After(expiry) {
				return ctx.HTML(http.StatusPaymentRequired, licenseExpiredHTML)
			}
			return next(ctx)
		}
	}
}

// rateLimitMiddleware limits the attempts per client IP on a route.
func rateLimitMiddleware(limiter ratelimit.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ok, err := limiter.Allow(ctx.Request().Context(), ctx.RealIP()+" "+ctx.Path())
			if err != nil {
				return errors.Wrap(err, "limiting attempts")
			}
			if !ok {
				return errTooManyAttempts
			}
			return next(ctx)
		}
	}
}

// stepUpMiddleware requires the JSON body to carry the password of the admin making the request.
// The body is restored for the next handler.
func stepUpMiddleware(svc *user.Service, wrongPasswordMsg string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}

			req := ctx.Request()
			body, err := io.ReadAll(req.Body)
			if err != nil {
				return errors.Wrap(err, "reading body")
			}
			req.Body = io.NopCloser(bytes.NewReader(body))

			var data struct {
				Password string `json:"password"`
			}
			_ = json.Unmarshal(body, &data)

			err = svc.CheckAdminPassword(req.Context(), claims.UserID, data.Password)
			switch errors.Cause(err) {
			case nil:
				return next(ctx)
			case user.ErrWrongPassword:
				return core.Forbidden(wrongPasswordMsg)
			default:
				return err
			}
		}
	}
}
