package echoapi

import (
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/madrasa/core"
)

var successResponse = echo.Map{"success": true}

type (
	LoginResponse struct {
		Success bool        `json:"success"`
		User    interface{} `json:"user"`
		Token   string      `json:"token"`
	}

	ForgotPasswordRequest struct {
		Email string `json:"email"`
	}

	ForgotPasswordResponse struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Link    string `json:"link"`
	}

	CreatedResponse struct {
		ID int `json:"id"`
	}

	ImportResponse struct {
		Imported int  `json:"imported"`
		Success  bool `json:"success"`
	}

	// IDRequest is the body of the password-gated deletions.
	IDRequest struct {
		ID       int    `json:"id"`
		Password string `json:"password"`
	}

	BulkDeleteRequest struct {
		IDs  []int  `json:"ids"`
		Type string `json:"type"`
	}

	ResetStatsRequest struct {
		Code string `json:"code"`
	}

	SendMessageRequest struct {
		SenderID    int      `json:"sender_id"`
		ReceiverID  null.Int `json:"receiver_id"`
		GroupID     null.Int `json:"group_id"`
		MessageText string   `json:"message_text"`
	}
)

// paramID reads a numeric path parameter; anything else is a 404.
func paramID(ctx echo.Context, name string) (int, error) {
	id, err := strconv.Atoi(ctx.Param(name))
	if err != nil {
		return 0, errHttpNotFound
	}
	return id, nil
}

// formInt reads an optional numeric form value; blanks, "null" and garbage are null.
func formInt(ctx echo.Context, name string) null.Int {
	v := strings.TrimSpace(ctx.FormValue(name))
	id, err := strconv.Atoi(v)
	if err != nil {
		return null.Int{}
	}
	return null.IntFrom(id)
}

func queryInt(ctx echo.Context, name string) int {
	id, _ := strconv.Atoi(strings.TrimSpace(ctx.QueryParam(name)))
	return id
}

func bind(ctx echo.Context, data interface{}) error {
	if err := ctx.Bind(data); err != nil {
		return errors.Wrapf(err, "binding to %T", data)
	}
	return nil
}

// contextActor returns the user id to act as: admins may act for anyone,
// other users only for themselves (0 means themselves).
func contextActor(ctx echo.Context, id int) (int, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return claims.UserID, nil
	}
	if id != claims.UserID && !claims.IsAdmin() {
		return 0, errHttpForbidden
	}
	return id, nil
}

// formFile returns the uploaded "file" part, or errNoFile when there is none.
func formFile(ctx echo.Context, errNoFile error) (*multipart.FileHeader, error) {
	fh, err := ctx.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, errNoFile
		}
		return nil, core.BadRequest(err.Error())
	}
	return fh, nil
}
