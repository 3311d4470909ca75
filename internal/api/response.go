package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo"

	"MemberReserve/internal/model"
)

var (
	OK             = EchoResponse{StatusCode: http.StatusOK, Code: 1000, Msg: "Success"}
	InternalServer = EchoResponse{StatusCode: http.StatusInternalServerError, Code: 1100, Msg: "Server busy..."}
	Invalid        = EchoResponse{StatusCode: http.StatusBadRequest, Code: 1101, Msg: "Bad request"}
	Conflict       = EchoResponse{StatusCode: http.StatusConflict, Code: 1102, Msg: "Not allowed in current state"}
	NotFound       = EchoResponse{StatusCode: http.StatusNotFound, Code: 1104, Msg: "Not found"}
	Forbidden      = EchoResponse{StatusCode: http.StatusForbidden, Code: 1103, Msg: "Forbidden"}
	Unauthorized   = EchoResponse{StatusCode: http.StatusUnauthorized, Code: 401, Msg: "Unauthorized"}
)

type EchoResponse struct {
	StatusCode int         `json:"-"`
	Code       int         `json:"code"`
	Msg        string      `json:"msg"`
	Data       interface{} `json:"data,omitempty"`
}

// SetData returns a copy of r carrying data.
func (r EchoResponse) SetData(data interface{}) EchoResponse {
	r.Data = data
	return r
}

// SetMsg returns a copy of r with msg appended to the generic message.
func (r EchoResponse) SetMsg(msg string) EchoResponse {
	r.Msg = r.Msg + ": " + msg
	return r
}

func (r EchoResponse) Build(c echo.Context) error {
	return c.JSON(r.StatusCode, r)
}

// fromError picks the response for a rejected operation.
func fromError(err error) EchoResponse {
	if errors.Is(err, model.ErrNotFound) {
		return NotFound.SetMsg(err.Error())
	}
	switch model.Classify(err) {
	case model.ClassValidation:
		return Invalid.SetMsg(err.Error())
	case model.ClassState:
		return Conflict.SetMsg(err.Error())
	case model.ClassAuthorization:
		return Forbidden.SetMsg(err.Error())
	default:
		return InternalServer
	}
}
