package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Client-facing message texts. Clients match on these, keep them stable.
const (
	MsgUserCreated        = "New user CREATED."
	MsgUserUpdated        = "User has been UPDATED"
	MsgPasswordUpdated    = "User password has been UPDATED"
	MsgAdminUpdated       = "Admin role updated"
	MsgUserDeleted        = "User has been DELETED"
	MsgFileUploaded       = "File UPLOADED !"
	MsgNoUserFound        = "No user found!"
	MsgUserNotFound       = "User not found!"
	MsgIncorrectInput     = "Incorrect input data!"
	MsgEmailTaken         = "User with this email already exists!"
	MsgTooManyRecords     = "Too many records for insert!"
	MsgNoFilePart         = "No file part"
	MsgNoSelectedFile     = "No selected file"
	MsgFileTypeNotAllowed = "Only .json files are allowed!"
	MsgUploadTooLarge     = "Uploaded file is too large!"
)

type APIError struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"requestId,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

func requestIDFrom(ctx *gin.Context) string {
	v, ok := ctx.Get("request_id")

	if ok {
		s, ok := v.(string)
		if ok && s != "" {
			return s
		}
	}

	// fallback header
	return ctx.GetHeader("X-Request-Id")
}

// RespondError writes the error envelope. The top-level "message" carries the
// plain text older clients read; "error" carries the structured detail.
func RespondError(ctx *gin.Context, status int, code, message string, details interface{}) {
	ctx.JSON(status, gin.H{
		"message": message,
		"error": APIError{
			Code:      code,
			Message:   message,
			RequestID: requestIDFrom(ctx),
			Details:   details,
		},
	})
}

func RespondMessage(ctx *gin.Context, status int, message string) {
	ctx.JSON(status, gin.H{"message": message})
}

func RespondBadRequest(ctx *gin.Context, message string, details interface{}) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", message, details)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, "not_found", message, nil)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, "internal_error", message, nil)
}

func RespondConflict(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusConflict, code, message, nil)
}

func RespondTooLarge(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusRequestEntityTooLarge, code, message, nil)
}
