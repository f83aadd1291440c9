package response

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Response is the envelope every JSON endpoint returns. Data and Error are
// mutually exclusive; Metadata is always present.
type Response struct {
	Data       interface{} `json:"data"`
	Error      *ErrorBody  `json:"error,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Metadata   Metadata    `json:"metadata"`
}

// ErrorBody carries a machine-readable code, its localized message, and
// optional field-level validation detail.
type ErrorBody struct {
	Code    ErrCode           `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// Metadata carries the request ID and server timestamp for tracing.
type Metadata struct {
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// Success writes a successful envelope.
func Success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Data: data, Metadata: metadata(c)})
}

// SuccessWithPagination writes a successful envelope with paging info.
func SuccessWithPagination(c *gin.Context, status int, data interface{}, p *Pagination) {
	c.JSON(status, Response{Data: data, Pagination: p, Metadata: metadata(c)})
}

// Fail writes an error envelope.
func Fail(c *gin.Context, status int, code ErrCode) {
	writeError(c, status, code, nil, false)
}

// FailWithFields writes an error envelope with per-field validation messages.
func FailWithFields(c *gin.Context, status int, code ErrCode, fields map[string]string) {
	writeError(c, status, code, fields, false)
}

// AbortFail writes an error envelope and stops the middleware chain.
func AbortFail(c *gin.Context, status int, code ErrCode) {
	writeError(c, status, code, nil, true)
}

func writeError(c *gin.Context, status int, code ErrCode, fields map[string]string, abort bool) {
	body := Response{
		Error:    &ErrorBody{Code: code, Message: GetMessage(code), Fields: fields},
		Metadata: metadata(c),
	}
	if abort {
		c.AbortWithStatusJSON(status, body)
		return
	}
	c.JSON(status, body)
}

func metadata(c *gin.Context) Metadata {
	id := RequestID(c)
	if id == "" {
		// Middleware not applied on this route; still emit a traceable ID.
		id = uuid.NewString()
	}
	return Metadata{
		RequestID: id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
