package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS strategies selectable from config.
const (
	CORSFull   = "full"
	CORSStatic = "static"
)

var (
	allowMethods = []string{"GET", "POST", "OPTIONS"}
	allowHeaders = []string{"Content-Type", "X-Request-ID"}
)

// CORSPolicy is the cross-origin strategy picked at startup.
type CORSPolicy interface {
	Name() string
	Handlers() []gin.HandlerFunc
}

// NewCORS returns the policy for mode. Unknown modes get the static shim.
func NewCORS(mode string) CORSPolicy {
	if mode == CORSFull {
		return fullCORS{}
	}
	return staticCORS{}
}

// staticCORS stamps fixed permissive headers on every response.
type staticCORS struct{}

func (staticCORS) Name() string { return CORSStatic }

func (staticCORS) Handlers() []gin.HandlerFunc {
	return []gin.HandlerFunc{staticHeaders(), preflight()}
}

// fullCORS adds gin-contrib/cors negotiation on top of the static headers,
// so requests without an Origin still carry them.
type fullCORS struct{}

func (fullCORS) Name() string { return CORSFull }

func (fullCORS) Handlers() []gin.HandlerFunc {
	negotiate := cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    allowMethods,
		AllowHeaders:    allowHeaders,
		ExposeHeaders:   []string{"X-Request-ID"},
		MaxAge:          12 * time.Hour,
	})
	return []gin.HandlerFunc{staticHeaders(), negotiate, preflight()}
}

func staticHeaders() gin.HandlerFunc {
	methods := strings.Join(allowMethods, ", ")
	headers := strings.Join(allowHeaders, ", ")

	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", methods)
		c.Writer.Header().Set("Access-Control-Allow-Headers", headers)
		c.Next()
	}
}

// preflight answers every OPTIONS request with an empty 204 before routing.
func preflight() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
