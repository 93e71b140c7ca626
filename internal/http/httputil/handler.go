package httputil

import "github.com/gin-gonic/gin"

// IHttpHandler mounts a group of routes under Root on each API group. The relay
// only serves public routes; private and admin stay empty until keyed clients
// exist.
type IHttpHandler interface {
	Root() string
	SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup)
}
