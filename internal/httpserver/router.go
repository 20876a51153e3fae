package httpserver

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Router struct {
	Engine *gin.Engine
}

func NewRouter(statusHandler *StatusHandler) *Router {
	r := gin.Default()

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/accounts/:id/status", statusHandler.GetAccountStatus)
	r.GET("/messages/quarantined", statusHandler.ListQuarantined)

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
