package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func SetupRouter(wsController *WSController, roomController *RoomController, origins *OriginPolicy) *gin.Engine {
	router := gin.Default()
	config := cors.DefaultConfig()
	if origins.AllowAll() {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins.List()
		config.AllowCredentials = true
	}
	config.AllowHeaders = []string{
		"Content-Type",
		"Origin",
		"Accept",
	}
	config.AllowMethods = []string{"GET", "HEAD", "OPTIONS"}
	router.Use(cors.New(config))

	if roomController != nil {
		router.GET("/healthz", roomController.Health)
	} else {
		router.GET("/healthz", func(ctx *gin.Context) {
			ctx.JSON(200, gin.H{"status": "ok"})
		})
	}

	if wsController != nil {
		router.GET("/ws", wsController.Connect)
	}

	api := router.Group("/api")

	if roomController != nil {
		rooms := api.Group("/rooms")
		rooms.GET("", roomController.ListRooms)
		rooms.GET("/:kind/:roomID", roomController.GetRoom)
	}

	return router
}
