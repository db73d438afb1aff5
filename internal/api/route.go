package api

import (
	"Roger/internal/api/middleware"
	"Roger/internal/pkg/logger"
	"net/http"

	"github.com/gin-gonic/gin"
)

func SetupRouter(group *HandlersGroup, controlToken string) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies(nil)

	// TraceId & Logger & CORS
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.AuditMiddleware())
	r.Use(middleware.CORSMiddleware())
	logger.SetupGin(r)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"code":    200,
				"message": "pong",
				"data":    nil,
			})
		})

		authGroup := apiGroup.Group("")
		authGroup.Use(middleware.ControlTokenMiddleware(controlToken))

		sessionGroup := authGroup.Group("/session")
		{
			sessionGroup.GET("", group.SessionHandler.Get)
			sessionGroup.POST("", group.SessionHandler.SignIn)
			sessionGroup.DELETE("", group.SessionHandler.SignOut)
		}

		streamGroup := authGroup.Group("/streams")
		{
			streamGroup.GET("", group.StreamHandler.List)
			streamGroup.POST("", group.StreamHandler.Create)
			streamGroup.POST("/more", group.StreamHandler.LoadMore)
			streamGroup.GET("/:id", group.StreamHandler.Get)
			streamGroup.DELETE("/:id", group.StreamHandler.Hide)
			streamGroup.POST("/:id/play", group.StreamHandler.Play)
			streamGroup.POST("/:id/record", group.StreamHandler.Record)
		}

		audioGroup := authGroup.Group("/audio")
		{
			audioGroup.GET("", group.AudioHandler.State)
			audioGroup.POST("/stop", group.AudioHandler.Stop)
			audioGroup.POST("/next", group.AudioHandler.Next)
			audioGroup.POST("/previous", group.AudioHandler.Previous)
			audioGroup.POST("/rewind", group.AudioHandler.Rewind)
			audioGroup.POST("/forward", group.AudioHandler.Forward)
			audioGroup.PUT("/rate", group.AudioHandler.Rate)
			audioGroup.PUT("/loudspeaker", group.AudioHandler.Loudspeaker)
			audioGroup.PUT("/proximity", group.AudioHandler.Proximity)
			audioGroup.POST("/route", group.AudioHandler.RouteChanged)
			audioGroup.POST("/interruption", group.AudioHandler.Interruption)
			audioGroup.POST("/record/stop", group.AudioHandler.StopRecording)
		}

		contactGroup := authGroup.Group("/contacts")
		{
			contactGroup.GET("", group.ContactHandler.List)
			contactGroup.POST("/import", group.ContactHandler.Import)
			contactGroup.POST("/changed", group.ContactHandler.AddressBookChanged)
			contactGroup.POST("/lookup", group.ContactHandler.Lookup)
			contactGroup.GET("/account/:account_id", group.ContactHandler.ByAccount)
			contactGroup.POST("/:id/invite", group.ContactHandler.Invite)
		}

		authGroup.POST("/push", group.PushHandler.Deliver)
		authGroup.GET("/events", group.WsHandler.Connect)
	}

	return r
}
