package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/wadispatch/pkg/middleware"
)

// EventStream serves an owner's live events over a websocket.
type EventStream interface {
	ServeWS(w http.ResponseWriter, r *http.Request, tenantID uint) error
}

func EventRoutes(r *gin.RouterGroup, stream EventStream) {
	authGroup := r.Group("", middleware.CheckAuth())
	{
		authGroup.GET("/ws", subscribeEvents(stream))
	}
}

// @Summary Live events of the account
// @Description Websocket stream of campaign progress, session state and inbound messages. The token may be passed as ?token=.
// @Tags events
// @Security BearerAuth
// @Router /events/ws [get]
func subscribeEvents(stream EventStream) func(c *gin.Context) {
	return func(c *gin.Context) {
		ownerID, ok := currentOwner(c)
		if !ok {
			return
		}
		// A failed upgrade has already answered the request.
		if err := stream.ServeWS(c.Writer, c.Request, ownerID); err != nil {
			logrus.WithField("component", "http").WithError(err).Warn("websocket upgrade failed")
		}
	}
}
