package approuters

import (
	"Deskwire/internal/configuration"

	"github.com/gin-gonic/gin"
)

func TicketRouters(router *gin.Engine, container *configuration.Container) {
	ticketRoute := router.Group("/dw/api/tickets")
	{
		ticketRoute.GET("", container.TicketHandler.ListTickets)
		ticketRoute.POST("", container.TicketHandler.CreateTicket)
		ticketRoute.GET("/:ticketId", container.TicketHandler.GetTicket)
		ticketRoute.PATCH("/:ticketId/status", container.TicketHandler.UpdateTicketStatus)
		ticketRoute.GET("/:ticketId/messages", container.TicketHandler.GetTicketMessages)
	}
}
