package handler

import (
	"Deskwire/internal/model"
	"Deskwire/internal/repo"
	"Deskwire/internal/service"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type TicketHandler interface {
	ListTickets(c *gin.Context)
	CreateTicket(c *gin.Context)
	GetTicket(c *gin.Context)
	UpdateTicketStatus(c *gin.Context)
	GetTicketMessages(c *gin.Context)
}

type ticketHandler struct {
	service service.TicketService
}

func NewTicketHandler(service service.TicketService) TicketHandler {
	return &ticketHandler{
		service: service,
	}
}

type createTicketRequest struct {
	Subject     string `json:"subject" binding:"required"`
	RequesterID string `json:"requesterId" binding:"required"`
}

type updateStatusRequest struct {
	Status model.TicketStatus `json:"status" binding:"required"`
}

func (h *ticketHandler) ListTickets(c *gin.Context) {
	tickets, err := h.service.ListTickets(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list tickets",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tickets": tickets,
	})
}

func (h *ticketHandler) CreateTicket(c *gin.Context) {
	var req createTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "subject and requesterId are required",
		})
		return
	}

	ticket, err := h.service.CreateTicket(c.Request.Context(), req.Subject, req.RequesterID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create ticket",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"ticket": ticket,
	})
}

func (h *ticketHandler) GetTicket(c *gin.Context) {
	ticket, err := h.service.GetTicket(c.Request.Context(), c.Param("ticketId"))
	if err != nil {
		if errors.Is(err, repo.ErrTicketNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Ticket not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get ticket"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ticket": ticket,
	})
}

func (h *ticketHandler) UpdateTicketStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}

	ticket, err := h.service.UpdateTicketStatus(c.Request.Context(), c.Param("ticketId"), req.Status)
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrInvalidStatus):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ticket status"})
		case errors.Is(err, repo.ErrTicketNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Ticket not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update ticket status"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ticket": ticket,
	})
}

func (h *ticketHandler) GetTicketMessages(c *gin.Context) {
	ticketID := c.Param("ticketId")
	page := c.DefaultQuery("page", "1")
	pageNumber, err := strconv.ParseInt(page, 10, 64)
	if err != nil || pageNumber < 1 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid page number",
		})
		return
	}

	msgs, err := h.service.GetTicketMessages(c.Request.Context(), ticketID, pageNumber)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get messages",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": msgs,
	})
}
