package http

import (
	"net/http"

	"gigs/chat"

	"github.com/labstack/echo/v4"
)

func (h handler) ListMessages(c echo.Context) error {
	messages, err := h.Conversations.Messages(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, messages)
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

type sendMessageResponse struct {
	Route chat.Route `json:"route"`
}

func (h handler) SendMessage(c echo.Context) error {
	var request sendMessageRequest
	if err := c.Bind(&request); err != nil {
		return badRequest(err)
	}

	route, err := h.Conversations.Send(c.Request().Context(), c.Param("id"), request.Content)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusAccepted, sendMessageResponse{Route: route})
}

type typingRequest struct {
	Text string `json:"text"`
}

func (h handler) InputChanged(c echo.Context) error {
	var request typingRequest
	if err := c.Bind(&request); err != nil {
		return badRequest(err)
	}

	if err := h.Conversations.InputChanged(c.Request().Context(), c.Param("id"), request.Text); err != nil {
		return httpError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (h handler) ListTyping(c echo.Context) error {
	typers, err := h.Conversations.Typing(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, typers)
}
