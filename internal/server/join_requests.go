package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	collabdomain "github.com/smallbiznis/researchhub/internal/collaboration/domain"
)

type submitJoinRequest struct {
	Message string `json:"message"`
}

type respondJoinRequest struct {
	Decision        string `json:"decision"`
	ResponseMessage string `json:"response_message"`
}

func (s *Server) SubmitJoinRequest(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	projectID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	var req submitJoinRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	joinRequest, err := s.collaborationSvc.SubmitRequest(c.Request.Context(), projectID, userID, req.Message)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": joinRequest})
}

func (s *Server) RespondJoinRequest(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	requestID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	var req respondJoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	decision, err := collabdomain.ParseDecision(req.Decision)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.collaborationSvc.RespondToRequest(c.Request.Context(), collabdomain.RespondRequest{
		RequestID:       requestID,
		Decision:        decision,
		ResponseMessage: req.ResponseMessage,
		ResponderID:     userID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"request":        result.Request,
		"membership":     result.Membership,
		"chat_activated": result.ChatActivated,
	}})
}
