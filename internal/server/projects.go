package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	projectdomain "github.com/smallbiznis/researchhub/internal/project/domain"
)

type createProjectRequest struct {
	Title                 string `json:"title"`
	Description           string `json:"description"`
	RequiredCollaborators int    `json:"required_collaborators"`
}

type updateQuorumRequest struct {
	RequiredCollaborators *int `json:"required_collaborators"`
}

func (s *Server) CreateProject(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	project, err := s.projectSvc.Create(c.Request.Context(), userID, projectdomain.CreateProjectRequest{
		Title:                 strings.TrimSpace(req.Title),
		Description:           req.Description,
		RequiredCollaborators: req.RequiredCollaborators,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": project})
}

func (s *Server) GetProject(c *gin.Context) {
	projectID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	project, err := s.projectSvc.Get(c.Request.Context(), projectID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := gin.H{"project": project}
	if project.Status == projectdomain.StatusActive {
		if room, err := s.projectSvc.ChatRoom(c.Request.Context(), projectID); err == nil {
			resp["chat_room"] = room
		}
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateProjectQuorum(c *gin.Context) {
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

	var req updateQuorumRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RequiredCollaborators == nil {
		AbortWithError(c, newValidationError("required_collaborators", "required", "required_collaborators is required"))
		return
	}

	project, err := s.projectSvc.UpdateRequiredCollaborators(c.Request.Context(), userID, projectID, *req.RequiredCollaborators)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": project})
}
