package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListTiers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.tiers.List()})
}

func (s *Server) ListProducts(c *gin.Context) {
	category := strings.TrimSpace(c.Query("category"))
	products, err := s.productSvc.ListVisible(c.Request.Context(), viewerTier(c), category)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": products})
}

func (s *Server) GetProduct(c *gin.Context) {
	product, err := s.productSvc.Get(c.Request.Context(), c.Param("id"), viewerTier(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": product})
}

// ListEvents lists upcoming events unless upcoming=false is passed.
func (s *Server) ListEvents(c *gin.Context) {
	upcoming, err := parseOptionalBool(c.Query("upcoming"))
	if err != nil {
		AbortWithError(c, newValidationError("upcoming", "invalid_upcoming", "invalid upcoming"))
		return
	}
	upcomingOnly := upcoming == nil || *upcoming

	events, err := s.eventSvc.List(c.Request.Context(), upcomingOnly, viewerTier(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": events})
}

func (s *Server) GetEvent(c *gin.Context) {
	event, err := s.eventSvc.Get(c.Request.Context(), c.Param("id"), viewerTier(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": event})
}

func (s *Server) ListContent(c *gin.Context) {
	items, err := s.contentSvc.ListVisible(c.Request.Context(), viewerTier(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

// GetContent returns the full entry; gated entries above the viewer's tier are forbidden.
func (s *Server) GetContent(c *gin.Context) {
	item, err := s.contentSvc.Get(c.Request.Context(), c.Param("id"), viewerTier(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}
