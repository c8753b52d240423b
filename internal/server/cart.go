package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type addCartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

func (s *Server) GetCart(c *gin.Context) {
	profile, ok := profileFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	view, err := s.cartSvc.Get(c.Request.Context(), profile.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (s *Server) AddCartItem(c *gin.Context) {
	profile, ok := profileFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req addCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	view, err := s.cartSvc.AddItem(c.Request.Context(), profile.ID, profile.Tier, req.ProductID, req.Quantity)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}

// UpdateCartItem sets the quantity; zero or less removes the line.
func (s *Server) UpdateCartItem(c *gin.Context) {
	profile, ok := profileFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req updateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	view, err := s.cartSvc.UpdateItem(c.Request.Context(), profile.ID, c.Param("productId"), req.Quantity)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (s *Server) RemoveCartItem(c *gin.Context) {
	profile, ok := profileFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	view, err := s.cartSvc.RemoveItem(c.Request.Context(), profile.ID, c.Param("productId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (s *Server) ClearCart(c *gin.Context) {
	profile, ok := profileFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	view, err := s.cartSvc.Clear(c.Request.Context(), profile.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}
