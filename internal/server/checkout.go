package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/frostclub/internal/payment/checkout"
)

type membershipCheckoutRequest struct {
	Email    string `json:"email"`
	Tier     string `json:"tier"`
	Currency string `json:"currency"`
}

type storeCheckoutRequest struct {
	Items    []checkout.ItemRequest `json:"items"`
	Currency string                 `json:"currency"`
}

type eventCheckoutRequest struct {
	EventID  string `json:"event_id"`
	Quantity int    `json:"quantity"`
	Currency string `json:"currency"`
}

type sessionCheckoutRequest struct {
	SessionDate     string `json:"session_date"`
	DurationMinutes int    `json:"duration_minutes"`
	Notes           string `json:"notes"`
	Currency        string `json:"currency"`
}

// CreateMembershipCheckout starts a subscription checkout. Signed-in callers
// buy for their own profile; anonymous callers supply an email.
func (s *Server) CreateMembershipCheckout(c *gin.Context) {
	var req membershipCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	input := checkout.MembershipRequest{
		Email:    strings.TrimSpace(req.Email),
		Tier:     req.Tier,
		Currency: req.Currency,
	}
	if profile, ok := profileFromContext(c); ok {
		input.ProfileID = profile.ID
		if input.Email == "" {
			input.Email = profile.Email
		}
	}

	result, err := s.checkoutSvc.CreateMembershipCheckout(c.Request.Context(), input)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

// CreateStoreCheckout checks out the given items, or the caller's cart when
// the request lists none.
func (s *Server) CreateStoreCheckout(c *gin.Context) {
	profile, ok := profileFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req storeCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.checkoutSvc.CreateStoreCheckout(c.Request.Context(), checkout.StoreRequest{
		Profile:  profile,
		Items:    req.Items,
		Currency: req.Currency,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) CreateEventCheckout(c *gin.Context) {
	profile, ok := profileFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req eventCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.checkoutSvc.CreateEventCheckout(c.Request.Context(), checkout.EventRequest{
		Profile:  profile,
		EventID:  req.EventID,
		Quantity: req.Quantity,
		Currency: req.Currency,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) CreateSessionCheckout(c *gin.Context) {
	profile, ok := profileFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req sessionCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.checkoutSvc.CreateSessionCheckout(c.Request.Context(), checkout.SessionRequest{
		Profile:         profile,
		SessionDate:     req.SessionDate,
		DurationMinutes: req.DurationMinutes,
		Notes:           req.Notes,
		Currency:        req.Currency,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}
