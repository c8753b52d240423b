package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/frostclub/internal/audit"
	auditdomain "github.com/smallbiznis/frostclub/internal/audit/domain"
	"github.com/smallbiznis/frostclub/internal/auth"
	authdomain "github.com/smallbiznis/frostclub/internal/auth/domain"
	"github.com/smallbiznis/frostclub/internal/authorization"
	"github.com/smallbiznis/frostclub/internal/booking"
	bookingdomain "github.com/smallbiznis/frostclub/internal/booking/domain"
	"github.com/smallbiznis/frostclub/internal/cart"
	"github.com/smallbiznis/frostclub/internal/config"
	"github.com/smallbiznis/frostclub/internal/content"
	contentdomain "github.com/smallbiznis/frostclub/internal/content/domain"
	"github.com/smallbiznis/frostclub/internal/event"
	eventdomain "github.com/smallbiznis/frostclub/internal/event/domain"
	"github.com/smallbiznis/frostclub/internal/notification"
	"github.com/smallbiznis/frostclub/internal/observability"
	obslogger "github.com/smallbiznis/frostclub/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/frostclub/internal/observability/metrics"
	obstracing "github.com/smallbiznis/frostclub/internal/observability/tracing"
	"github.com/smallbiznis/frostclub/internal/order"
	orderdomain "github.com/smallbiznis/frostclub/internal/order/domain"
	"github.com/smallbiznis/frostclub/internal/payment"
	"github.com/smallbiznis/frostclub/internal/payment/checkout"
	"github.com/smallbiznis/frostclub/internal/payment/reconcile"
	"github.com/smallbiznis/frostclub/internal/payment/webhook"
	"github.com/smallbiznis/frostclub/internal/product"
	productdomain "github.com/smallbiznis/frostclub/internal/product/domain"
	"github.com/smallbiznis/frostclub/internal/profile"
	profiledomain "github.com/smallbiznis/frostclub/internal/profile/domain"
	"github.com/smallbiznis/frostclub/internal/providers"
	"github.com/smallbiznis/frostclub/internal/providers/pdf"
	"github.com/smallbiznis/frostclub/internal/ratelimit"
	"github.com/smallbiznis/frostclub/internal/tier"
	"github.com/smallbiznis/frostclub/internal/upload"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	authorization.Module,
	audit.Module,
	auth.Module,
	tier.Module,
	profile.Module,
	product.Module,
	order.Module,
	booking.Module,
	event.Module,
	content.Module,
	cart.Module,
	providers.Module,
	notification.Module,
	payment.Module,
	ratelimit.Module,
	upload.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	log = log.Named("http.server")

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	log    *zap.Logger

	verifier   authdomain.Verifier
	authzSvc   authorization.Service
	auditSvc   auditdomain.Service
	profileSvc profiledomain.Service
	productSvc productdomain.Service
	orderSvc   orderdomain.Service
	bookingSvc bookingdomain.Service
	eventSvc   eventdomain.Service
	contentSvc contentdomain.Service
	cartSvc    *cart.Service
	tiers      *tier.Catalog

	checkoutSvc  *checkout.Service
	reconcileSvc *reconcile.Service
	webhookSvc   *webhook.Service

	uploads    *upload.Service
	pdf        pdf.Provider
	limiter    *ratelimit.Limiter
	obsMetrics *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	Verifier     authdomain.Verifier
	AuthzSvc     authorization.Service
	AuditSvc     auditdomain.Service
	ProfileSvc   profiledomain.Service
	ProductSvc   productdomain.Service
	OrderSvc     orderdomain.Service
	BookingSvc   bookingdomain.Service
	EventSvc     eventdomain.Service
	ContentSvc   contentdomain.Service
	CartSvc      *cart.Service
	Tiers        *tier.Catalog
	CheckoutSvc  *checkout.Service
	ReconcileSvc *reconcile.Service
	WebhookSvc   *webhook.Service
	Uploads      *upload.Service
	PDF          pdf.Provider
	Limiter      *ratelimit.Limiter  `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          p.Log.Named("http.handlers"),
		verifier:     p.Verifier,
		authzSvc:     p.AuthzSvc,
		auditSvc:     p.AuditSvc,
		profileSvc:   p.ProfileSvc,
		productSvc:   p.ProductSvc,
		orderSvc:     p.OrderSvc,
		bookingSvc:   p.BookingSvc,
		eventSvc:     p.EventSvc,
		contentSvc:   p.ContentSvc,
		cartSvc:      p.CartSvc,
		tiers:        p.Tiers,
		checkoutSvc:  p.CheckoutSvc,
		reconcileSvc: p.ReconcileSvc,
		webhookSvc:   p.WebhookSvc,
		uploads:      p.Uploads,
		pdf:          p.PDF,
		limiter:      p.Limiter,
		obsMetrics:   p.ObsMetrics,
	}

	svc.registerPublicRoutes()
	svc.registerCheckoutRoutes()
	svc.registerPaymentRoutes()
	svc.registerMemberRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerPublicRoutes() {
	api := s.engine.Group("/api")
	api.GET("/tiers", s.ListTiers)

	catalog := api.Group("", s.OptionalAuth())
	catalog.GET("/products", s.ListProducts)
	catalog.GET("/products/:id", s.GetProduct)
	catalog.GET("/events", s.ListEvents)
	catalog.GET("/events/:id", s.GetEvent)
	catalog.GET("/content", s.ListContent)
	catalog.GET("/content/:id", s.GetContent)

	if s.uploads != nil {
		s.engine.Static(upload.PublicPrefix, s.uploads.Dir())
	}
}

func (s *Server) registerCheckoutRoutes() {
	group := s.engine.Group("/api/checkout", s.CheckoutRateLimit())
	group.POST("/membership", s.OptionalAuth(), s.CreateMembershipCheckout)
	group.POST("/store", s.AuthRequired(), s.CreateStoreCheckout)
	group.POST("/event", s.AuthRequired(), s.CreateEventCheckout)
	group.POST("/session", s.AuthRequired(), s.CreateSessionCheckout)
}

func (s *Server) registerPaymentRoutes() {
	api := s.engine.Group("/api")
	api.POST("/payments/verify", s.VerifyPayment)
	api.POST("/webhooks/stripe", s.ReceiveStripeWebhook)

	admin := api.Group("/webhooks", s.AuthRequired())
	admin.GET("/status", s.AdminRequired(authorization.ObjectWebhook, authorization.ActionView), s.WebhookStatus)
	if !s.cfg.IsProduction() {
		admin.POST("/test", s.AdminRequired(authorization.ObjectWebhook, authorization.ActionTest), s.WebhookSelfTest)
	}
}

func (s *Server) registerMemberRoutes() {
	me := s.engine.Group("/api/me", s.AuthRequired())
	me.GET("", s.GetMe)
	me.GET("/orders", s.ListMyOrders)
	me.GET("/orders/:id/receipt", s.DownloadOrderReceipt)
	me.GET("/bookings", s.ListMyBookings)
	me.GET("/registrations", s.ListMyRegistrations)
	me.GET("/registrations/:id/ticket", s.DownloadRegistrationTicket)

	cartGroup := s.engine.Group("/api/cart", s.AuthRequired())
	cartGroup.GET("", s.GetCart)
	cartGroup.DELETE("", s.ClearCart)
	cartGroup.POST("/items", s.AddCartItem)
	cartGroup.PATCH("/items/:productId", s.UpdateCartItem)
	cartGroup.DELETE("/items/:productId", s.RemoveCartItem)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/admin", s.AuthRequired())

	admin.POST("/uploads", s.AdminRequired(authorization.ObjectUpload, authorization.ActionCreate), s.UploadFile)

	admin.GET("/products", s.AdminRequired(authorization.ObjectProduct, authorization.ActionView), s.AdminListProducts)
	admin.POST("/products", s.AdminRequired(authorization.ObjectProduct, authorization.ActionCreate), s.AdminCreateProduct)
	admin.PATCH("/products/:id", s.AdminRequired(authorization.ObjectProduct, authorization.ActionUpdate), s.AdminUpdateProduct)
	admin.DELETE("/products/:id", s.AdminRequired(authorization.ObjectProduct, authorization.ActionDelete), s.AdminDeleteProduct)

	admin.GET("/orders", s.AdminRequired(authorization.ObjectOrder, authorization.ActionView), s.AdminListOrders)
	admin.GET("/orders/:id", s.AdminRequired(authorization.ObjectOrder, authorization.ActionView), s.AdminGetOrder)
	admin.PATCH("/orders/:id", s.AdminRequired(authorization.ObjectOrder, authorization.ActionUpdate), s.AdminUpdateOrderStatus)

	admin.GET("/bookings", s.AdminRequired(authorization.ObjectBooking, authorization.ActionView), s.AdminListBookings)
	admin.GET("/bookings/:id", s.AdminRequired(authorization.ObjectBooking, authorization.ActionView), s.AdminGetBooking)
	admin.PATCH("/bookings/:id", s.AdminRequired(authorization.ObjectBooking, authorization.ActionUpdate), s.AdminUpdateBookingStatus)

	admin.GET("/events", s.AdminRequired(authorization.ObjectEvent, authorization.ActionView), s.AdminListEvents)
	admin.GET("/events/:id", s.AdminRequired(authorization.ObjectEvent, authorization.ActionView), s.AdminGetEvent)
	admin.POST("/events", s.AdminRequired(authorization.ObjectEvent, authorization.ActionCreate), s.AdminCreateEvent)
	admin.PATCH("/events/:id", s.AdminRequired(authorization.ObjectEvent, authorization.ActionUpdate), s.AdminUpdateEvent)

	admin.GET("/content", s.AdminRequired(authorization.ObjectContent, authorization.ActionView), s.AdminListContent)
	admin.POST("/content", s.AdminRequired(authorization.ObjectContent, authorization.ActionCreate), s.AdminCreateContent)
	admin.DELETE("/content/:id", s.AdminRequired(authorization.ObjectContent, authorization.ActionDelete), s.AdminDeleteContent)

	admin.GET("/profiles", s.AdminRequired(authorization.ObjectProfile, authorization.ActionView), s.AdminListProfiles)
	admin.GET("/profiles/:id", s.AdminRequired(authorization.ObjectProfile, authorization.ActionView), s.AdminGetProfile)
	admin.PATCH("/profiles/:id", s.AdminRequired(authorization.ObjectProfile, authorization.ActionUpdate), s.AdminUpdateProfile)

	admin.GET("/audit-logs", s.AdminRequired(authorization.ObjectAuditLog, authorization.ActionView), s.ListAuditLogs)
}
