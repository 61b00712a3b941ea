package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"calpay/internal/auth"
	"calpay/internal/booking"
	"calpay/internal/config"
	"calpay/internal/credential"
	"calpay/internal/obs"
	"calpay/internal/payment"
	"calpay/internal/user"
)

// Handlers are the domain endpoints mounted by the server.
type Handlers struct {
	Users       *user.Handler
	Bookings    *booking.Handler
	Payments    *payment.Handler
	Credentials *credential.Handler
}

type Server struct {
	router *gin.Engine
	http   *http.Server
}

func New(cfg *config.Config, h Handlers, sys System) *Server {
	if cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		otelgin.Middleware(obs.ServiceName),
		RequestLoggingMiddleware(),
		MetricsMiddleware(),
		corsMiddleware(),
	)

	router.GET("/health", Health(sys.Checks))
	router.GET("/metrics", Metrics(sys.Queue))

	authn := auth.AuthMiddleware(cfg.JWTSecret)

	router.POST("/auth/login", h.Users.Login)
	router.POST("/auth/refresh", h.Users.Refresh)
	router.GET("/me", authn, h.Users.GetMe)

	public := router.Group("/api")
	{
		public.POST("/bookings", RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst), h.Bookings.Create)
		public.GET("/bookings/:uid", h.Bookings.GetByUID)
		public.GET("/booking/:id/payment-success", h.Payments.PaymentSuccess)
		public.GET("/booking/:id/payment-cancelled", h.Payments.PaymentCancelled)
		public.GET("/payments/:uid", h.Payments.Info)
		public.POST("/integrations/stripepayment/webhook", h.Payments.Webhook)
	}

	organizer := router.Group("/bookings")
	organizer.Use(authn, auth.RequireRole(auth.RoleOrganizer, auth.RoleAdmin))
	{
		organizer.GET("", h.Bookings.ListMine)
		organizer.POST("/:id/cancel", h.Bookings.Cancel)
		organizer.POST("/:id/confirm", h.Bookings.Confirm)
	}

	integrations := router.Group("/integrations")
	integrations.Use(authn, auth.RequireRole(auth.RoleOrganizer, auth.RoleAdmin))
	{
		integrations.GET("/stripe/products", h.Payments.Products)
	}

	admin := router.Group("/admin")
	admin.Use(authn, auth.RequireRole(auth.RoleAdmin))
	{
		admin.GET("/apps/stripe/keys", h.Credentials.GetKeys)
		admin.PUT("/apps/stripe/keys", h.Credentials.SaveKeys)
		admin.POST("/payments/:id/refund", h.Payments.Refund)
		admin.POST("/payments/:id/charge", h.Payments.Charge)
		admin.GET("/bookings/:id/payments", h.Payments.BookingPayments)
		admin.POST("/test-email", TestEmail(sys.Mailer))
	}

	return &Server{
		router: router,
		http: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
