package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/docs" //this is required to generate swagger docs
	"storefront/internal/auth"
	"storefront/internal/cartstore"
	"storefront/internal/domain/storage"
	"storefront/internal/media"
	"storefront/internal/orderbuilder"
	"storefront/internal/payments"
	"storefront/internal/payments/gateways/checkoutsession"
	"storefront/internal/payments/gateways/ordercapture"
	"storefront/internal/ratelimiter"
	"storefront/internal/reconcile"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

type application struct {
	config        config
	store         storage.Store
	logger        *zap.SugaredLogger
	carts         *cartstore.Service
	builder       *orderbuilder.Builder
	engine        *reconcile.Engine
	payments      *payments.Service
	images        media.Resolver
	uploader      media.Uploader
	authenticator auth.Authenticator
	rateLimiter   ratelimiter.Limiter
	metrics       prometheus.Gatherer
}

type config struct {
	addr        string
	env         string
	apiURL      string
	storeDriver string
	db          dbConfig
	redis       redisConfig
	amqp        amqpConfig
	auth        authConfig
	checkout    checkoutConfig
	media       mediaConfig
	rateLimiter ratelimiter.Config
}

type authConfig struct {
	basic basicConfig
	token tokenConfig
}

type tokenConfig struct {
	secret string
	aud    string
	iss    string
}

type basicConfig struct {
	user     string
	pass     string
	passHash []byte
}

type dbConfig struct {
	addr         string
	maxOpenConns int
	maxIdleTime  string
}

type redisConfig struct {
	addr     string
	password string
	db       int
}

type amqpConfig struct {
	url      string
	exchange string
}

type checkoutConfig struct {
	hashidsSalt           string
	orderNumberSecret     string
	gatewayA              checkoutsession.Config
	gatewayAWebhookSecret string
	gatewayB              ordercapture.Config
	gatewayBWebhookSecret string
}

type mediaConfig struct {
	cloudinaryURL string
	baseURL       string
}

func (app *application) mount() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", app.healthCheckHandler)
		docsURL := fmt.Sprintf("%s/swagger/doc.json", app.config.addr)
		r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL(docsURL)))

		r.With(app.BasicAuthMiddleware()).Get("/debug/vars", expvar.Handler().ServeHTTP)
		r.With(app.BasicAuthMiddleware()).Handle("/metrics", promhttp.HandlerFor(app.metrics, promhttp.HandlerOpts{}))

		r.Route("/store", func(r chi.Router) {
			// Gateways call back without a shopper identity.
			r.Post("/payments/webhook/{provider}", app.paymentWebhookHandler)

			r.Group(func(r chi.Router) {
				r.Use(app.IdentityMiddleware)
				r.Use(app.RateLimiterMiddleware)

				r.Get("/products", app.listProductsHandler)
				r.Get("/products/{productID}", app.getProductHandler)

				r.Route("/cart", func(r chi.Router) {
					r.Get("/", app.getCartHandler)
					r.Delete("/", app.clearCartHandler)
					r.Post("/items", app.addCartItemHandler)
					r.Put("/items/{productID}", app.setCartItemQuantityHandler)
					r.With(app.RequireUser).Post("/claim", app.claimCartHandler)
				})

				r.Group(func(r chi.Router) {
					r.Use(app.RequireUser)

					r.Get("/profile", app.getProfileHandler)
					r.Put("/profile/address", app.setShippingAddressHandler)
					r.Put("/profile/payment-method", app.setPaymentMethodHandler)

					r.Route("/orders", func(r chi.Router) {
						r.Post("/", app.createOrderHandler)
						r.Get("/", app.listOrdersHandler)
						r.Route("/{orderID}", func(r chi.Router) {
							r.Get("/", app.getOrderHandler)
							r.Post("/payment", app.initiatePaymentHandler)
							r.Post("/payment/confirm", app.confirmPaymentHandler)
						})
					})
				})
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(app.BasicAuthMiddleware())
			r.Post("/products", app.adminCreateProductHandler)
			r.Put("/products/{productID}/stock", app.adminSetStockHandler)
			r.Post("/orders/{orderID}/deliver", app.adminDeliverOrderHandler)
			r.Get("/orders/{orderID}/payment-logs", app.adminPaymentLogsHandler)
		})
	})
	return r
}

func (app *application) run(mux http.Handler) error {
	// Docs
	docs.SwaggerInfo.Version = version
	docs.SwaggerInfo.Host = app.config.apiURL
	docs.SwaggerInfo.BasePath = "/v1"

	srv := &http.Server{
		Addr:         app.config.addr,
		Handler:      mux,
		WriteTimeout: time.Second * 30,
		ReadTimeout:  time.Second * 10,
		IdleTimeout:  time.Minute,
	}

	shutdown := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)

		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		app.logger.Infow("signal caught", "signal", s.String())

		shutdown <- srv.Shutdown(ctx)
	}()

	app.logger.Infow("server has started", "addr", app.config.addr, "env", app.config.env, "store", app.config.storeDriver)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdown
	if err != nil {
		return err
	}

	app.logger.Infow("server has stopped", "addr", app.config.addr, "env", app.config.env)

	return nil
}
