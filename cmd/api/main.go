package main

import (
	"context"
	"expvar"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"storefront/internal/auth"
	"storefront/internal/cache"
	"storefront/internal/cartstore"
	"storefront/internal/db"
	"storefront/internal/domain/orders"
	"storefront/internal/domain/storage"
	"storefront/internal/domain/storage/memory"
	"storefront/internal/events"
	"storefront/internal/media"
	"storefront/internal/orderbuilder"
	"storefront/internal/payments"
	"storefront/internal/payments/gateways/checkoutsession"
	"storefront/internal/payments/gateways/ordercapture"
	"storefront/internal/ratelimiter"
	"storefront/internal/reconcile"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/crypto/bcrypt"
)

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		fmt.Printf("Invalid %s, defaulting to %d\n", key, fallback)
		return fallback
	}
	return n
}

// LoadRateLimiterConfig retrieves rate limiter settings from environment variables
func LoadRateLimiterConfig() ratelimiter.Config {
	defaultEnabled := false

	enabled := defaultEnabled
	if val, exists := os.LookupEnv("RATE_LIMITER_ENABLED"); exists {
		if parsedVal, err := strconv.ParseBool(val); err == nil {
			enabled = parsedVal
		} else {
			fmt.Println("Invalid RATE_LIMITER_ENABLED, defaulting to", defaultEnabled)
		}
	}

	return ratelimiter.Config{
		RequestsPerTimeFrame: getenvInt("RATELIMITER_REQUESTS_COUNT", 200),
		TimeFrame:            5 * time.Second,
		Enabled:              enabled,
	}
}

// NewLogger creates a new zap logger with color.
func NewLogger() (*zap.SugaredLogger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)
	level := zapcore.InfoLevel

	core := zapcore.NewCore(consoleEncoder, zapcore.NewMultiWriteSyncer(zapcore.AddSync(os.Stdout)), level)
	logger := zap.New(core)

	return logger.Sugar(), nil
}

// basicPassHash accepts either a bcrypt hash or a plain password, which is
// hashed once at start-up.
func basicPassHash(pass string) ([]byte, error) {
	if strings.HasPrefix(pass, "$2a$") || strings.HasPrefix(pass, "$2b$") || strings.HasPrefix(pass, "$2y$") {
		if _, err := bcrypt.Cost([]byte(pass)); err != nil {
			return nil, fmt.Errorf("AUTH_BASIC_PASS looks like a bcrypt hash but is invalid: %w", err)
		}
		return []byte(pass), nil
	}
	return bcrypt.GenerateFromPassword([]byte(pass), bcrypt.DefaultCost)
}

func loadConfig() config {
	return config{
		addr:        getenv("ADDR", ":8080"),
		env:         getenv("ENV", "development"),
		apiURL:      getenv("EXTERNAL_URL", "localhost:8080"),
		storeDriver: getenv("STORE_DRIVER", "postgres"),
		db: dbConfig{
			addr:         os.Getenv("DB_ADDR"),
			maxOpenConns: getenvInt("DB_MAX_OPEN_CONNS", 30),
			maxIdleTime:  getenv("DB_MAX_IDLE_TIME", "15m"),
		},
		redis: redisConfig{
			addr:     os.Getenv("REDIS_ADDR"),
			password: os.Getenv("REDIS_PASSWORD"),
			db:       getenvInt("REDIS_DB", 0),
		},
		amqp: amqpConfig{
			url:      os.Getenv("AMQP_URL"),
			exchange: getenv("AMQP_EXCHANGE", events.DefaultExchange),
		},
		auth: authConfig{
			basic: basicConfig{
				user: os.Getenv("AUTH_BASIC_USER"),
				pass: os.Getenv("AUTH_BASIC_PASS"),
			},
			token: tokenConfig{
				secret: os.Getenv("AUTH_TOKEN_SECRET"),
				aud:    getenv("AUTH_TOKEN_AUDIENCE", "storefront"),
				iss:    getenv("AUTH_TOKEN_ISSUER", "storefront"),
			},
		},
		checkout: checkoutConfig{
			hashidsSalt:       getenv("HASHIDS_SALT", "storefront"),
			orderNumberSecret: os.Getenv("ORDER_NUMBER_SECRET"),
			gatewayA: checkoutsession.Config{
				BaseURL:    os.Getenv("GATEWAY_A_BASE_URL"),
				SecretKey:  os.Getenv("GATEWAY_A_SECRET_KEY"),
				SuccessURL: os.Getenv("GATEWAY_A_SUCCESS_URL"),
				CancelURL:  os.Getenv("GATEWAY_A_CANCEL_URL"),
				Currency:   os.Getenv("GATEWAY_A_CURRENCY"),
			},
			gatewayAWebhookSecret: os.Getenv("GATEWAY_A_WEBHOOK_SECRET"),
			gatewayB: ordercapture.Config{
				BaseURL:      os.Getenv("GATEWAY_B_BASE_URL"),
				ClientID:     os.Getenv("GATEWAY_B_CLIENT_ID"),
				ClientSecret: os.Getenv("GATEWAY_B_CLIENT_SECRET"),
				Currency:     os.Getenv("GATEWAY_B_CURRENCY"),
			},
			gatewayBWebhookSecret: os.Getenv("GATEWAY_B_WEBHOOK_SECRET"),
		},
		media: mediaConfig{
			cloudinaryURL: os.Getenv("CLOUDINARY_URL"),
			baseURL:       os.Getenv("MEDIA_BASE_URL"),
		},
		rateLimiter: LoadRateLimiterConfig(),
	}
}

var version = "0.3.0"

//	@title			Storefront API
//	@description	Cart, checkout and payment reconciliation API.

//	@BasePath					/v1
//	@securityDefinitions.apikey	ApiKeyAuth
//	@in							header
//	@name						Authorization
//	@description

func main() {
	logger, err := NewLogger()
	if err != nil {
		fmt.Println("Error creating logger:", err)
		return
	}
	defer logger.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Infow("no .env file loaded, using process environment", "error", err)
	}

	cfg := loadConfig()

	cfg.auth.basic.passHash, err = basicPassHash(cfg.auth.basic.pass)
	if err != nil {
		logger.Fatal(err)
	}
	cfg.auth.basic.pass = ""

	// Storage
	var store storage.Store
	var dbStats func() any
	switch cfg.storeDriver {
	case "memory":
		store = memory.New()
		logger.Warn("using in-memory store; data is lost on restart")
	default:
		if err := db.Migrate(cfg.db.addr); err != nil {
			logger.Fatal(err)
		}
		pool, err := db.New(cfg.db.addr, cfg.db.maxOpenConns, cfg.db.maxIdleTime)
		if err != nil {
			logger.Fatal(err)
		}
		defer pool.Close()
		logger.Info("database connection pool established")

		store = storage.NewContainer(pool)
		dbStats = func() any {
			st := pool.Stat()
			return map[string]any{
				"total_conns":    st.TotalConns(),
				"idle_conns":     st.IdleConns(),
				"acquired_conns": st.AcquiredConns(),
				"max_conns":      st.MaxConns(),
			}
		}
	}

	// Cart cache
	var cartCache cache.CartCache = cache.Noop{}
	if cfg.redis.addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.redis.addr,
			Password: cfg.redis.password,
			DB:       cfg.redis.db,
		})
		defer rdb.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warnw("redis unavailable, cart cache disabled", "error", err)
		} else {
			cartCache = cache.NewRedisCache(rdb)
			logger.Info("redis cart cache enabled")
		}
		cancel()
	}

	// Events
	var publisher events.Publisher = events.Noop{}
	if cfg.amqp.url != "" {
		conn, pub, err := events.Connect(cfg.amqp.url, cfg.amqp.exchange, logger)
		if err != nil {
			logger.Fatal(err)
		}
		defer conn.Close()
		publisher = pub
		logger.Infow("publishing order events", "exchange", cfg.amqp.exchange)
	}

	// Media
	var images media.Resolver = media.Static{BaseURL: cfg.media.baseURL}
	var uploader media.Uploader
	if cfg.media.cloudinaryURL != "" {
		cld, err := cloudinary.NewFromURL(cfg.media.cloudinaryURL)
		if err != nil {
			logger.Fatal(err)
		}
		c := media.NewCloudinary(cld, logger)
		images, uploader = c, c
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Checkout pipeline
	cartService := cartstore.NewService(store, cartCache, logger)
	builder := orderbuilder.New(store, orders.NewOrderNumberGenerator(cfg.checkout.orderNumberSecret), cartService, logger)
	engine := reconcile.NewEngine(store, logger,
		reconcile.WithMetrics(reconcile.NewMetrics(registry)),
		reconcile.WithPublisher(publisher),
	)

	manual, err := payments.NewManual(cfg.checkout.hashidsSalt)
	if err != nil {
		logger.Fatal(err)
	}
	manager := payments.NewManager(manual)
	if cfg.checkout.gatewayA.BaseURL != "" {
		manager.Register(payments.NewRedirectSession(checkoutsession.New(cfg.checkout.gatewayA, logger)))
	}
	if cfg.checkout.gatewayB.BaseURL != "" {
		manager.Register(payments.NewApproveCapture(ordercapture.New(cfg.checkout.gatewayB, logger)))
	}

	for _, method := range cfg.checkout.unsignedWebhooks() {
		if cfg.env == "production" {
			logger.Fatalw("webhook secret is required in production", "gateway", method)
		}
		logger.Warnw("webhook signatures are not verified", "gateway", method)
	}

	// Rate limiter
	rateLimiter := ratelimiter.NewFixedWindowLimiter(
		cfg.rateLimiter.RequestsPerTimeFrame,
		cfg.rateLimiter.TimeFrame,
	)

	app := &application{
		config:        cfg,
		logger:        logger,
		store:         store,
		carts:         cartService,
		builder:       builder,
		engine:        engine,
		payments:      payments.NewService(store, manager, engine, logger),
		images:        images,
		uploader:      uploader,
		authenticator: auth.NewJWTAuthenticator(cfg.auth.token.secret, cfg.auth.token.aud, cfg.auth.token.iss),
		rateLimiter:   rateLimiter,
		metrics:       registry,
	}

	//Metrics collected http://localhost:8080/v1/debug/vars
	expvar.NewString("version").Set(version)
	if dbStats != nil {
		expvar.Publish("database", expvar.Func(dbStats))
	}
	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	app.purgeExpiredCartsEvery(ctx, time.Hour)
	app.sweepRateLimiterEvery(ctx, rateLimiter, time.Minute)

	mux := app.mount()

	logger.Fatal(app.run(mux))
}
