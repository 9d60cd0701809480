package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Depado/ginprom"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/wadispatch/app/api/routes"
	_ "github.com/wadispatch/docs"
	"github.com/wadispatch/pkg/config"
	"github.com/wadispatch/pkg/database"
	"github.com/wadispatch/pkg/domains/autoresponse"
	"github.com/wadispatch/pkg/domains/campaign"
	"github.com/wadispatch/pkg/domains/whatsapp"
	"github.com/wadispatch/pkg/events"
	"github.com/wadispatch/pkg/middleware"
	"github.com/wadispatch/pkg/utils"
)

const shutdownTimeout = 15 * time.Second

// Components are the long-lived parts of the process, wired once from the
// configuration.
type Components struct {
	Hub       *events.Hub
	Broker    *events.AMQPPublisher
	Manager   *whatsapp.Manager
	Scheduler *campaign.Scheduler
	Campaigns campaign.Service
	Rules     autoresponse.Service
}

// Wire builds every component on top of db. The AMQP mirror is optional; a
// broker that cannot be reached only costs the mirrored events.
func Wire(cfg *config.Config, db *gorm.DB) *Components {
	log := logrus.WithField("component", "server")
	hub := events.NewHub(cfg.Events.WebsocketBuffer)
	publishers := events.Multi{hub}

	var broker *events.AMQPPublisher
	if cfg.Events.AMQPURL != "" {
		b, err := events.DialAMQP(cfg.Events.AMQPURL, cfg.Events.AMQPExchange)
		if err != nil {
			log.WithError(err).Warn("amqp unavailable, events stay local")
		} else {
			broker = b
			publishers = append(publishers, b)
		}
	}

	factory := whatsapp.NewWhatsmeowFactory(cfg.WhatsApp.SessionsDir, cfg.WhatsApp.LogLevel)
	manager := whatsapp.NewManager(factory, whatsapp.NewRepo(db), publishers, cfg.WhatsApp)

	campaign_repo := campaign.NewRepo(db)
	dispatcher := campaign.NewDispatcher(
		campaign_repo,
		manager,
		campaign.NewThrottle(cfg.Dispatch.MinSendGap),
		publishers,
		cfg.Dispatch,
		cfg.WhatsApp,
	)
	scheduler := campaign.NewScheduler(campaign_repo, dispatcher, cfg.Scheduler, publishers)
	campaign_service := campaign.NewService(campaign_repo, scheduler, publishers)

	rules_service := autoresponse.NewService(autoresponse.NewRepo(db), manager, publishers, cfg.AutoResponse)
	manager.SetInboundHandler(rules_service)

	return &Components{
		Hub:       hub,
		Broker:    broker,
		Manager:   manager,
		Scheduler: scheduler,
		Campaigns: campaign_service,
		Rules:     rules_service,
	}
}

func NewRouter(appc config.App, allows config.Allows, c *Components) *gin.Engine {
	app := gin.New()
	app.Use(gin.LoggerWithFormatter(func(log gin.LogFormatterParams) string {
		return fmt.Sprintf("[%s] - %s \"%s %s %s %d %s\"\n",
			log.TimeStamp.Format("2006-01-02 15:04:05"),
			log.ClientIP,
			log.Method,
			log.Path,
			log.Request.Proto,
			log.StatusCode,
			log.Latency,
		)
	}))
	app.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	app.Use(gin.Recovery())
	app.Use(otelgin.Middleware(appc.Name))
	app.Use(middleware.ClaimIp())
	app.Use(cors.New(corsConfig(allows)))

	p := ginprom.New(
		ginprom.Engine(app),
		ginprom.Subsystem("gin"),
		ginprom.Path("/metrics"),
		ginprom.Ignore("/docs/*any", "/api/v1/events/ws"),
	)
	app.Use(p.Instrument())

	utils.BindValidations()

	api := app.Group("/api/v1")
	routes.WhatsAppRoutes(api.Group("/whatsapp"), c.Manager)
	routes.CampaignRoutes(api.Group("/campaigns"), c.Campaigns)
	routes.AutoResponseRoutes(api.Group("/auto-responses"), c.Rules)
	routes.EventRoutes(api.Group("/events"), c.Hub)
	routes.AdminRoutes(api.Group("/admin"), c.Scheduler)
	return app
}

func corsConfig(allows config.Allows) cors.Config {
	conf := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization", "X-Requested-With", "Origin", "Accept", "admin_key"},
		AllowOrigins:     []string{"*"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(allows.Methods) > 0 {
		conf.AllowMethods = allows.Methods
	}
	if len(allows.Headers) > 0 {
		conf.AllowHeaders = allows.Headers
	}
	if len(allows.Origins) > 0 {
		conf.AllowOrigins = allows.Origins
	}
	return conf
}

// LaunchHttpServer runs the whole process: migrations, reconciliation,
// scheduler, session restore and the HTTP server, until SIGINT or SIGTERM.
func LaunchHttpServer(cfg *config.Config) error {
	log := logrus.WithField("component", "server")
	log.Info("starting HTTP server")
	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if os.Getenv("SECRET") == "" {
		log.Warn("SECRET is not set, every authenticated route will answer 401")
	}

	if err := database.InitDB(cfg.Database); err != nil {
		return err
	}
	c := Wire(cfg, database.DBClient())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := c.Scheduler.Reconcile(ctx); err != nil {
		return fmt.Errorf("server: reconcile: %w", err)
	}
	if err := c.Scheduler.Start(); err != nil {
		return err
	}
	if err := c.Manager.Restore(ctx); err != nil {
		log.WithError(err).Error("failed to restore sessions")
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.App.Host, cfg.App.Port),
		Handler:           NewRouter(cfg.App, cfg.Allows, c),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("server is running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case err := <-serveErr:
		runErr = fmt.Errorf("server: listen: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown incomplete")
	}
	c.Scheduler.Stop()
	c.Manager.Shutdown()
	if c.Broker != nil {
		if err := c.Broker.Close(); err != nil {
			log.WithError(err).Warn("failed to close amqp connection")
		}
	}
	log.Info("server stopped")
	return runErr
}
