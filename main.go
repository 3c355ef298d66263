package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roadalert/config"
	"roadalert/database"
	"roadalert/handlers"
	"roadalert/lifecycle"
	"roadalert/middleware"

	"github.com/apex/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/robfig/cron/v3"
)

func main() {
	cfg := config.Load()

	log.Info("Starting the RoadAlert service...")

	db, err := setupDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.InitSchema(db); err != nil {
		log.Fatalf("Failed to initialize database schema: %v", err)
	}

	authService := database.NewAuthService(db, cfg.JWTSecret, cfg.TokenTTL)
	reportService := database.NewReportService(db, cfg.DBTimeout)
	voteService := database.NewVoteService(db, cfg.DBTimeout)
	statsService := database.NewStatsService(db)

	engine, err := lifecycle.New(lifecycle.Config{
		TTL:       cfg.ReportTTL,
		Threshold: cfg.VotesThreshold,
	}, reportService, voteService, authService, database.NewTransactor(db))
	if err != nil {
		log.Fatalf("Failed to build lifecycle engine: %v", err)
	}

	sweeper := startSweeper(engine, cfg.SweepInterval)
	defer sweeper.Stop()

	router := setupRouter(engine, authService, reportService, statsService)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("RoadAlert API listening on port %s", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		log.Errorf("Shutdown: %v", err)
	}
	log.Info("RoadAlert service stopped")
}

func setupDatabase(cfg *config.Config) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&multiStatements=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

// startSweeper schedules the background expiry sweep. The sweep is an
// optimization: reads and votes already ignore expired reports.
func startSweeper(engine *lifecycle.Engine, interval time.Duration) *cron.Cron {
	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := engine.SweepExpired(ctx); err != nil {
			log.Errorf("Expiry sweep failed: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule expiry sweep: %v", err)
	}
	c.Start()
	log.Infof("Expiry sweep scheduled every %s", interval)
	return c
}

func setupRouter(engine *lifecycle.Engine, authService *database.AuthService,
	reportService *database.ReportService, statsService *database.StatsService) *gin.Engine {

	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowOrigins:     []string{"*"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	authHandler := handlers.NewAuthHandler(authService)
	reportsHandler := handlers.NewReportsHandler(engine, reportService)
	statsHandler := handlers.NewStatsHandler(statsService)

	router.GET("/version", handlers.Version)

	api := router.Group("/api")
	{
		api.GET("/health", handlers.Health)
		api.POST("/auth/register", authHandler.Register)
		api.POST("/auth/login", authHandler.Login)
		api.GET("/incident-types", reportsHandler.IncidentTypes)
		api.GET("/statistics", statsHandler.Statistics)
	}

	protected := router.Group("/api")
	protected.Use(middleware.Auth(authService))
	{
		protected.GET("/user/profile", authHandler.Profile)
		protected.GET("/reports", reportsHandler.List)
		protected.POST("/reports", reportsHandler.Create)
		protected.POST("/reports/:id/vote", reportsHandler.Vote)
		protected.DELETE("/reports/:id", reportsHandler.Delete)
		protected.POST("/reports/map", reportsHandler.Map)
	}

	return router
}
