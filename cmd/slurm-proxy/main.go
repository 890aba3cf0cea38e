package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	sw "github.com/alexpreynolds/slurm-proxy/go"
)

func main() {
	cfg, err := sw.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	minter, err := sw.NewTokenMinter(cfg.Token)
	if err != nil {
		log.Fatalf("Token minter error: %v", err)
	}

	registry, err := sw.NewJobRegistry(cfg.Registry)
	if err != nil {
		log.Fatalf("Registry error: %v", err)
	}
	defer registry.Close()
	if err := registry.Ping(); err != nil {
		log.Fatalf("Registry connection failed - is the server running? %v", err)
	}
	log.Printf("Job registry (%s) is reachable", cfg.Registry.Backend)

	catalog := sw.DefaultTaskCatalog()
	restClient := sw.NewSlurmRestClient(cfg.SlurmRest, minter)
	hub := sw.NewNotifierHub(catalog, sw.NewNotifierFactory(cfg))
	submitter := sw.NewSubmitter(catalog, registry, restClient)
	monitor := sw.NewMonitorService(registry, restClient, hub)

	poller := sw.NewPoller(registry, restClient, hub,
		cfg.Monitor.PollingInterval, cfg.Registry.CreatedAtMaxAge)
	poller.Start()
	defer poller.Stop()

	if !cfg.App.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	submitAPI := sw.NewSubmitAPI(submitter, monitor)
	router.POST("/submit/", submitAPI.PostTask)

	monitorAPI := sw.NewMonitorAPI(monitor, registry)
	monitorAPI.RegisterRoutes(router.Group("/monitor"))

	slurmAPI := sw.NewSlurmAPI(restClient)
	slurmAPI.RegisterRoutes(router.Group("/slurm"))

	addr := fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port)
	server := &http.Server{Addr: addr, Handler: router}

	go func() {
		log.Printf("%s listening on %s", cfg.App.Name, addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")
	if err := server.Close(); err != nil {
		log.Printf("Server close error: %v", err)
	}
}
