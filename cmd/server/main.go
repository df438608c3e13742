package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"yenko/internal/config"
	"yenko/internal/logger"
	"yenko/internal/routes"
)

func main() {
	settings := config.Load()

	// Initialize structured logging to file
	logger.Setup(settings.LogLevel, settings.LogStdout)
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Connect to the database
	if err := config.InitDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	srv := &http.Server{
		Addr:              ":" + settings.Port,
		Handler:           routes.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logrus.WithField("addr", srv.Addr).Info("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Server stopped unexpectedly")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("Forced shutdown")
	}
	if sqlDB, err := config.DB.DB(); err == nil {
		sqlDB.Close()
	}
	logrus.Info("Server exited")
}
