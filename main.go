package main

import (
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := LoadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	var repo *SQLRepository
	u, err := url.Parse(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("invalid DB_URL: ", err)
	}
	switch u.Scheme {
	case "sqlite":
		repo, err = NewSQLiteRepository(u.Host+u.Path, log)
	case "postgres":
		repo, err = NewPostgresRepository(cfg.DatabaseURL, log)
	default:
		log.Fatal("unsupported DB_URL scheme: ", u.Scheme)
	}
	if err != nil {
		log.Fatal("failed to initialize database: ", err)
	}

	svc := NewService(repo, repo, repo, log)
	defer svc.close()

	smtpMailer := NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.EmailUser, cfg.EmailPass, log)

	reviewNotifier := NewReviewNotifier(svc, smtpMailer, []byte(cfg.JWTSecret), cfg.BaseURL, log)
	reviewNotifier.Start()
	defer reviewNotifier.Shutdown()

	router := NewHTTPRouter(cfg, svc, smtpMailer, reviewNotifier, log)

	go func() {
		if err := router.Start(cfg.HTTPAddr); err != nil {
			log.Info("http server stopped: ", err)
		}
	}()
	log.Info("listening on ", cfg.HTTPAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")
}
