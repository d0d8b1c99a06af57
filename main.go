// main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"phone-auth/cmd"
	"phone-auth/internal/data/repository"
	"phone-auth/internal/dto/request"
	"phone-auth/internal/rate"
	"phone-auth/internal/sms"
	"phone-auth/internal/usecase"
	"phone-auth/internal/wire"
	"phone-auth/pkg/database"
	"phone-auth/pkg/utils"

	"go.uber.org/zap"
)

func main() {
	// Load config
	config, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := utils.InitLogger(config.App.LogPath, config.App.Debug)
	if err != nil {
		log.Printf("Failed to init logger: %v. Using standard log.", err)
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	// Connect to database
	db, err := database.InitDB(config.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Database connected successfully")

	// Initialize all repositories
	repos := repository.NewRepository(db, logger)

	// Subcommand: seed admin account lalu keluar
	if len(os.Args) > 1 && os.Args[1] == "create-admin" {
		runCreateAdmin(repos, logger, os.Args[2:])
		return
	}

	logger.Info("Starting application",
		zap.String("app", config.App.Name),
		zap.String("port", config.App.Port),
		zap.Bool("debug", config.App.Debug),
	)

	// SMS gateway
	gateway := sms.NewTwilioGateway(config.SMS, logger)

	// Rate limiter optional, aktif hanya kalau Redis dikonfigurasi
	var limiter usecase.RateLimiter
	if config.Redis.Addr != "" {
		rl := rate.NewLimiter(config.Redis, logger)
		defer rl.Close()
		limiter = rl
		logger.Info("OTP rate limiter enabled", zap.String("redis", config.Redis.Addr))
	}

	// Wire all dependencies
	app := wire.Wiring(db, repos, gateway, limiter, config, logger)

	// Start server
	logger.Info("Starting HTTP server", zap.String("port", config.App.Port))

	if err := cmd.APIServer(app.Router, config.App.Port, logger); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
}

func runCreateAdmin(repos *repository.Repository, logger *zap.Logger, args []string) {
	fs := flag.NewFlagSet("create-admin", flag.ExitOnError)
	phone := fs.String("phone", "", "admin phone number, with country code")
	username := fs.String("username", "", "admin username")
	fullName := fs.String("name", "", "full name (optional)")
	password := fs.String("password", "", "admin password")
	fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	service := usecase.NewUserService(repos, logger)
	user, err := service.CreateAdmin(ctx, &request.CreateAdminRequest{
		Phone:    *phone,
		Username: *username,
		FullName: *fullName,
		Password: *password,
	})
	if err != nil {
		logger.Fatal("Failed to create admin", zap.Error(err))
	}

	fmt.Printf("Admin created: %s (%s)\n", user.Username, user.ID)
}
