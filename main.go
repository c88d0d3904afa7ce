package main

import (
	"net/http"

	"PostPilotAPI/config"
	"PostPilotAPI/database"
	"PostPilotAPI/handlers"
	"PostPilotAPI/middleware"
	"PostPilotAPI/services"
	"PostPilotAPI/utils"

	"github.com/gorilla/mux"
)

func main() {
	cfg := config.Load()

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		utils.Errorf("failed to connect to database: %v", err)
		return
	}

	storage, err := services.NewStorageService(cfg.UploadDir, cfg.BaseURL, cfg.MaxImageSize, cfg.MaxVideoSize)
	if err != nil {
		utils.Errorf("failed to initialize storage: %v", err)
		return
	}

	authService := services.NewAuthService(db)
	publisher := services.NewPublisherService(db)

	scheduler := services.NewScheduler(db, publisher)
	scheduler.Start()
	defer scheduler.Stop()

	handler := handlers.NewHandler(db, publisher, authService, storage)

	r := setupRoutes(handler, authService, cfg)

	utils.Infof("server starting on port %s, upload dir %s", cfg.Port, cfg.UploadDir)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		utils.Errorf("server stopped: %v", err)
	}
}

func setupRoutes(h *handlers.Handler, authService *services.AuthService, cfg *config.Config) *mux.Router {
	r := mux.NewRouter()

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.AllowedOrigins
	r.Use(middleware.CORS(corsConfig))
	r.Use(middleware.BodyLimit(1 << 20))

	limiter := middleware.NewRateLimiter(20, 40)
	r.Use(limiter.Limit())

	// Login and register get a stricter limiter against brute forcing.
	authLimiter := middleware.NewRateLimiter(1, 5)

	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/api/auth/register", authLimiter.LimitHandler(h.Register)).Methods("POST")
	r.HandleFunc("/api/auth/login", authLimiter.LimitHandler(h.Login)).Methods("POST")

	// Uploaded media is reachable by the owner's JWT or by short-lived signed
	// URLs handed to the platforms that fetch media by reference.
	r.PathPrefix("/uploads/").Handler(http.StripPrefix("/uploads/",
		middleware.SignedFileServer(cfg.UploadDir, cfg.MediaSigningKey, authService)))

	protected := r.PathPrefix("/api").Subrouter()
	protected.Use(middleware.AuthMiddleware(authService))

	protected.HandleFunc("/credentials", h.SaveCredentials).Methods("POST")
	protected.HandleFunc("/credentials/status", h.GetConnectedPlatforms).Methods("GET")
	protected.HandleFunc("/credentials/disconnect", h.DisconnectPlatform).Methods("DELETE")

	protected.HandleFunc("/media", middleware.BodyLimitHandler(cfg.MaxUploadSize, h.UploadMedia)).Methods("POST")
	protected.HandleFunc("/media", h.GetMedia).Methods("GET")
	protected.HandleFunc("/media/{id}", h.DeleteMedia).Methods("DELETE")

	protected.HandleFunc("/posts", h.CreatePost).Methods("POST")
	protected.HandleFunc("/posts", h.GetPosts).Methods("GET")
	protected.HandleFunc("/posts/{id}", h.GetPost).Methods("GET")
	protected.HandleFunc("/posts/{id}", h.DeletePost).Methods("DELETE")

	return r
}
