package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campuspass/internal/auth"
	"campuspass/internal/config"
	"campuspass/internal/credential"
	"campuspass/internal/export"
	"campuspass/internal/httpmiddleware"
	"campuspass/internal/metrics"
	"campuspass/internal/movement"
	"campuspass/internal/passes"
	"campuspass/internal/policy"
	"campuspass/internal/queue"
	"campuspass/internal/realtime"
	"campuspass/internal/store"
	"campuspass/internal/students"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	if cfg.MigrateOnStart {
		if err := db.Migrate(rootCtx); err != nil {
			return err
		}
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	}

	notifier := realtime.NewRedisNotifier(redisClient.Client)
	hub := realtime.NewHub(cfg.SnapshotPoll)
	go hub.Run(rootCtx, redisClient.Client)

	userRepo := auth.NewUserRepo(db.Client)
	studentRepo := students.NewRepository(db.Client)
	passRepo := passes.NewRepository(db.Client)
	passSvc := passes.NewService(passRepo, notifier, cfg.DecisionPolicy)
	movRepo := movement.NewRepository(db.Client)
	movSvc := movement.NewService(movRepo, passSvc, auditQueue{q}, notifier)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewIPRateLimiter(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/v1/auth/signin", func(c *gin.Context) {
		var req struct {
			Email    string `json:"email" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		u, err := userRepo.Authenticate(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrBadCredentials) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "sign in failed"})
			return
		}

		tokens, err := auth.Issue(u.ID, u.Role, u.Enrollment, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		_ = userRepo.SaveRefreshToken(c.Request.Context(), u.ID, tokens.RefreshToken, tokens.RefreshExp)

		c.JSON(http.StatusOK, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
			"role":          u.Role,
			"enrollment":    u.Enrollment,
		})
	})

	wardenOnly := auth.RequireRole(cfg.JWTSigningKey, cfg.JWTIssuer, policy.RoleWarden)
	guardOnly := auth.RequireRole(cfg.JWTSigningKey, cfg.JWTIssuer, policy.RoleGuard)
	studentOnly := auth.RequireRole(cfg.JWTSigningKey, cfg.JWTIssuer, policy.RoleStudent)
	studentOrWarden := auth.RequireRole(cfg.JWTSigningKey, cfg.JWTIssuer, policy.RoleStudent, policy.RoleWarden)

	r.POST("/v1/auth/users", wardenOnly, func(c *gin.Context) {
		var req struct {
			Email      string `json:"email" binding:"required"`
			Password   string `json:"password" binding:"required"`
			Role       string `json:"role" binding:"required"`
			Enrollment string `json:"enrollment"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !policy.Role(req.Role).Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "role must be student, warden or guard"})
			return
		}
		u, err := userRepo.Create(c.Request.Context(), req.Email, req.Password, req.Role, req.Enrollment)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, u)
	})

	r.PUT("/v1/students/:enrollment", wardenOnly, func(c *gin.Context) {
		var p students.Profile
		if err := c.ShouldBindJSON(&p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		p.EnrollmentID = c.Param("enrollment")
		saved, err := studentRepo.Upsert(c.Request.Context(), p)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, saved)
	})

	r.GET("/v1/students", wardenOnly, func(c *gin.Context) {
		profiles, err := studentRepo.List(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"students": profiles})
	})

	r.GET("/v1/students/:enrollment",
		auth.RequireRole(cfg.JWTSigningKey, cfg.JWTIssuer, policy.RoleWarden, policy.RoleGuard),
		func(c *gin.Context) {
			p, err := studentRepo.Get(c.Request.Context(), c.Param("enrollment"))
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, p)
		})

	r.POST("/v1/passes", studentOnly, func(c *gin.Context) {
		claims := auth.ClaimsFrom(c)
		var req struct {
			Type         string `json:"type" binding:"required"`
			Destination  string `json:"destination"`
			TravelDate   string `json:"travel_date"`
			ReturnDate   string `json:"return_date"`
			Reason       string `json:"reason"`
			GuardianName string `json:"guardian_name"`
			Address      string `json:"address"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		travel, err := time.Parse("2006-01-02", req.TravelDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "travel_date must be YYYY-MM-DD"})
			return
		}

		var sub passes.Submission
		switch passes.Type(req.Type) {
		case passes.TypeLocal:
			sub, err = passes.NewLocalSubmission(claims.Enrollment, req.Destination, req.Reason, travel)
		case passes.TypeHome:
			var ret *time.Time
			if req.ReturnDate != "" {
				parsed, perr := time.Parse("2006-01-02", req.ReturnDate)
				if perr != nil {
					c.JSON(http.StatusBadRequest, gin.H{"error": "return_date must be YYYY-MM-DD"})
					return
				}
				ret = &parsed
			}
			sub, err = passes.NewHomeSubmission(claims.Enrollment, req.Destination, req.Reason, req.GuardianName, req.Address, travel, ret)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "type must be local or home"})
			return
		}
		if err != nil {
			writeError(c, err)
			return
		}

		created, err := passSvc.Submit(c.Request.Context(), sub)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, created)
	})

	r.GET("/v1/passes", wardenOnly, func(c *gin.Context) {
		list, err := passSvc.List(c.Request.Context(), passes.Filter{
			Status: passes.Status(c.Query("status")),
			Type:   passes.Type(c.Query("type")),
			Search: c.Query("search"),
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"requests": list})
	})

	r.GET("/v1/passes/:enrollment", studentOrWarden, func(c *gin.Context) {
		enrollment := c.Param("enrollment")
		if !mayViewStudent(c, enrollment) {
			return
		}
		req, err := passSvc.Get(c.Request.Context(), enrollment)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, req)
	})

	r.POST("/v1/passes/:enrollment/decision", wardenOnly, func(c *gin.Context) {
		claims := auth.ClaimsFrom(c)
		var req struct {
			Outcome string `json:"outcome" binding:"required"`
			Remark  string `json:"remark"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		decided, err := passSvc.Decide(c.Request.Context(), c.Param("enrollment"), passes.Status(req.Outcome), claims.Subject, req.Remark)
		if err != nil {
			writeError(c, err)
			return
		}
		metrics.DecisionsTotal.WithLabelValues(string(decided.Status)).Inc()
		c.JSON(http.StatusOK, decided)
	})

	r.GET("/v1/passes/:enrollment/qr", studentOrWarden, func(c *gin.Context) {
		enrollment := c.Param("enrollment")
		if !mayViewStudent(c, enrollment) {
			return
		}
		req, err := passSvc.Get(c.Request.Context(), enrollment)
		if err != nil {
			writeError(c, err)
			return
		}
		if req.Status != passes.StatusApproved {
			c.JSON(http.StatusConflict, gin.H{"error": "pass is not approved"})
			return
		}
		size, _ := strconv.Atoi(c.Query("size"))
		png, err := credential.RenderPNG(credential.Encode(enrollment), size)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "qr render failed"})
			return
		}
		c.Data(http.StatusOK, "image/png", png)
	})

	r.POST("/v1/gate/scan-out", guardOnly, func(c *gin.Context) {
		claims := auth.ClaimsFrom(c)
		var req struct {
			Token string `json:"token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rec, err := movSvc.ScanOut(c.Request.Context(), req.Token, claims.Subject)
		if err != nil {
			metrics.ScansTotal.WithLabelValues("rejected", scanReason(err)).Inc()
			writeError(c, err)
			return
		}
		metrics.ScansTotal.WithLabelValues("accepted", "").Inc()
		c.JSON(http.StatusOK, rec)
	})

	r.POST("/v1/gate/mark-in", guardOnly, func(c *gin.Context) {
		claims := auth.ClaimsFrom(c)
		var req struct {
			Enrollment string `json:"enrollment" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rec, err := movSvc.MarkIn(c.Request.Context(), req.Enrollment, claims.Subject)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, rec)
	})

	r.POST("/v1/gate/correct-out", guardOnly, func(c *gin.Context) {
		claims := auth.ClaimsFrom(c)
		var req struct {
			Enrollment string `json:"enrollment" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rec, err := movSvc.CorrectBackToOut(c.Request.Context(), req.Enrollment, claims.Subject)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, rec)
	})

	r.GET("/v1/gate/movements", guardOnly, func(c *gin.Context) {
		recs, err := movSvc.List(c.Request.Context(), movement.Status(c.Query("status")))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, movementBuckets(recs))
	})

	r.GET("/v1/export/movements", wardenOnly, func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.Query("limit"))
		events, err := movRepo.ListAudit(c.Request.Context(), c.Query("enrollment"), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		blob, err := export.MovementsXLSX(events)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
			return
		}
		c.Header("Content-Disposition", `attachment; filename="movements.xlsx"`)
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", blob)
	})

	// Dashboard subscriptions. Browsers cannot set headers on websocket
	// upgrades, so the token rides in a query parameter.
	r.GET("/v1/stream/:view", func(c *gin.Context) {
		claims, err := auth.Parse(c.Query("access_token"), cfg.JWTSigningKey, cfg.JWTIssuer)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		view := c.Param("view")
		var required policy.Role
		var topics []string
		var fetch realtime.Fetch

		switch view {
		case "guard-movements":
			required = policy.RoleGuard
			topics = []string{movement.TopicMovements}
			fetch = func(ctx context.Context) (any, error) {
				recs, err := movSvc.List(ctx, "")
				if err != nil {
					return nil, err
				}
				return movementBuckets(recs), nil
			}
		case "warden-requests":
			required = policy.RoleWarden
			topics = []string{passes.TopicRequests}
			fetch = func(ctx context.Context) (any, error) {
				return passSvc.List(ctx, passes.Filter{})
			}
		case "student":
			required = policy.RoleStudent
			topics = []string{passes.TopicRequests, movement.TopicMovements}
			enrollment := claims.Enrollment
			fetch = func(ctx context.Context) (any, error) {
				return studentSnapshot(ctx, passSvc, movSvc, enrollment)
			}
		default:
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown view"})
			return
		}

		if d := policy.Authorize(claims.Subject, policy.Role(claims.Role), required); d.Kind != policy.Allow {
			c.JSON(http.StatusForbidden, gin.H{"error": "wrong role", "redirect": d.Target})
			return
		}

		conn, err := websocket.Accept(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("websocket accept failed: %v", err)
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "closed")

		err = hub.Subscribe(c.Request.Context(), view, topics, fetch, wsSink{conn})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("subscription %s ended: %v", view, err)
		}
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")
	rootCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// auditQueue adapts the queue to the movement service's audit surface.
type auditQueue struct {
	q queue.Queue
}

func (a auditQueue) PublishAudit(ctx context.Context, evt movement.AuditEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return a.q.Publish(ctx, queue.Message{Type: "movement", Body: body})
}

// wsSink writes snapshots to one websocket connection.
type wsSink struct {
	conn *websocket.Conn
}

func (s wsSink) Send(ctx context.Context, snap realtime.Snapshot) error {
	if err := wsjson.Write(ctx, s.conn, snap); err != nil {
		return err
	}
	metrics.SnapshotsTotal.WithLabelValues(snap.View).Inc()
	return nil
}

// movementBuckets partitions records into the guard dashboard's OUT/IN tabs.
func movementBuckets(recs []movement.Record) gin.H {
	out := []movement.Record{}
	in := []movement.Record{}
	for _, rec := range recs {
		if rec.Status == movement.StatusOut {
			out = append(out, rec)
		} else {
			in = append(in, rec)
		}
	}
	return gin.H{"out": out, "in": in}
}

// studentSnapshot bundles one student's own request and movement record.
func studentSnapshot(ctx context.Context, passSvc *passes.Service, movSvc *movement.Service, enrollment string) (any, error) {
	snap := gin.H{"request": nil, "movement": nil}
	req, err := passSvc.Get(ctx, enrollment)
	if err == nil {
		snap["request"] = req
	} else if !errors.Is(err, passes.ErrNotFound) {
		return nil, err
	}
	rec, err := movSvc.Current(ctx, enrollment)
	if err == nil {
		snap["movement"] = rec
	} else if !errors.Is(err, movement.ErrNotFound) {
		return nil, err
	}
	return snap, nil
}

// mayViewStudent lets a student reach only their own resources; wardens
// pass through.
func mayViewStudent(c *gin.Context, enrollment string) bool {
	claims := auth.ClaimsFrom(c)
	if policy.Role(claims.Role) == policy.RoleStudent && claims.Enrollment != enrollment {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your enrollment"})
		return false
	}
	return true
}

// writeError maps domain errors onto HTTP statuses. Guard-state violations
// come back 409 so the scanner UI shows them as retryable rejections.
func writeError(c *gin.Context, err error) {
	var verr *passes.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, credential.ErrMalformedToken):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, movement.ErrNotAuthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, movement.ErrAlreadyOut),
		errors.Is(err, movement.ErrNotCurrentlyOut),
		errors.Is(err, movement.ErrNotCurrentlyIn),
		errors.Is(err, passes.ErrDecisionConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, passes.ErrNotFound),
		errors.Is(err, movement.ErrNotFound),
		errors.Is(err, students.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func scanReason(err error) string {
	switch {
	case errors.Is(err, credential.ErrMalformedToken):
		return "malformed_token"
	case errors.Is(err, movement.ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, movement.ErrAlreadyOut):
		return "already_out"
	default:
		return "error"
	}
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
