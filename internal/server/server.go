package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	accountdomain "github.com/smallbiznis/caseline/internal/account/domain"
	associationdomain "github.com/smallbiznis/caseline/internal/association/domain"
	auditdomain "github.com/smallbiznis/caseline/internal/audit/domain"
	authdomain "github.com/smallbiznis/caseline/internal/auth/domain"
	"github.com/smallbiznis/caseline/internal/auth/session"
	"github.com/smallbiznis/caseline/internal/authorization"
	casesdomain "github.com/smallbiznis/caseline/internal/cases/domain"
	"github.com/smallbiznis/caseline/internal/config"
	devicedomain "github.com/smallbiznis/caseline/internal/device/domain"
	importerdomain "github.com/smallbiznis/caseline/internal/importer/domain"
	interpretationdomain "github.com/smallbiznis/caseline/internal/interpretation/domain"
	notedomain "github.com/smallbiznis/caseline/internal/note/domain"
	notificationdomain "github.com/smallbiznis/caseline/internal/notification/domain"
	matrixdomain "github.com/smallbiznis/caseline/internal/notificationmatrix/domain"
	"github.com/smallbiznis/caseline/internal/observability"
	obsmiddleware "github.com/smallbiznis/caseline/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/caseline/internal/observability/metrics"
	obstracing "github.com/smallbiznis/caseline/internal/observability/tracing"
	"github.com/smallbiznis/caseline/internal/ratelimit"
	subscriptiondomain "github.com/smallbiznis/caseline/internal/subscription/domain"
	userdomain "github.com/smallbiznis/caseline/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module serves the HTTP API. The domain modules it depends on are composed
// by the binary.
var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(RegisterRoutes),
	fx.Invoke(RunHTTP),
)

type EngineParams struct {
	fx.In

	ObsConfig   observability.Config
	HTTPMetrics *obsmetrics.HTTPMetrics
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

func NewEngine(p EngineParams) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           p.ObsConfig.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(p.HTTPMetrics))
	r.Use(ErrorHandlingMiddleware(p.Metrics))

	r.GET("/health", func(c *gin.Context) {
		respond(c, http.StatusOK, "OK", gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine   *gin.Engine
	cfg      config.Config
	log      *zap.Logger
	sessions *session.Manager
	metrics  *obsmetrics.Metrics

	authsvc           authdomain.Service
	authzSvc          authorization.Service
	auditSvc          auditdomain.Service
	accountSvc        accountdomain.Service
	subscriptionSvc   subscriptiondomain.Service
	associationSvc    associationdomain.Service
	userSvc           userdomain.Service
	deviceSvc         devicedomain.Service
	caseSvc           casesdomain.Service
	matrixSvc         matrixdomain.Service
	interpretationSvc interpretationdomain.Service
	noteSvc           notedomain.Service
	importerSvc       importerdomain.Service
	notificationSvc   notificationdomain.Service

	uploadLimiter *ratelimit.TokenBucket
}

type ServerParams struct {
	fx.In

	Gin      *gin.Engine
	Cfg      config.Config
	Log      *zap.Logger
	Sessions *session.Manager
	Metrics  *obsmetrics.Metrics `optional:"true"`

	Authsvc           authdomain.Service
	AuthzSvc          authorization.Service
	AuditSvc          auditdomain.Service
	AccountSvc        accountdomain.Service
	SubscriptionSvc   subscriptiondomain.Service
	AssociationSvc    associationdomain.Service
	UserSvc           userdomain.Service
	DeviceSvc         devicedomain.Service
	CaseSvc           casesdomain.Service
	MatrixSvc         matrixdomain.Service
	InterpretationSvc interpretationdomain.Service
	NoteSvc           notedomain.Service
	ImporterSvc       importerdomain.Service
	NotificationSvc   notificationdomain.Service

	UploadLimiter *ratelimit.TokenBucket `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:            p.Gin,
		cfg:               p.Cfg,
		log:               p.Log.Named("http.server"),
		sessions:          p.Sessions,
		metrics:           p.Metrics,
		authsvc:           p.Authsvc,
		authzSvc:          p.AuthzSvc,
		auditSvc:          p.AuditSvc,
		accountSvc:        p.AccountSvc,
		subscriptionSvc:   p.SubscriptionSvc,
		associationSvc:    p.AssociationSvc,
		userSvc:           p.UserSvc,
		deviceSvc:         p.DeviceSvc,
		caseSvc:           p.CaseSvc,
		matrixSvc:         p.MatrixSvc,
		interpretationSvc: p.InterpretationSvc,
		noteSvc:           p.NoteSvc,
		importerSvc:       p.ImporterSvc,
		notificationSvc:   p.NotificationSvc,
		uploadLimiter:     p.UploadLimiter,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func RegisterRoutes(s *Server) {
	s.RegisterAuthRoutes()
	s.RegisterAPIRoutes()
	s.RegisterFallback()
}

func (s *Server) RegisterAuthRoutes() {
	auth := s.engine.Group("/api/auth")

	auth.POST("/login", s.Login)
	auth.POST("/logout", s.Logout)
	auth.GET("/me", s.AuthRequired(), s.Me)
	auth.POST("/change-password", s.AuthRequired(), s.ChangePassword)
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	// -------- Accounts --------
	api.GET("/accounts", s.ListAccounts)
	api.POST("/accounts", s.CreateAccount)
	api.POST("/accounts/acquire", s.AcquireAccount)
	api.GET("/accounts/:slug", s.GetAccount)
	api.PATCH("/accounts/:slug", s.UpdateAccount)
	api.DELETE("/accounts/:slug", s.DeleteAccount)
	api.POST("/accounts/:slug/activate", s.SetAccountActive)
	api.GET("/accounts/:slug/acquiring-candidates", s.ListAcquiringCandidates)
	api.GET("/accounts/:slug/subsidiaries", s.ListSubsidiaries)
	api.PUT("/accounts/:slug/domain", s.SetAccountDomain)
	api.GET("/accounts/:slug/case-users", s.ListCaseUsers)
	api.GET("/accounts/:slug/subscription", s.GetAccountSubscription)

	// -------- Subscriptions --------
	api.GET("/accounts/:slug/subscriptions", s.ListSubscriptions)
	api.POST("/accounts/:slug/subscriptions", s.CreateSubscription)
	api.PATCH("/accounts/:slug/subscriptions/update", s.UpdateSubscription)
	api.POST("/accounts/:slug/subscriptions/renew", s.RenewSubscription)
	api.POST("/accounts/:slug/subscriptions/cancel", s.CancelSubscription)
	api.POST("/accounts/:slug/device-subscriptions", s.CreateDeviceSubscription)

	// -------- Associations --------
	api.GET("/associated-accounts", s.ListAssociatedAccounts)
	api.POST("/associated-accounts", s.RequestAccountAssociation)
	api.POST("/associated-accounts/request-admin", s.RequestAssociationViaAdmin)
	api.PATCH("/associated-accounts/:id/accept", s.AcceptAccountAssociation)
	api.DELETE("/associated-accounts/:id", s.RemoveAccountAssociation)
	api.GET("/associated-contacts", s.ListAssociatedContacts)
	api.POST("/associated-contacts", s.RequestContactAssociation)
	api.POST("/associated-contacts/request-admin", s.RequestContactViaAdmin)
	api.POST("/associated-contacts/invite", s.InviteContact)
	api.PATCH("/associated-contacts/:id/accept", s.AcceptContactAssociation)
	api.DELETE("/associated-contacts/:id", s.RemoveContactAssociation)

	// -------- Users & groups --------
	api.GET("/users", s.ListUsers)
	api.POST("/users", s.CreateUser)
	api.GET("/users/:slug", s.GetUser)
	api.PATCH("/users/:slug", s.UpdateUser)
	api.DELETE("/users/:slug", s.DeleteUser)
	api.PUT("/users/:slug/groups", s.SetUserGroups)
	api.GET("/groups", s.ListGroups)
	api.GET("/groups/:name/permissions", s.GetGroupPermissions)
	api.PUT("/groups/:name/permissions", s.SuperuserRequired(), s.SetGroupPermissions)
	api.GET("/permissions", s.ListPermissions)

	// -------- Devices --------
	api.GET("/devices", s.ListDevices)
	api.POST("/devices", s.CreateDevice)
	api.POST("/devices/transfer", s.TransferDevices)
	api.GET("/devices/maintenance-records", s.ListMaintenanceRecords)
	api.GET("/devices/:slug", s.GetDevice)
	api.PATCH("/devices/:slug", s.UpdateDevice)
	api.POST("/devices/:slug/status", s.SetDeviceStatus)
	api.GET("/devices/:slug/maintenance-records", s.ListDeviceRecords)
	api.GET("/device-items", s.ListDeviceItems)
	api.POST("/device-items", s.CreateDeviceItem)

	// -------- Cases --------
	api.GET("/cases", s.ListCases)
	api.POST("/cases", s.CreateCase)
	api.GET("/cases/to-archive", s.ListCasesToArchive)
	api.POST("/cases/archive", s.ArchiveCases)
	api.POST("/cases/unarchive", s.UnarchiveCases)
	api.GET("/cases/:id", s.GetCase)
	api.PATCH("/cases/:id", s.UpdateCase)
	api.POST("/cases/:id/close", s.CloseCase)
	api.POST("/cases/:id/archive", s.ArchiveCase)
	api.POST("/cases/:id/unarchive", s.UnarchiveCase)
	api.POST("/cases/:id/device-change", s.ChangeCaseDevice)
	api.GET("/cases/:id/roles", s.GetCaseRoles)
	api.PUT("/cases/:id/roles", s.UpdateCaseRoles)
	api.GET("/cases/:id/notification-matrix", s.GetCaseMatrix)
	api.PUT("/cases/:id/notification-matrix", s.UpdateCaseMatrix)
	api.GET("/cases/:id/notes", s.ListCaseNotes)
	api.POST("/cases/:id/notes", s.CreateNote)
	api.GET("/cases/:id/interpretations", s.ListInterpretations)
	api.POST("/cases/:id/interpretations", s.CreateInterpretation)
	api.GET("/cases/:id/interpretation-summary", s.GetInterpretationSummary)

	// -------- Notes & interpretations --------
	api.GET("/notes", s.ListNotes)
	api.GET("/notes/:slug", s.GetNote)
	api.GET("/interpretations/:slug", s.GetInterpretation)
	api.POST("/interpretations/:slug/approve", s.ApproveInterpretation)

	// -------- Notification matrix --------
	api.GET("/default-notification-matrix", s.GetDefaultMatrix)
	api.PUT("/default-notification-matrix", s.UpdateDefaultMatrix)

	// -------- Uploads --------
	api.POST("/uploads/accounts", s.UploadRateLimit(), s.UploadAccounts)
	api.POST("/uploads/devices", s.UploadRateLimit(), s.UploadDevices)
	api.GET("/uploads/:id", s.GetUpload)
	api.POST("/uploads/:id/commit", s.CommitUpload)

	// -------- Notifications --------
	api.GET("/notifications", s.ListNotifications)
	api.POST("/notifications/:id/read", s.MarkNotificationRead)

	// -------- Audit --------
	api.GET("/audit-logs", s.SuperuserRequired(), s.ListAuditLogs)
}

func (s *Server) RegisterFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
