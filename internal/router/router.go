// Package router wires handlers and middleware onto the Echo instance.
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gigexecs/gigexecs-api/internal/config"
	"github.com/gigexecs/gigexecs-api/internal/handler"
	"github.com/gigexecs/gigexecs-api/internal/middleware"
	"github.com/gigexecs/gigexecs-api/internal/model"
)

// Deps is everything the routes need.  Every field is required.
type Deps struct {
	Verifier       middleware.TokenVerifier
	Staff          middleware.StaffLookup
	Limiter        *middleware.Limiter
	Cache          echo.MiddlewareFunc
	ServiceRoleKey string
	DB             handler.Pinger

	Accounts *handler.AccountHandler
	Console  *handler.StaffHandler
	Gigs     *handler.GigHandler
	Emails   *handler.EmailHandler
	Profile  *handler.ProfileHandler
	Files    *handler.FileHandler
	Feedback *handler.FeedbackHandler
}

// Register mounts every endpoint.  Route level middleware runs left to
// right, so the auth gate always precedes the limiter and the staff check.
func Register(e *echo.Echo, d Deps) {
	authed := middleware.Auth(d.Verifier)
	limit := d.Limiter.Limit
	staff := func(min model.StaffRole) echo.MiddlewareFunc { return middleware.RequireStaff(d.Staff, min) }

	e.GET("/healthz", handler.Health(d.DB))
	e.GET("/rate-limit-status", handler.RateLimitStatus(d.Limiter))
	e.GET("/skills", d.Accounts.ListSkills, d.Cache, limit(config.LimitGeneral))
	e.GET("/files/*", d.Files.Serve, limit(config.LimitData))

	// accounts
	e.POST("/register-user", d.Accounts.Register, limit(config.LimitRegistration))
	e.POST("/get-client-data", d.Accounts.ClientData, authed, limit(config.LimitData))
	e.POST("/get-user-skills", d.Accounts.UserSkills, authed, limit(config.LimitData))
	e.POST("/generate-signed-url", d.Files.SignedURL, authed, limit(config.LimitData))

	// email
	e.POST("/send-email", d.Emails.Send, authed, limit(config.LimitGeneral))
	e.GET("/email-history", d.Emails.History, authed, staff(model.StaffSupport))
	e.POST("/email-reminders", d.Emails.RunReminders, middleware.ServiceKey(d.ServiceRoleKey))
	e.POST("/submit-feedback", d.Feedback.Submit, authed, limit(config.LimitGeneral))

	// AI profile pipeline
	e.POST("/profile-cv-upload", d.Profile.Upload, authed, limit(config.LimitData))
	e.POST("/profile-parse-cv", d.Profile.ParseCV, authed, limit(config.LimitData))
	e.POST("/profile-parse-cv-background", d.Profile.ParseCVBackground, limit(config.LimitData))
	e.Match([]string{http.MethodGet, http.MethodPost}, "/profile-parse-cv-status", d.Profile.ParseStatus, authed, limit(config.LimitData))
	e.POST("/profile-parse-text", d.Profile.ParseText, authed, limit(config.LimitData))
	e.POST("/profile-assess-eligibility", d.Profile.AssessEligibility, authed, limit(config.LimitData))
	e.POST("/profile-ai-start", d.Profile.Start, authed, limit(config.LimitAIStart))
	e.POST("/profile-ai-continue", d.Profile.Continue, authed, limit(config.LimitAIContinue))
	e.POST("/profile-ai-publish", d.Profile.Publish, authed, limit(config.LimitAIPublish))
	e.POST("/profile-save-parsed", d.Profile.SaveParsed, authed, limit(config.LimitSaveParsed))

	// external gigs
	e.POST("/track-external-gig-click", d.Gigs.TrackClick, authed, limit(config.LimitGeneral))
	e.GET("/staff-external-gigs-list", d.Gigs.List, authed, staff(model.StaffSupport))
	e.POST("/staff-external-gigs-create", d.Gigs.Create, authed, staff(model.StaffAdmin))
	e.PATCH("/staff-external-gigs-update", d.Gigs.Update, authed, staff(model.StaffAdmin))
	e.DELETE("/staff-external-gigs-delete", d.Gigs.Delete, authed, staff(model.StaffSuperUser))
	e.GET("/staff-external-gig-clicks", d.Gigs.Clicks, authed, staff(model.StaffSupport))

	// staff console
	e.POST("/staff-login", d.Console.Login, limit(config.LimitAuth))
	e.POST("/staff-logout", d.Console.Logout, authed, staff(model.StaffSupport))
	e.POST("/staff-impersonate-start", d.Console.StartImpersonation, authed, staff(model.StaffAdmin))
	e.POST("/staff-impersonate-end", d.Console.EndImpersonation, limit(config.LimitAuth))
	e.POST("/staff-update-vetting", d.Console.UpdateVetting, authed, staff(model.StaffSupport))
	e.GET("/staff-pending-vetting", d.Console.PendingVetting, authed, staff(model.StaffSupport))
	e.GET("/staff-profile-for-vetting", d.Console.ProfileForVetting, authed, staff(model.StaffSupport))
	e.GET("/staff-manage-users", d.Console.ListStaff, authed, staff(model.StaffSuperUser))
	e.POST("/staff-create-user", d.Console.CreateStaff, authed, staff(model.StaffSuperUser))
	e.PUT("/staff-update-user", d.Console.UpdateStaff, authed, staff(model.StaffSuperUser))
}
