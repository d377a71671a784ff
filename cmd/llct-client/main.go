package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"runtime/debug"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/nxank4/go-llct-client/bridge"
	"github.com/nxank4/go-llct-client/callback"
	"github.com/nxank4/go-llct-client/fetch"
	"github.com/nxank4/go-llct-client/internal/config"
	"github.com/nxank4/go-llct-client/refresh"
	"github.com/nxank4/go-llct-client/routeguard"
	"github.com/nxank4/go-llct-client/session"
	"github.com/nxank4/go-llct-client/session/oidcprovider"
	"github.com/nxank4/go-llct-client/tokenstore/boltstore"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error running client: %s\n", err)
	}
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())
	setupLogging(c)

	if err := config.Validate(c); err != nil {
		return fmt.Errorf("config.Validate: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := boltstore.New(c.GetTokenStorePath(), c.GetTokenStoreSecret())
	if err != nil {
		return fmt.Errorf("boltstore.New: %w", err)
	}
	defer store.Close()

	provider, err := oidcprovider.New(ctx, c.GetAuthBaseURL(), c.GetAppName())
	if err != nil {
		return fmt.Errorf("oidcprovider.New: %w", err)
	}

	coordinator, err := refresh.NewCoordinator(provider, store)
	if err != nil {
		return fmt.Errorf("refresh.NewCoordinator: %w", err)
	}

	apiClient, err := fetch.NewClient(c.GetAPIBaseURL(), coordinator)
	if err != nil {
		return fmt.Errorf("fetch.NewClient: %w", err)
	}

	sessionBridge, err := bridge.NewBridge(c.GetAPIBaseURL(), c.GetOAuthProvider(), store)
	if err != nil {
		return fmt.Errorf("bridge.NewBridge: %w", err)
	}

	callbackHandler, err := callback.NewHandler(provider, callback.WithRedirect(c.GetLoginPath(), 3*time.Second))
	if err != nil {
		return fmt.Errorf("callback.NewHandler: %w", err)
	}

	// A callback URL passed on the command line is handled before anything
	// else, establishing the session the rest of the run sees.
	if len(os.Args) > 1 {
		result := callbackHandler.Handle(ctx, os.Args[1])
		zlog.Info().
			Str("state", string(result.State)).
			Str("message", result.Message).
			Str("redirect_to", result.RedirectTo).
			Msg("auth callback handled")
	}

	guard := routeguard.New(routeguard.Config{
		LoginPath:        c.GetLoginPath(),
		ConfirmEmailPath: c.GetConfirmEmailPath(),
		RoleLandingPaths: map[session.Role]string{
			session.RoleAdmin:      c.GetAdminLandingPath(),
			session.RoleInstructor: c.GetInstructorLandingPath(),
			session.RoleStudent:    c.GetStudentLandingPath(),
		},
		ExcludedPrefixes: c.GetExcludedPathPrefixes(),
	})

	current, err := provider.Current(ctx)
	if err != nil {
		return fmt.Errorf("provider.Current: %w", err)
	}

	if err := sessionBridge.Reconcile(ctx, current); err != nil {
		zlog.Warn().Err(err).Msg("session bridge reconcile failed")
	}

	decision := guard.Evaluate(current, "/courses", nil)
	zlog.Info().
		Str("state", string(decision.State)).
		Bool("allow", decision.Allow).
		Str("redirect_to", decision.RedirectTo).
		Msg("route guard decision for /courses")

	if decision.Allow {
		var profile struct {
			Email       string `json:"email"`
			DisplayName string `json:"full_name"`
		}
		if err := apiClient.GetJSON(ctx, "/api/v1/users/me", &profile); err != nil {
			zlog.Warn().Err(err).Msg("profile fetch failed")
		} else {
			zlog.Info().Str("email", profile.Email).Str("name", profile.DisplayName).Msg("profile fetched")
		}
	}

	return nil
}

func setupLogging(c config.Config) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if c.GetEnv() == "DEV" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		zlog.Logger = zlog.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
