package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/pflag"
	"github.com/tcriess/lightspeed-presence/auth"
	"github.com/tcriess/lightspeed-presence/config"
	"github.com/tcriess/lightspeed-presence/globals"
	"github.com/tcriess/lightspeed-presence/persistence"
	"github.com/tcriess/lightspeed-presence/ratelimit"
	"github.com/tcriess/lightspeed-presence/registry"
	"github.com/tcriess/lightspeed-presence/ws"
)

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
	addr       = pflag.String("addr", "", "ws service address (including port)")
	sslCert    = pflag.String("ssl-cert", "", "SSL cert for websocket (optional)")
	sslKey     = pflag.String("ssl-key", "", "SSL key for websocket (optional)")
)

func main() {
	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	if globalConfig.LogLevel != "" {
		globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))
	}
	if *addr != "" {
		globalConfig.ServerConfig.Addr = *addr
	}

	var backend registry.Backend
	switch globalConfig.BackendConfig.Type {
	case "", "local":
		backend = registry.NewLocalBackend()
	case "redis":
		backend, err = registry.NewRedisBackend(&globalConfig.BackendConfig)
		if err != nil {
			panic(err)
		}
	default:
		panic("unknown backend type " + globalConfig.BackendConfig.Type)
	}

	persister, err := persistence.NewPersister(globalConfig)
	if err != nil {
		panic(err)
	}
	if persister != nil {
		defer persister.Close()
	}

	mgr, err := registry.NewManager(backend, globalConfig.RoomConfig.ReservedPrefixes)
	if err != nil {
		panic(err)
	}
	defer mgr.Close()

	limiter := ratelimit.NewLimiter(globalConfig.RateLimitConfig.GlobalMax(), globalConfig.RateLimitConfig.GlobalWindow())
	authenticator := auth.NewCachedAuthenticator(auth.NewOIDCAuthenticator(globalConfig))
	router := ws.NewRouter(mgr, limiter, authenticator, persister, globalConfig.RateLimitConfig)
	handler := ws.NewHandler(mgr, router, limiter, authenticator, persister)

	janitor, err := registry.NewJanitor(mgr, globalConfig.RoomConfig.CleanupSpec, globalConfig.RoomConfig.Retention(), limiter.RemoveConn)
	if err != nil {
		panic(err)
	}
	janitor.Start()
	defer janitor.Stop()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		globals.AppLogger.Info("interrupted, shutting down")
		janitor.Stop()
		mgr.Close()
		os.Exit(0)
	}()

	muxRouter := mux.NewRouter()
	muxRouter.Handle("/realtime", handler).Methods(http.MethodGet)
	http.Handle("/", muxRouter)

	globals.AppLogger.Info("listening", "addr", globalConfig.ServerConfig.Addr)
	if *sslCert != "" && *sslKey != "" {
		err = http.ListenAndServeTLS(globalConfig.ServerConfig.Addr, *sslCert, *sslKey, nil)
	} else {
		err = http.ListenAndServe(globalConfig.ServerConfig.Addr, nil)
	}
	globals.AppLogger.Error("stopped listening", "error", err)
}
