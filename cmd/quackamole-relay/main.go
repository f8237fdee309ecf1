package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/quackamole-dev/quackamole-relay/api"
	"github.com/quackamole-dev/quackamole-relay/catalog"
	"github.com/quackamole-dev/quackamole-relay/config"
	"github.com/quackamole-dev/quackamole-relay/conns"
	"github.com/quackamole-dev/quackamole-relay/directory"
	"github.com/quackamole-dev/quackamole-relay/globals"
	"github.com/quackamole-dev/quackamole-relay/relay"
	"github.com/quackamole-dev/quackamole-relay/rooms"
	"github.com/quackamole-dev/quackamole-relay/ws"
	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"
)

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
	addr       = pflag.String("addr", "localhost:12000", "service address (including port)")
	sslCert    = pflag.String("ssl-cert", "", "SSL cert (optional)")
	sslKey     = pflag.String("ssl-key", "", "SSL key (optional)")

	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
)

func main() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	go func() {
		<-c
		log.Fatal("interrupted!")
	}()

	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()
	log.SetFlags(0)

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	if globalConfig.LogLevel != "" {
		globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))
	}

	dir, err := directory.NewDirectory()
	if err != nil {
		panic(err)
	}
	defer dir.Close()

	cat := catalog.NewCatalog(globalConfig.Plugins)
	registry := rooms.NewRegistry(cat, globalConfig.DefaultMaxUsers, globalConfig.RequireAdminForPlugins)
	connRegistry := conns.NewRegistry()

	hub := ws.NewHub()
	go hub.Run()

	dispatcher := relay.NewDispatcher(dir, registry, cat, connRegistry, hub)

	if globalConfig.RoomTTLMinutes > 0 {
		ttl := time.Duration(globalConfig.RoomTTLMinutes) * time.Minute
		cronRunner := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
		if _, err := cronRunner.AddFunc(globalConfig.SweepCron, func() { registry.Sweep(ttl) }); err != nil {
			panic(err)
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	router := mux.NewRouter()
	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		websocketHandler(w, r, hub, dispatcher)
	}).Methods(http.MethodGet)
	api.NewServer(registry, cat, dir, dispatcher, globalConfig).Routes(router)
	http.Handle("/", router)

	globals.AppLogger.Info("listening", "addr", *addr)
	if *sslCert != "" && *sslKey != "" {
		err = http.ListenAndServeTLS(*addr, *sslCert, *sslKey, nil)
	} else {
		err = http.ListenAndServe(*addr, nil)
	}
	globals.AppLogger.Error("stopped listening", "error", err)
}

// Handle incoming websockets.
func websocketHandler(w http.ResponseWriter, r *http.Request, hub *ws.Hub, dispatcher *relay.Dispatcher) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		globals.AppLogger.Error("websocket upgrade error", "error", err)
		return
	}
	// When this frame returns close the websocket
	defer conn.Close() //nolint

	doneChan := make(chan struct{})
	client := ws.NewClient(hub, conn, dispatcher, doneChan)

	// Add to the hub and wait until the registration actually happened, so
	// events published right after this reach the new client.
	client.Add(1)
	hub.Register <- client
	client.Wait()
	defer func() {
		dispatcher.CloseConnection(client.Record)
		hub.Unregister <- client
	}()

	client.Add(2)
	go client.ReadLoop()
	go client.WriteLoop()

	<-doneChan
	globals.AppLogger.Debug("doneChan closed, exiting ws handler")
}
