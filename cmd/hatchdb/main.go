package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"hatchdb/pkg/config"
	"hatchdb/pkg/database"
	"hatchdb/pkg/repl"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Default port 8335 (BEES).
const DEFAULT_PORT int = 8335

var log = logrus.New()

// setupCloseHandler listens for SIGINT or SIGTERM and closes the database.
func setupCloseHandler(db *database.Database) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		log.Info("shutting down")
		if err := db.Close(); err != nil {
			log.WithError(err).Error("failed to close database")
		}
		os.Exit(0)
	}()
}

// startServer listens for connections at the given port and runs the REPL
// on each of them.
func startServer(r *repl.REPL, prompt string, port int) {
	handleConn := func(c net.Conn) {
		clientId := uuid.New()
		defer c.Close()
		log.WithFields(logrus.Fields{
			"client": clientId,
			"remote": c.RemoteAddr(),
		}).Info("client connected")
		r.Run(clientId, prompt, c, c)
		log.WithField("client", clientId).Info("client disconnected")
	}
	listener, err := net.Listen("tcp", fmt.Sprintf(":%v", port))
	if err != nil {
		log.Fatal(err)
	}
	log.WithField("port", listener.Addr().(*net.TCPAddr).Port).
		Infof("%s server started", config.DBName)
	for {
		conn, err := listener.Accept()
		if err != nil {
			log.WithError(err).Error("failed to accept connection")
			continue
		}
		go handleConn(conn)
	}
}

func main() {
	promptFlag := flag.Bool("c", true, "use prompt?")
	dbFlag := flag.String("db", "data/", "DB folder")
	portFlag := flag.Int("p", DEFAULT_PORT, "port number")
	serveFlag := flag.Bool("serve", false, "serve the REPL over tcp instead of stdin")
	flag.Parse()

	db, err := database.Open(*dbFlag)
	if err != nil {
		log.Fatal(err)
	}
	setupCloseHandler(db)

	r := database.DatabaseRepl(db)
	prompt := config.GetPrompt(*promptFlag)
	if *serveFlag {
		startServer(r, prompt, *portFlag)
	} else {
		r.Run(uuid.New(), prompt, nil, nil)
		if err := db.Close(); err != nil {
			log.WithError(err).Error("failed to close database")
		}
	}
}
