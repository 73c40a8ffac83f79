package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sdengine/internal/sdface"
	"sdengine/internal/sdserve"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the interactive control surface over a websocket.",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine := sdface.New()
		srv := sdserve.New(engine, serveAddr)
		srv.ListenAndServe()
		fmt.Printf("sdengine serving on %s/ws\n", serveAddr)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		return srv.Shutdown()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:7777", "address to listen on")
}
