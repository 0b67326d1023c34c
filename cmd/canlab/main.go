package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"canlab/cmd/canlab/cmd"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quitChan := make(chan os.Signal, 1)
	signal.Notify(quitChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		s := <-quitChan
		log.Printf("got %v, exiting", s)
		cancel()
		// Failsafe if a loop never returns
		<-time.After(10 * time.Second)
		log.Fatal("took too long to shut down, forcefully exiting")
	}()

	if err := cmd.Execute(ctx); err != nil {
		os.Exit(1)
	}
}
