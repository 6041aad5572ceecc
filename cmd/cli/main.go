package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(newCommandContext()).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func printBanner() {
	banner := `
    _                      _   _      ____                   
   / \   ___ ___  _   _ ___| |_(_) ___/ ___| _   _ _ __   ___ 
  / _ \ / __/ _ \| | | / __| __| |/ __\___ \| | | | '_ \ / __|
 / ___ \ (_| (_) | |_| \__ \ |_| | (__ ___) | |_| | | | | (__ 
/_/   \_\___\___/ \__,_|___/\__|_|\___|____/ \__, |_| |_|\___|
                                             |___/            
           Multi-device Clip Sync CLI
`
	fmt.Fprintln(os.Stderr, banner)
}
