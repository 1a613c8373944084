package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/temirov/plugman/cmd/cli"
)

const (
	exitErrorTemplateConstant = "%v\n"
	interruptMessageConstant  = "Interrupted.\n"

	failureExitCodeConstant   = 1
	interruptExitCodeConstant = 130
)

// main executes the plugman command-line application. An interrupt stops new
// work from being dispatched and exits with the conventional signal code.
func main() {
	executionContext, stopSignalHandling := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignalHandling()

	executionError := cli.NewApplication().ExecuteContext(executionContext)

	if executionContext.Err() != nil {
		fmt.Fprint(os.Stderr, interruptMessageConstant)
		os.Exit(interruptExitCodeConstant)
	}
	if executionError != nil {
		fmt.Fprintf(os.Stderr, exitErrorTemplateConstant, executionError)
		os.Exit(failureExitCodeConstant)
	}
}
