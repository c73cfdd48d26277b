// Command droiddb pulls SQLite databases out of Android apps over adb and
// browses the local copies.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/blackwell-systems/droiddb/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := app.Execute(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
