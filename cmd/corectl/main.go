package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/tutordesk/corekit/internal/config"
	"github.com/tutordesk/corekit/internal/corectl"
	"github.com/tutordesk/corekit/internal/logging"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	logger := logging.NewTextLogger(os.Stderr, slog.LevelInfo)

	app := corectl.NewApp(cfg, logger, os.Stdout)

	if err := app.Run(ctx, os.Args[1:]); err != nil {
		log.Fatalf("%v", err)
	}

}
