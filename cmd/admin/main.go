package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/gophauth/internal/admin"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server"
	"github.com/dmitrijs2005/gophauth/internal/server/cache"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/mail"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()

	db, rm, err := server.OpenStore(ctx, cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if db != nil {
		defer db.Close()
	}

	logger := logging.New(cfg.Env, os.Stderr)
	users := services.NewUserService(db, rm, mail.Nop{}, cache.Nop{}, nil, logger, cfg)

	if err := admin.Run(ctx, users, os.Args[1:], os.Stdout); err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}

}
