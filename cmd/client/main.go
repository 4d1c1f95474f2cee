package main

import (
	"context"
	"log"
	"os"

	"github.com/nkrylov/cipherchat/internal/buildinfo"
	"github.com/nkrylov/cipherchat/internal/client/cli"
	"github.com/nkrylov/cipherchat/internal/client/config"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := cli.NewApp(ctx, cfg)

	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	app.Run(ctx)

}
