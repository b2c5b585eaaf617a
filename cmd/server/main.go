package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/safetrack/fieldsign/internal/flagx"
	"github.com/safetrack/fieldsign/internal/server"
	"github.com/safetrack/fieldsign/internal/server/auth"
	"github.com/safetrack/fieldsign/internal/server/config"
)

func main() {
	ctx := context.Background()
	cfg := config.LoadConfig()

	// -m <device-id> mints a device token and exits; handy when
	// provisioning a field tablet.
	if deviceID := mintFlag(); deviceID != "" {
		tok, err := auth.GenerateToken(deviceID, []byte(cfg.SecretKey), cfg.TokenValidityDuration)
		if err != nil {
			log.Fatalf("%v", err)
		}
		fmt.Println(tok)
		return
	}

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)
}

func mintFlag() string {
	args := flagx.FilterArgs(os.Args[1:], []string{"-m"})

	fs := flag.NewFlagSet("mint", flag.ContinueOnError)
	deviceID := fs.String("m", "", "mint a device token for the given device id and exit")
	if err := fs.Parse(args); err != nil {
		panic(err)
	}
	return *deviceID
}
