package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/m3rciful/funnelbot/core/cmd"
	"github.com/m3rciful/funnelbot/internal/bot"
)

func main() {
	_ = godotenv.Load()

	err := cmd.Run(cmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (cmd.ConfigCarrier, error) {
			return bot.LoadConfig(path)
		},
		Bootstrap: func(carrier cmd.ConfigCarrier) (cmd.TelegramApp, error) {
			return bot.NewApp(carrier.CoreConfig())
		},
	})
	if err != nil {
		log.Fatalf("funnelbot: %v", err)
	}
}
