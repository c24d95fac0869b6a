package bootstrap

import (
	"log"

	"github.com/joho/godotenv"
)

// Loadenv loads .env before fx wiring so config providers see the variables.
func Loadenv() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}
}
