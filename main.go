package main

import (
	"log"
	"net/http"

	"github.com/joho/godotenv"

	"mwpos/m/internal/api"
	"mwpos/m/internal/config"
	"mwpos/m/internal/database"
	"mwpos/m/internal/migrations"
	"mwpos/m/internal/seed"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	db := database.Connect(cfg.DatabaseDSN)
	defer db.Close()

	migrations.Run(db)
	seed.LoadProducts(db, "assets/products.csv")

	handler := api.New(db, cfg.Secret)

	log.Printf("MW Waters POS server starting on :%s", cfg.HTTPPort)
	if err := http.ListenAndServe(":"+cfg.HTTPPort, handler.Router()); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
