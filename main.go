package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"meshbot/gateway"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables from .env if present (non-fatal if missing)
	_ = godotenv.Load()

	addr := ":8080"
	if v := os.Getenv("PORT"); v != "" {
		addr = ":" + v
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := gateway.NewServiceFromEnv(ctx)

	consumer, err := gateway.StartJobsConsumer(ctx, svc)
	if err != nil {
		log.Fatalf("failed to start jobs consumer: %v", err)
	}
	if consumer != nil {
		defer consumer.Close()
	}

	r := gateway.NewRouter(svc)
	log.Printf("Starting gateway on %s", addr)
	log.Println("API endpoints available:")
	log.Println("  GET  /api/health")
	log.Println("  POST /api/generate")
	log.Println("  POST /api/remix")
	log.Println("  POST /api/transcribe")
	log.Println("  POST /api/upload")
	log.Println("  GET  /models/<file>")

	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
