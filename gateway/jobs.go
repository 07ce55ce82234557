package gateway

import (
	"context"
	"log"
	"os"
	"strings"

	"meshbot/kafka"
)

// GenerationJob is a batch generation request consumed off the queue.
type GenerationJob struct {
	Text     string `json:"text"`
	ArtStyle string `json:"artstyle"`
	SavePath string `json:"save_path"`
}

// StartJobsConsumer attaches a Kafka consumer that feeds queued jobs
// through the same pipeline the HTTP surface uses. Returns nil (and does
// nothing) when KAFKA_BOOTSTRAP_SERVERS is unset: batch ingestion is an
// optional subsystem.
func StartJobsConsumer(ctx context.Context, svc *Service) (*kafka.Consumer, error) {
	brokers := os.Getenv("KAFKA_BOOTSTRAP_SERVERS")
	if brokers == "" {
		log.Printf("Kafka not configured; skipping batch job ingestion")
		return nil, nil
	}

	handler := &kafka.TypedMessageHandler[GenerationJob]{
		Validate: func(job *GenerationJob) bool {
			if strings.TrimSpace(job.Text) == "" {
				log.Printf("⚠️  Skipping job with empty prompt")
				return false
			}
			return true
		},
		Process: func(ctx context.Context, job *GenerationJob) error {
			log.Printf("🎬 Processing queued generation: %q", job.Text)
			if _, err := svc.Generate(ctx, job.Text, job.ArtStyle, job.SavePath); err != nil {
				log.Printf("❌ Queued generation failed: %v", err)
				return err // leave unmarked for retry
			}
			return nil
		},
	}

	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: strings.Split(brokers, ","),
		Topic:   getEnvOrDefault("KAFKA_TOPIC_GENERATION_JOBS", "model-generation-jobs"),
		GroupID: getEnvOrDefault("KAFKA_CONSUMER_GROUP_ID", "meshbot-gateway"),
		Handler: handler,
	})
	if err != nil {
		return nil, err
	}

	if err := consumer.Start(ctx); err != nil {
		return nil, err
	}
	return consumer, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
