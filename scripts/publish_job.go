//go:build ignore

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Ручная публикация задания на обследование в очередь воркера и
// ожидание результата. Запуск: go run scripts/publish_job.go
type analysisRequestedEvent struct {
	JobID       string    `json:"job_id"`
	Filename    string    `json:"filename"`
	LeaseWKT    *string   `json:"lease_wkt,omitempty"`
	StartDate   string    `json:"start_date,omitempty"`
	EndDate     string    `json:"end_date,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

func main() {
	redisAddr := flag.String("redis", "localhost:6379", "Redis address for streams")
	leaseWKT := flag.String("lease", "", "Lease boundary as WKT POLYGON (empty = default lease)")
	flag.Parse()

	client := redis.NewClient(&redis.Options{
		Addr: *redisAddr,
	})
	defer client.Close()

	ctx := context.Background()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	event := analysisRequestedEvent{
		JobID:       uuid.New().String()[:8],
		Filename:    "manual-publish.wkt",
		RequestedAt: time.Now().UTC(),
	}
	if *leaseWKT != "" {
		event.LeaseWKT = leaseWKT
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Fatalf("Failed to marshal event: %v", err)
	}

	result, err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: "stream:analysis:jobs",
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()
	if err != nil {
		log.Fatalf("Failed to publish event: %v", err)
	}

	fmt.Printf("Event published\n")
	fmt.Printf("   Stream: stream:analysis:jobs\n")
	fmt.Printf("   Message ID: %s\n", result)
	fmt.Printf("   Job ID: %s\n", event.JobID)

	fmt.Printf("\nWaiting for response in stream:analysis:done...\n")

	timeout := time.After(5 * time.Minute)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			fmt.Println("Timeout waiting for response")
			return
		case <-ticker.C:
			results, err := client.XRead(ctx, &redis.XReadArgs{
				Streams: []string{"stream:analysis:done", "0"},
				Count:   10,
				Block:   0,
			}).Result()
			if err != nil && err != redis.Nil {
				continue
			}

			for _, stream := range results {
				for _, msg := range stream.Messages {
					dataStr, ok := msg.Values["data"].(string)
					if !ok {
						continue
					}

					var response map[string]interface{}
					if err := json.Unmarshal([]byte(dataStr), &response); err != nil {
						continue
					}

					if jobID, ok := response["job_id"].(string); ok && jobID == event.JobID {
						fmt.Printf("\nResponse received\n")
						prettyJSON, _ := json.MarshalIndent(response, "", "  ")
						fmt.Printf("%s\n", prettyJSON)
						return
					}
				}
			}
		}
	}
}
