package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Xhuk/continuitybridge/internal/metrics"
	"github.com/Xhuk/continuitybridge/internal/queue"
)

// NSQStats represents the JSON structure returned by the nsqd stats API
type NSQStats struct {
	Topics []struct {
		TopicName string `json:"topic_name"`
		Channels  []struct {
			ChannelName   string `json:"channel_name"`
			Depth         int64  `json:"depth"`
			InFlightCount int64  `json:"in_flight_count"`
		} `json:"channels"`
		Depth int64 `json:"depth"`
	} `json:"topics"`
}

var (
	channelDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bridge_nsq_channel_depth",
		Help: "Depth of NSQ channels by topic and channel",
	}, []string{"topic", "channel"})

	channelInflight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bridge_nsq_channel_inflight",
		Help: "In-flight messages for NSQ channels by topic and channel",
	}, []string{"topic", "channel"})
)

func main() {
	nsqdHost := getEnv("NSQD_HTTP_ADDR", "nsqd:4151")
	port := getEnv("PORT", "8084")
	interval := getEnvInt("POLL_INTERVAL_SECONDS", 15)
	topics := splitTopics(getEnv("MONITOR_TOPICS", "items,node_runs"))

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)
	reg.MustRegister(channelDepth)
	reg.MustRegister(channelInflight)

	log.Printf("queue monitor starting on port %s", port)
	log.Printf("monitoring nsqd at %s every %d seconds, topics %v", nsqdHost, interval, topics)

	go collectMetrics(nsqdHost, topics, time.Duration(interval)*time.Second)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "OK")
	})

	log.Fatal(http.ListenAndServe(":"+port, mux))
}

// splitTopics expands the comma-separated topic list, adding each topic's
// dead-letter twin so DLQ growth shows up without extra configuration.
func splitTopics(spec string) []string {
	var topics []string
	for _, t := range strings.Split(spec, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		topics = append(topics, t, queue.DeadLetterTopic(t))
	}
	return topics
}

func collectMetrics(nsqdHost string, topics []string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		if err := updateMetrics(nsqdHost, topics); err != nil {
			log.Printf("error updating metrics: %v", err)
		}
	}
}

func updateMetrics(nsqdHost string, topics []string) error {
	resp, err := http.Get(fmt.Sprintf("http://%s/stats?format=json", nsqdHost))
	if err != nil {
		return fmt.Errorf("failed to get NSQ stats: %w", err)
	}
	defer resp.Body.Close()

	var stats NSQStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return fmt.Errorf("failed to decode NSQ stats: %w", err)
	}

	watched := make(map[string]bool, len(topics))
	for _, t := range topics {
		watched[t] = true
	}

	for _, topic := range stats.Topics {
		if !watched[topic.TopicName] {
			continue
		}
		backlog := topic.Depth
		for _, channel := range topic.Channels {
			backlog += channel.Depth
			channelDepth.WithLabelValues(topic.TopicName, channel.ChannelName).Set(float64(channel.Depth))
			channelInflight.WithLabelValues(topic.TopicName, channel.ChannelName).Set(float64(channel.InFlightCount))
		}
		metrics.UpdateQueueBacklog(topic.TopicName, float64(backlog))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
