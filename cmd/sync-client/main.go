package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/Wuchinator/watchtime/internal/auth"
	"github.com/Wuchinator/watchtime/internal/ingest"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type client struct {
	baseURL string
	device  string
	token   string
	http    *http.Client
}

func newRootCmd() *cobra.Command {
	c := &client{http: &http.Client{Timeout: 10 * time.Second}}

	root := &cobra.Command{
		Use:           "sync-client",
		Short:         "Exercise a running sync service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.baseURL, "url", "http://localhost:8000", "sync service base URL")
	root.PersistentFlags().StringVar(&c.device, "device", "dev-"+uuid.NewString()[:8], "X-User-Id sent in dev mode")
	root.PersistentFlags().StringVar(&c.token, "token", "", "Google ID token; switches to Bearer auth")

	root.AddCommand(newSyncCmd(c))
	root.AddCommand(newDayCmd(c))
	root.AddCommand(newGetCmd(c))
	root.AddCommand(newHealthCmd())
	return root
}

func newHealthCmd() *cobra.Command {
	var addr, service string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query the gRPC health endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				return fmt.Errorf("connect %s: %w", addr, err)
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
			if err != nil {
				return fmt.Errorf("health check: %w", err)
			}
			fmt.Printf("%s: %s\n", service, resp.GetStatus())
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:50051", "gRPC address")
	cmd.Flags().StringVar(&service, "service", "sync-service", "service name to check")
	return cmd
}

func newSyncCmd(c *client) *cobra.Command {
	var videos int
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Post a sample batch, then read today's stats back",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := sampleBatch(c.device, time.Now(), videos)
			body, err := c.do(cmd.Context(), http.MethodPost, "/sync", req)
			if err != nil {
				return err
			}
			fmt.Printf("POST /sync\n%s\n\n", body)

			path := "/sync/stats/" + time.Now().UTC().Format(time.DateOnly)
			body, err = c.do(cmd.Context(), http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			fmt.Printf("GET %s\n%s\n", path, body)
			return nil
		},
	}
	cmd.Flags().IntVar(&videos, "videos", 3, "number of video sessions in the batch")
	return cmd
}

func newDayCmd(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "day <YYYY-MM-DD>",
		Short: "Show the synced daily stats for a date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := c.do(cmd.Context(), http.MethodGet, "/sync/stats/"+args[0], nil)
			if err != nil {
				return err
			}
			fmt.Println(string(body))
			return nil
		},
	}
}

func newGetCmd(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "GET any endpoint, e.g. /stats/weekly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := c.do(cmd.Context(), http.MethodGet, args[0], nil)
			if err != nil {
				return err
			}
			fmt.Println(string(body))
			return nil
		},
	}
}

func (c *client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimSuffix(c.baseURL, "/")+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else {
		req.Header.Set(auth.HeaderUserID, c.device)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, raw)
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		return pretty.Bytes(), nil
	}
	return raw, nil
}

// sampleBatch builds a plausible batch touching every entity type.
func sampleBatch(device string, now time.Time, videos int) *ingest.SyncRequest {
	ms := now.UnixMilli()
	today := now.UTC().Format(time.DateOnly)
	browserID := uuid.NewString()
	channel := "Go"
	intention := "learn"
	satisfaction := 4

	data := ingest.SyncData{
		BrowserSessions: []ingest.BrowserSessionCreate{{ID: browserID, StartedAt: ms - 30*60*1000}},
		DailyStats: map[string]ingest.DailyStatsCreate{
			today: {Date: today, TotalSeconds: videos * 300, VideoCount: videos},
		},
		ScrollEvents: []ingest.ScrollEventCreate{
			{SessionID: browserID, Timestamp: ms, ScrollY: 1200, ScrollDirection: "down"},
		},
		InterventionEvents: []ingest.InterventionEventCreate{
			{SessionID: browserID, InterventionType: "delay", TriggeredAt: ms},
		},
		MoodReports: []ingest.MoodReportCreate{
			{SessionID: browserID, Timestamp: ms - 20*60*1000, ReportType: "pre", Mood: 3, Intention: &intention},
			{SessionID: browserID, Timestamp: ms, ReportType: "post", Mood: 4, Satisfaction: &satisfaction},
		},
		ProductiveURLs: []ingest.ProductiveURLCreate{
			{ID: "go-dev", URL: "https://go.dev", Title: "The Go Programming Language", AddedAt: ms},
		},
	}
	for i := range videos {
		data.VideoSessions = append(data.VideoSessions, ingest.VideoSessionCreate{
			ID:             uuid.NewString(),
			VideoID:        fmt.Sprintf("video%03d", i),
			Channel:        &channel,
			WatchedSeconds: 300,
			Timestamp:      ms - int64(i)*60*1000,
		})
	}
	return &ingest.SyncRequest{UserID: device, LastSyncTime: ms, Data: data}
}
