// canvasctl is a terminal client for a canvasd server. It loads a canvas
// into a local working copy, can run auto-layout against it, and can sit
// in a collaboration room printing what the peers do.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prodspace/canvaskit/internal/collab"
	"github.com/prodspace/canvaskit/internal/engine"
	"github.com/prodspace/canvaskit/internal/layout"
)

func main() {
	baseURL := flag.String("base-url", envOrDefault("CANVASKIT_BASE_URL", "http://127.0.0.1:8080"), "canvasd base URL")
	token := flag.String("token", strings.TrimSpace(os.Getenv("CANVASKIT_TOKEN")), "bearer token")
	canvasID := flag.Int64("canvas", 0, "canvas ID (required for show, layout and watch)")
	direction := flag.String("direction", "TB", "layout direction: TB, BT, LR or RL")
	actor := flag.String("actor", strings.TrimSpace(os.Getenv("CANVASKIT_ACTOR")), "collaboration actor name")
	timeout := flag.Duration("timeout", durationEnv("CANVASKIT_TIMEOUT", 15*time.Second), "per-request timeout")
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		command = "list"
	}
	if strings.TrimSpace(*token) == "" {
		log.Fatalf("token is required (--token or CANVASKIT_TOKEN)")
	}
	if command != "list" && *canvasID <= 0 {
		log.Fatalf("--canvas is required for %s", command)
	}

	client := engine.NewHTTPClient(*baseURL, *token, &http.Client{Timeout: *timeout})
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch command {
	case "list":
		err = runList(rootCtx, client)
	case "show":
		err = runShow(rootCtx, client, *canvasID)
	case "layout":
		err = runLayout(rootCtx, client, *canvasID, *direction)
	case "watch":
		err = runWatch(rootCtx, client, *baseURL, *token, *actor, *canvasID)
	default:
		log.Fatalf("unknown command %q (expected list, show, layout or watch)", command)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", command, err)
	}
}

func runList(ctx context.Context, client engine.RemoteClient) error {
	canvases, err := client.ListCanvases(ctx)
	if err != nil {
		return err
	}
	if len(canvases) == 0 {
		fmt.Println("no canvases")
		return nil
	}
	for _, canvas := range canvases {
		fmt.Printf("%6d  %-30s  zoom=%.2f  updated=%s\n",
			canvas.ID, canvas.Name, canvas.ZoomLevel, canvas.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}

func runShow(ctx context.Context, client engine.RemoteClient, canvasID int64) error {
	eng, err := engine.New(engine.Options{Client: client, Logger: log.Default()})
	if err != nil {
		return err
	}
	defer eng.Close()
	if err := eng.Load(ctx, canvasID); err != nil {
		return err
	}
	canvas := eng.Canvas()
	fmt.Printf("canvas %d: %s\n", canvas.ID, canvas.Name)
	for _, node := range eng.Nodes() {
		locked := ""
		if node.IsLocked {
			locked = " [locked]"
		}
		fmt.Printf("  node %6d  %-12s  (%.0f,%.0f)  %s%s\n",
			node.ID, node.Type, node.X, node.Y, node.Name, locked)
	}
	for _, conn := range eng.Connections() {
		fmt.Printf("  conn %6d  %d -> %d\n", conn.ID, conn.SourceNodeID, conn.TargetNodeID)
	}
	return nil
}

func runLayout(ctx context.Context, client engine.RemoteClient, canvasID int64, direction string) error {
	dir, err := parseDirection(direction)
	if err != nil {
		return err
	}
	eng, err := engine.New(engine.Options{Client: client, Logger: log.Default()})
	if err != nil {
		return err
	}
	defer eng.Close()
	if err := eng.Load(ctx, canvasID); err != nil {
		return err
	}
	if err := eng.AutoLayout(layout.Options{Direction: dir}); err != nil {
		return err
	}
	if err := eng.Save(ctx); err != nil {
		return err
	}
	fmt.Printf("canvas %d laid out %s (%d nodes)\n", canvasID, direction, len(eng.Nodes()))
	return nil
}

func runWatch(ctx context.Context, client engine.RemoteClient, baseURL, token, actor string, canvasID int64) error {
	session := collab.NewWSSession(collab.WSSessionOptions{
		BaseURL: baseURL,
		Token:   token,
		Actor:   actor,
	})
	eng, err := engine.New(engine.Options{
		Client:  client,
		Logger:  log.Default(),
		Session: session,
	})
	if err != nil {
		return err
	}
	defer eng.Close()
	if err := eng.Load(ctx, canvasID); err != nil {
		return err
	}
	log.Printf("watching canvas %d, ctrl-c to stop", canvasID)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	var lastPeers string
	for {
		select {
		case <-ctx.Done():
			log.Printf("watch stopping: %v", ctx.Err())
			return nil
		case err := <-eng.Errors():
			log.Printf("engine error: %v", err)
		case <-ticker.C:
			peers := eng.Peers()
			names := make([]string, 0, len(peers))
			for _, peer := range peers {
				names = append(names, peer.Actor)
			}
			current := strings.Join(names, ", ")
			if current != lastPeers {
				lastPeers = current
				if current == "" {
					log.Printf("room empty")
				} else {
					log.Printf("peers: %s", current)
				}
			}
		}
	}
}

func parseDirection(raw string) (layout.Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "TB":
		return layout.TopToBottom, nil
	case "BT":
		return layout.BottomToTop, nil
	case "LR":
		return layout.LeftToRight, nil
	case "RL":
		return layout.RightToLeft, nil
	default:
		return layout.TopToBottom, fmt.Errorf("unknown layout direction %q", raw)
	}
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %s", name, raw, fallback.String())
		return fallback
	}
	return value
}
