package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/prodspace/canvaskit/internal/canvaskit"
	"github.com/prodspace/canvaskit/internal/collab"
	"github.com/prodspace/canvaskit/internal/httpapi"
	"github.com/prodspace/canvaskit/internal/rulesfile"
)

func main() {
	addr := os.Getenv("CANVASKIT_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	stateBackend, err := buildStateBackendFromEnv()
	if err != nil {
		log.Fatalf("failed to initialize state backend: %v", err)
	}

	rules, rulesPath, err := loadRulesFromEnv()
	if err != nil {
		log.Fatalf("failed to load rules file: %v", err)
	}

	store := canvaskit.NewStoreWithOptions(canvaskit.StoreOptions{
		Rules:        rules,
		StateBackend: stateBackend,
		Logger:       log.Default(),
	})
	defer store.Close()

	if rulesPath != "" {
		watcher := rulesfile.NewWatcher(rulesPath, store.SetRules, log.Default())
		go func() {
			if err := watcher.Watch(context.Background()); err != nil && err != context.Canceled {
				log.Printf("rules watcher stopped: %v", err)
			}
		}()
	}

	var hub *collab.Hub
	if boolEnv("CANVASKIT_COLLAB", true) {
		hub = collab.NewHub(collab.HubOptions{
			Logger:            log.Default(),
			ApplyPositions:    store.BatchUpdatePositions,
			SnapshotPositions: snapshotPositions(store),
		})
	}

	server := httpapi.NewServerWithConfig(store, hub, httpapi.ServerConfig{
		JWTSecret:       os.Getenv("CANVASKIT_JWT_SECRET"),
		RateLimitMax:    intEnv("CANVASKIT_RATE_LIMIT_MAX", 0),
		RateLimitWindow: durationEnv("CANVASKIT_RATE_LIMIT_WINDOW", time.Minute),
		MaxBodyBytes:    int64Env("CANVASKIT_MAX_BODY_BYTES", 0),
	})

	log.Printf("canvasd listening on %s", addr)
	if err := http.ListenAndServe(addr, server); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

// snapshotPositions feeds the join snapshot for collaboration rooms from
// the store's current node geometry.
func snapshotPositions(store *canvaskit.Store) func(int64) ([]canvaskit.NodePosition, error) {
	return func(canvasID int64) ([]canvaskit.NodePosition, error) {
		doc, err := store.GetCanvas(canvasID)
		if err != nil {
			return nil, err
		}
		positions := make([]canvaskit.NodePosition, 0, len(doc.Nodes))
		for _, node := range doc.Nodes {
			positions = append(positions, canvaskit.NodePosition{ID: node.ID, X: node.X, Y: node.Y})
		}
		return positions, nil
	}
}

func intEnv(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func int64Env(name string, fallback int64) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
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

func boolEnv(name string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %t", name, raw, fallback)
		return fallback
	}
	return value
}

func buildStateBackendFromEnv() (canvaskit.StateBackend, error) {
	profileDSN, err := storageProfileDefaultFromEnv()
	if err != nil {
		return nil, err
	}
	stateBackendDSN := strings.TrimSpace(os.Getenv("CANVASKIT_STATE_BACKEND_DSN"))
	stateFile := strings.TrimSpace(os.Getenv("CANVASKIT_STATE_FILE"))
	switch {
	case stateBackendDSN != "":
		return canvaskit.BuildStateBackendFromDSN(stateBackendDSN)
	case stateFile != "":
		return canvaskit.BuildStateBackendFromDSN(stateFile)
	case profileDSN != "":
		return canvaskit.BuildStateBackendFromDSN(profileDSN)
	default:
		return nil, nil
	}
}

func storageProfileDefaultFromEnv() (string, error) {
	profile := strings.ToLower(strings.TrimSpace(os.Getenv("CANVASKIT_BACKEND_PROFILE")))
	dataDir := strings.TrimSpace(os.Getenv("CANVASKIT_DATA_DIR"))
	if dataDir == "" {
		dataDir = ".canvaskit"
	}
	switch profile {
	case "", "custom":
		return "", nil
	case "memory", "inmemory":
		return "memory://", nil
	case "production", "prod":
		productionDSN := strings.TrimSpace(os.Getenv("CANVASKIT_PRODUCTION_DSN"))
		if productionDSN == "" {
			productionDSN = strings.TrimSpace(os.Getenv("CANVASKIT_POSTGRES_DSN"))
		}
		if productionDSN == "" {
			return "", fmt.Errorf("CANVASKIT_PRODUCTION_DSN or CANVASKIT_POSTGRES_DSN is required when CANVASKIT_BACKEND_PROFILE=%s", profile)
		}
		return productionDSN, nil
	case "durable-local", "local-durable":
		return "file://" + filepath.Join(dataDir, "state.json"), nil
	case "sqlite":
		return "sqlite://" + filepath.Join(dataDir, "canvaskit.db"), nil
	default:
		return "", fmt.Errorf("unsupported CANVASKIT_BACKEND_PROFILE: %s", profile)
	}
}

func loadRulesFromEnv() (canvaskit.Rules, string, error) {
	path := strings.TrimSpace(os.Getenv("CANVASKIT_RULES_FILE"))
	if path == "" {
		return nil, "", nil
	}
	rules, err := rulesfile.Load(path)
	if err != nil {
		return nil, "", err
	}
	return rules, path, nil
}
