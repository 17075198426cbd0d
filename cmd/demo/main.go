package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ChuLiYu/cookbot/internal/controller"
	"github.com/ChuLiYu/cookbot/internal/projection"
	"github.com/ChuLiYu/cookbot/internal/snapshot"
	"github.com/ChuLiYu/cookbot/internal/storage/wal"
	"github.com/ChuLiYu/cookbot/pkg/types"
)

type Config struct {
	Kitchen struct {
		CookSeconds  int           `yaml:"cook_seconds"`
		TickInterval time.Duration `yaml:"tick_interval"`
	} `yaml:"kitchen"`
	Journal struct {
		Path       string `yaml:"path"`
		BufferSize int    `yaml:"buffer_size"`
	} `yaml:"journal"`
	Export struct {
		Path     string        `yaml:"path"`
		Interval time.Duration `yaml:"interval"`
	} `yaml:"export"`
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run cmd/demo/main.go <start|audit>")
		os.Exit(1)
	}

	mode := os.Args[1]
	cfg, err := loadConfig("configs/default.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	switch mode {
	case "start":
		start(cfg)
	case "audit":
		audit(cfg)
	default:
		log.Fatalf("unknown mode %q", mode)
	}
}

// start runs a busy kitchen until Ctrl+C. Stopping writes the final export
// and archives the journal for audit.
func start(cfg *Config) {
	ctrl, err := controller.NewController(controller.Config{
		CookSeconds:       cfg.Kitchen.CookSeconds,
		TickInterval:      cfg.Kitchen.TickInterval,
		JournalPath:       cfg.Journal.Path,
		JournalBufferSize: cfg.Journal.BufferSize,
		ExportPath:        cfg.Export.Path,
		ExportInterval:    cfg.Export.Interval,
	})
	if err != nil {
		log.Fatalf("Failed to create controller: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Kitchen.TickInterval)
	defer ticker.Stop()

	if err := ctrl.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start controller: %v", err)
	}
	fmt.Printf("✓ Kitchen started (instance %s)\n", ctrl.InstanceID())

	ctrl.AddBot()
	ctrl.AddBot()
	fmt.Println("✓ Added 2 bots, submitting an order every tick (every 4th is vip)")
	fmt.Println("💡 Press Ctrl+C to stop, then run 'go run cmd/demo/main.go audit'")

	for n := 1; ; n++ {
		select {
		case <-sigChan:
			fmt.Println("\n\nReceived shutdown signal, stopping gracefully...")
			ctrl.Stop()
			fmt.Println("✓ Kitchen stopped")
			return
		case <-ticker.C:
			orderType := types.OrderNormal
			if n%4 == 0 {
				orderType = types.OrderVIP
			}
			if _, err := ctrl.AddOrder(orderType); err != nil {
				log.Fatalf("Failed to add order: %v", err)
			}
			if n%10 == 0 {
				ctrl.AddBot()
			}
			st := ctrl.GetStatus().Stats
			fmt.Printf("📊 Pending=%d (vip %d), Cooking=%d, Completed=%d, Bots=%d\n",
				st.Pending, st.PendingVIP, st.Cooking, st.Completed, st.Bots)
		}
	}
}

// audit rebuilds the kitchen from the journal archives alone and compares it
// with the last export.
func audit(cfg *Config) {
	archives, err := wal.Archives(cfg.Journal.Path)
	if err != nil {
		log.Fatalf("Failed to list journals: %v", err)
	}
	if len(archives) == 0 {
		log.Fatalf("No journal archives next to %s; run 'start' first", cfg.Journal.Path)
	}

	res, err := controller.Replay(types.ExportData{CookSeconds: cfg.Kitchen.CookSeconds}, archives...)
	if err != nil {
		log.Fatalf("Replay failed: %v", err)
	}
	fmt.Printf("✓ Replayed %d events from %d journals (last seq %d)\n", res.Applied, res.Journals, res.LastSeq)

	exported, err := snapshot.NewManager(cfg.Export.Path).Load()
	if err != nil {
		log.Fatalf("Failed to load export: %v", err)
	}

	rebuilt := projection.Render(projection.Project(res.State))
	fmt.Print(rebuilt)
	if exported.LastSeq == res.LastSeq && projection.Render(projection.Project(exported.State)) == rebuilt {
		fmt.Println("\n✓ Journal and export agree")
		return
	}
	fmt.Printf("\n⚠️  Export (seq %d) differs from the journal (seq %d)\n", exported.LastSeq, res.LastSeq)
	os.Exit(1)
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.Kitchen.TickInterval <= 0 {
		cfg.Kitchen.TickInterval = time.Second
	}
	return &cfg, nil
}
