package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/netthinne/internal/testutil"
)

// sceneFixture is the ground truth written next to each generated scene.
type sceneFixture struct {
	Name    string         `json:"name"`
	Image   string         `json:"image"`
	Width   int            `json:"width"`
	Height  int            `json:"height"`
	Objects []objectRecord `json:"objects"`
}

type objectRecord struct {
	Caption string `json:"caption,omitempty"`
	X1      int    `json:"x1"`
	Y1      int    `json:"y1"`
	X2      int    `json:"x2"`
	Y2      int    `json:"y2"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var (
		outDir = flag.String("out", "", "output directory (default <project root>/testdata)")
		only   = flag.String("scene", "", "generate a single named scene")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Generate synthetic scenes and their ground truth for netthinne testing.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	dir := *outDir
	if dir == "" {
		root, err := testutil.GetProjectRoot()
		if err != nil {
			slog.Error("Failed to find project root", "error", err)
			os.Exit(1)
		}
		dir = filepath.Join(root, "testdata")
	}

	if err := generate(dir, *only); err != nil {
		slog.Error("Failed to generate test data", "error", err)
		os.Exit(1)
	}
	slog.Info("Test data generation completed", "dir", dir)
}

func generate(dir, only string) error {
	imagesDir := filepath.Join(dir, "images", "scenes")
	if err := testutil.EnsureDir(imagesDir); err != nil {
		return fmt.Errorf("failed to create images directory: %w", err)
	}

	scenes := testutil.Scenes()
	names := make([]string, 0, len(scenes))
	for name := range scenes {
		if only == "" || only == name {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return fmt.Errorf("unknown scene %q", only)
	}
	slices.Sort(names)

	fixtures := make([]sceneFixture, 0, len(names))
	for _, name := range names {
		cfg := scenes[name]
		path := filepath.Join(imagesDir, name+".png")
		if err := imaging.Save(testutil.GenerateScene(cfg), path); err != nil {
			return fmt.Errorf("failed to save scene %s: %w", name, err)
		}

		fx := sceneFixture{Name: name, Image: path, Width: cfg.Size.Width, Height: cfg.Size.Height}
		for _, o := range cfg.Objects {
			fx.Objects = append(fx.Objects, objectRecord{
				Caption: o.Caption,
				X1:      o.Rect.Min.X,
				Y1:      o.Rect.Min.Y,
				X2:      o.Rect.Max.X,
				Y2:      o.Rect.Max.Y,
			})
		}
		fixtures = append(fixtures, fx)
		slog.Info("Generated scene", "name", name, "objects", len(cfg.Objects))
	}

	data, err := json.MarshalIndent(fixtures, "", "  ")
	if err != nil {
		return err
	}
	fixturesDir := filepath.Join(dir, "fixtures")
	if err := testutil.EnsureDir(fixturesDir); err != nil {
		return fmt.Errorf("failed to create fixtures directory: %w", err)
	}
	return os.WriteFile(filepath.Join(fixturesDir, "scenes.json"), data, 0o600)
}
