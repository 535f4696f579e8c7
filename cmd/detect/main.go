// Command detect uploads a local image to the detection backend and prints
// the recognised plates.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"lprview/internal/client"
	"lprview/internal/config"
	"lprview/pkg/logger"
	"lprview/pkg/utils"
)

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

// run returns the process exit code so deferred cleanup happens before exit.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) != 2 {
		fmt.Fprintf(stderr, "usage: %s <image>\n", args[0])
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, "Failed to load config:", err)
		return 1
	}

	log, err := logger.New(cfg.Server.Mode)
	if err != nil {
		fmt.Fprintln(stderr, "Failed to initialize logger:", err)
		return 1
	}
	defer log.Sync()

	img, err := utils.ReadImageFile(args[1])
	if err != nil {
		fmt.Fprintln(stderr, "Failed to read image:", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := client.New(cfg.Backend, log).Detect(ctx, img)
	if err != nil {
		fmt.Fprintln(stderr, "Upload failed:", err)
		return 1
	}

	fmt.Fprintf(stdout, "Detections for %s:\n", img.Filename)
	for _, r := range results {
		fmt.Fprintf(stdout, "Plate: %s\nColour: %s\nType: %s\nConfidence: %v\n---\n", r.Text, r.Colour, r.VehicleType, r.Confidence)
	}
	return 0
}
