package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/ld-agent/ld-agent-go/pkg/linker"
)

// Scratch harness for poking at a plugin root without the CLI:
//
//	go run . [plugins-dir] [qualified-name] [json-args]
func main() {
	ctx := context.Background()

	opts := linker.DefaultOptions()
	if len(os.Args) > 1 {
		opts.PluginsDir = os.Args[1]
	}

	lk, err := linker.Link(ctx, opts)
	if err != nil {
		logrus.WithError(err).Fatal("failed to link plugin root")
	}
	defer lk.Close()

	loaded, warned, failed := lk.Session().Counts()
	logrus.WithFields(logrus.Fields{
		"root":   lk.Root(),
		"loaded": loaded,
		"warned": warned,
		"failed": failed,
	}).Info("link pass complete")

	for desc := range lk.Registry().Symbols() {
		fmt.Printf("%-32s %-10s %s\n", desc.QualifiedName, desc.Category, desc.Description)
	}

	if len(os.Args) > 3 {
		out, err := lk.Invoke(ctx, os.Args[2], []byte(os.Args[3]))
		if err != nil {
			logrus.WithError(err).Fatal("invocation failed")
		}
		fmt.Println(string(out))
	}
}
