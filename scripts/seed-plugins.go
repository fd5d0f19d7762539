package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Seeds a demo plugin root so a fresh checkout has something to link:
//
//	go run ./scripts/seed-plugins.go [dir]
//
// Writes one single-file unit and one package unit, then prints the
// commands to try against them.
func main() {
	root := "plugins"
	if len(os.Args) > 1 {
		root = os.Args[1]
	}
	if err := runSeed(root); err != nil {
		fmt.Fprintf(os.Stderr, "Seeding failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Done. Try:")
	fmt.Printf("  ldagent list --plugins-dir %s\n", root)
	fmt.Printf("  ldagent call moon.phase --plugins-dir %s --args '{\"date\": \"2026-01-01\"}'\n", root)
	fmt.Printf("  ldagent docs --plugins-dir %s\n", root)
}

func runSeed(root string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create plugin root %s", root)
	}

	// Single-file unit
	moonPath := filepath.Join(root, "moon.sh")
	if err := os.WriteFile(moonPath, []byte(moonScript), 0o755); err != nil {
		return errors.Wrap(err, "failed to write moon.sh")
	}
	fmt.Printf("Wrote %s\n", moonPath)

	// Package unit: directory with a manifest, an entrypoint, and a README
	harborDir := filepath.Join(root, "harbor")
	if err := os.MkdirAll(harborDir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create harbor package")
	}
	if err := os.WriteFile(filepath.Join(harborDir, "plugin.yaml"), []byte("entrypoint: main\n"), 0o644); err != nil {
		return errors.Wrap(err, "failed to write harbor manifest")
	}
	if err := os.WriteFile(filepath.Join(harborDir, "main"), []byte(harborScript), 0o755); err != nil {
		return errors.Wrap(err, "failed to write harbor entrypoint")
	}
	if err := os.WriteFile(filepath.Join(harborDir, "README.md"), []byte(harborReadme), 0o644); err != nil {
		return errors.Wrap(err, "failed to write harbor README")
	}
	fmt.Printf("Wrote %s (package unit)\n", harborDir)

	return nil
}

const moonScript = `#!/bin/bash
case "$1" in
  describe)
    cat <<'PAYLOAD'
{
  "module_info": {
    "name": "moon-tools",
    "description": "Moon phase lookups",
    "author": "ldagent demo",
    "version": "0.1.0",
    "platform": "any",
    "runtime_requires": ">=0.0.1"
  },
  "module_exports": {
    "tools": [
      {
        "name": "phase",
        "description": "Report the moon phase for a date.",
        "parameters": [
          {"name": "date", "type": "string", "description": "ISO date", "required": true}
        ],
        "returns": "object"
      }
    ]
  },
  "doc": "Answers moon phase questions with canned data."
}
PAYLOAD
    ;;
  call)
    input=$(cat)
    echo "{\"phase\": \"waxing gibbous\", \"query\": $input}"
    ;;
  *)
    exit 64
    ;;
esac
`

const harborScript = `#!/bin/bash
case "$1" in
  describe)
    cat <<'PAYLOAD'
{
  "module_info": {
    "name": "harbor-tools",
    "description": "Harbor depth and berth helpers",
    "author": "ldagent demo",
    "version": "0.2.0",
    "platform": "any",
    "runtime_requires": ">=0.0.1",
    "dependencies": ["jq>=1.6"],
    "environment_variables": {
      "HARBOR_API_KEY": {"description": "Key for the harbor data service", "default": "", "required": true}
    }
  },
  "module_exports": {
    "tools": [
      {
        "name": "depth",
        "description": "Report the charted depth at a berth.",
        "parameters": [
          {"name": "berth", "type": "string", "description": "Berth identifier", "required": true}
        ],
        "returns": "object"
      }
    ],
    "init_function": "warm_cache"
  }
}
PAYLOAD
    ;;
  call)
    input=$(cat)
    if [ "$2" = "warm_cache" ]; then
      echo '{"warmed": true}'
    else
      echo "{\"depth_m\": 11.5, \"query\": $input}"
    fi
    ;;
  *)
    exit 64
    ;;
esac
`

const harborReadme = `---
maintainer: harbor-team
tags: [demo, harbor]
---

# Harbor tools

Depth and berth helpers used to demo package units. The charted
depths are static demo data.
`
