package main

import (
	"flag"
	"log"

	"github.com/danmuck/punchctl/internal/config"
)

func defaultPath(kind string) string {
	switch kind {
	case "server":
		return "cmd/p2pd/config.toml"
	case "client":
		return "cmd/p2pc/config.toml"
	default:
		log.Fatalf("unknown kind: %s", kind)
	}
	return ""
}

func main() {
	kind := flag.String("kind", "server", "config kind: server|client")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath(*kind)
		}

		switch *kind {
		case "server":
			if _, err := config.LoadServerConfig(path); err != nil {
				log.Fatal(err)
			}
		case "client":
			if _, err := config.LoadClientConfig(path); err != nil {
				log.Fatal(err)
			}
		default:
			log.Fatalf("unknown kind: %s", *kind)
		}
		log.Printf("Validated %s config at %s", *kind, path)
		return
	}

	target := *output
	if target == "" {
		target = defaultPath(*kind)
	}

	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}
