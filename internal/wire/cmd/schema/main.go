package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"pubkey-quest/engine/internal/wire"
)

type document struct {
	name        string
	value       any
	title       string
	description string
}

var documents = []document{
	{"tick_request", wire.TickRequestV1{}, "Tick Request", "Client clock reading posted on every sync cycle."},
	{"tick_response", wire.TickResponseV1{}, "Tick Response", "Authoritative correction, partial save delta, and side-channel data."},
	{"combat_request", wire.CombatRequestV1{}, "Combat Request", "Session identity carried by every combat endpoint."},
	{"combat_action_request", wire.CombatActionRequestV1{}, "Combat Action Request", "Action turn resolution: attack, bonus attack, or flee."},
	{"combat_move_request", wire.CombatMoveRequestV1{}, "Combat Move Request", "Move turn resolution along the range track."},
	{"combat_response", wire.CombatResponseV1{}, "Combat Response", "Full combat state after a resolved input, or a rejection."},
	{"active_combat_response", wire.ActiveCombatResponseV1{}, "Active Combat Response", "Resume query answer; an empty phase means no session."},
}

func main() {
	var outDir string
	flag.StringVar(&outDir, "out", "", "directory to write the wire schemas")
	flag.Parse()

	if outDir == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create schema directory: %v\n", err)
		os.Exit(1)
	}

	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
	}
	for _, doc := range documents {
		schema := reflector.Reflect(doc.value)
		schema.Title = doc.title
		schema.Description = doc.description
		path := filepath.Join(outDir, doc.name+".schema.json")
		if err := writeSchema(path, schema); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", path, err)
			os.Exit(1)
		}
	}
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}
	return nil
}
