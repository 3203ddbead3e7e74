// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sigil-dev/lectern/internal/rag"
	"github.com/sigil-dev/lectern/internal/retrieval"
	"github.com/sigil-dev/lectern/internal/server"
	"github.com/sigil-dev/lectern/internal/store"
	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// generateSpec creates a server with all routes registered and extracts the
// OpenAPI document huma builds from the request and response types.
func generateSpec() ([]byte, error) {
	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	if err != nil {
		return nil, lecternerr.Errorf(lecternerr.CodeCLISetupFailure, "creating server: %w", err)
	}
	defer func() { _ = srv.Close() }()

	srv.RegisterServices(&server.Services{Pipeline: stubPipeline{}})
	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}

// stubPipeline satisfies server.Pipeline for schema discovery. Its methods
// are never called.
type stubPipeline struct{}

func (stubPipeline) Search(context.Context, rag.Question) (*retrieval.Retrieval, error) {
	return nil, nil
}

func (stubPipeline) Ask(context.Context, rag.Question) (*rag.Result, error) { return nil, nil }
func (stubPipeline) Store() store.VectorStore { return nil }
