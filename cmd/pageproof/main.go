package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/pageproof-go/pkg/client"
	"github.com/Layr-Labs/pageproof-go/pkg/config"
	"github.com/Layr-Labs/pageproof-go/pkg/logger"
	"github.com/Layr-Labs/pageproof-go/pkg/merkle"
	"github.com/Layr-Labs/pageproof-go/pkg/types"
)

func main() {
	app := &cli.App{
		Name:  "pageproof",
		Usage: "Client for the pageproof server",
		Description: `Uploads documents to a pageproof server, fetches page inclusion proofs and
verifies them, either through the server or entirely offline.

A proof saved with "proof --output" can be checked later by anyone holding the
published root with "verify-local", without contacting the server.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				Aliases: []string{"s"},
				Usage:   "Pageproof server URL",
				Value:   config.DefaultServerURL,
				EnvVars: []string{config.EnvPageproofServerURL},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvPageproofVerbose},
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "upload",
				Usage:     "Upload a document and print its merkle root",
				ArgsUsage: "<file>",
				Action:    uploadCommand,
			},
			{
				Name:  "proof",
				Usage: "Fetch the inclusion proof of a page",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "document-id",
						Aliases:  []string{"id"},
						Usage:    "Document ID returned by upload",
						Required: true,
					},
					&cli.IntFlag{
						Name:     "page",
						Usage:    "Page index, starting at 0",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "output",
						Usage: "Write the proof JSON to this file instead of stdout",
					},
				},
				Action: proofCommand,
			},
			{
				Name:      "verify",
				Usage:     "Verify a saved proof through the server",
				ArgsUsage: "<proof.json>",
				Action:    verifyCommand,
			},
			{
				Name:      "verify-local",
				Usage:     "Verify a saved proof offline",
				ArgsUsage: "<proof.json>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "root-hash",
						Usage: "Trusted root to check against, overriding the root stored in the proof file",
					},
				},
				Action: verifyLocalCommand,
			},
			{
				Name:      "root",
				Usage:     "Compute a document's merkle root locally",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "hash-algorithm",
						Usage: fmt.Sprintf("Hash algorithm: %s", merkle.SupportedHashAlgorithmsString()),
						Value: merkle.DefaultHashAlgorithm.String(),
					},
					&cli.BoolFlag{
						Name:  "leaves",
						Usage: "Print every page's leaf hash",
						Value: true,
					},
				},
				Action: rootCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// createClient creates a pageproof client from CLI context
func createClient(c *cli.Context) (*client.Client, error) {
	cfg := &config.ClientConfig{ServerURL: c.String("server-url")}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return client.NewClient(&client.ClientConfig{
		ServerURL: cfg.ServerURL,
		Logger:    l,
	})
}

func requireArg(c *cli.Context, name string) (string, error) {
	if c.NArg() != 1 {
		return "", cli.Exit(fmt.Sprintf("expected exactly one argument: %s", name), 1)
	}
	return c.Args().First(), nil
}

func uploadCommand(c *cli.Context) error {
	path, err := requireArg(c, "<file>")
	if err != nil {
		return err
	}

	pc, err := createClient(c)
	if err != nil {
		return err
	}

	resp, err := pc.UploadFile(c.Context, path)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func proofCommand(c *cli.Context) error {
	pc, err := createClient(c)
	if err != nil {
		return err
	}

	resp, err := pc.GenerateProof(c.Context, c.String("document-id"), c.Int("page"))
	if err != nil {
		return err
	}

	output := c.String("output")
	if output == "" {
		return printJSON(resp)
	}

	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode proof: %w", err)
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("failed to write proof: %w", err)
	}
	fmt.Printf("Proof for page %d written to %s\n", resp.PageIndex, output)
	return nil
}

func verifyCommand(c *cli.Context) error {
	path, err := requireArg(c, "<proof.json>")
	if err != nil {
		return err
	}
	req, err := readVerifyRequest(path)
	if err != nil {
		return err
	}

	pc, err := createClient(c)
	if err != nil {
		return err
	}

	valid, err := pc.VerifyRemote(c.Context, req)
	if err != nil {
		return err
	}
	return reportVerification(valid)
}

func verifyLocalCommand(c *cli.Context) error {
	path, err := requireArg(c, "<proof.json>")
	if err != nil {
		return err
	}
	req, err := readVerifyRequest(path)
	if err != nil {
		return err
	}
	if root := c.String("root-hash"); root != "" {
		req.RootHash = root
	}

	valid, err := client.VerifyLocal(req)
	if err != nil {
		return err
	}
	return reportVerification(valid)
}

func rootCommand(c *cli.Context) error {
	path, err := requireArg(c, "<file>")
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}

	root, leaves, err := client.ComputeRoot(filepath.Base(path), data, merkle.HashAlgorithm(c.String("hash-algorithm")))
	if err != nil {
		return err
	}

	fmt.Printf("Root:  %s\n", root)
	fmt.Printf("Pages: %d\n", len(leaves))
	if c.Bool("leaves") {
		for i, leaf := range leaves {
			fmt.Printf("  [%d] %s\n", i, leaf)
		}
	}
	return nil
}

// readVerifyRequest loads a proof file written by "proof --output". A bare
// verify request body is accepted too.
func readVerifyRequest(path string) (*types.VerifyRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read proof file: %w", err)
	}
	var req types.VerifyRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse proof file: %w", err)
	}
	return &req, nil
}

func reportVerification(valid bool) error {
	if !valid {
		fmt.Println("INVALID: proof does not match the root")
		return cli.Exit("", 1)
	}
	fmt.Println("VALID: page is included under the root")
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
