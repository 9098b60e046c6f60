package admin

import (
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/merkledrop/distributor/pkg/merkle"
)

// TreeFile is the JSON document build-tree writes: the root the operator
// publishes with set-commitment, and per recipient the ceiling and proof
// each claimer submits.
type TreeFile struct {
	Root    string      `json:"root"`
	Entries []TreeEntry `json:"entries"`
}

type TreeEntry struct {
	Recipient string   `json:"recipient"`
	Ceiling   uint64   `json:"ceiling"`
	Proof     []string `json:"proof"`
}

// BuildTree reads a recipient,amount CSV, builds the commitment tree, and
// writes the root and per-recipient proofs to outPath as JSON. Row order
// fixes leaf order, so rebuilding from the same file reproduces the same
// root and proofs.
func BuildTree(log *slog.Logger, csvPath, outPath string) error {
	entries, err := readEntitlements(csvPath)
	if err != nil {
		return err
	}

	tree, err := merkle.NewTree(entries)
	if err != nil {
		return fmt.Errorf("failed to build tree: %w", err)
	}
	root := tree.Root()

	out := TreeFile{
		Root:    hex.EncodeToString(root[:]),
		Entries: make([]TreeEntry, len(entries)),
	}
	for i, entry := range entries {
		proof, err := tree.Proof(i)
		if err != nil {
			return fmt.Errorf("failed to build proof for %s: %w", entry.Recipient, err)
		}
		hexProof := make([]string, len(proof))
		for j, node := range proof {
			hexProof[j] = hex.EncodeToString(node[:])
		}
		out.Entries[i] = TreeEntry{
			Recipient: entry.Recipient.String(),
			Ceiling:   entry.Ceiling,
			Proof:     hexProof,
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal tree file: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outPath, err)
	}

	log.Info("commitment tree built",
		"entries", len(entries),
		"root", out.Root,
		"out", outPath,
	)
	return nil
}

// readEntitlements parses a recipient,amount CSV. A header row with
// "recipient" in the first column is skipped. Duplicate recipients are
// rejected: a recipient can hold only one claim record per distribution,
// so a second leaf for the same key could never be claimed.
func readEntitlements(path string) ([]merkle.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	entries := make([]merkle.Entry, 0, len(records))
	seen := make(map[solana.PublicKey]int)
	for i, record := range records {
		line := i + 1
		if i == 0 && len(record) > 0 && strings.EqualFold(strings.TrimSpace(record[0]), "recipient") {
			continue
		}
		if len(record) != 2 {
			return nil, fmt.Errorf("%s line %d: expected recipient,amount, got %d fields", path, line, len(record))
		}
		recipient, err := solana.PublicKeyFromBase58(strings.TrimSpace(record[0]))
		if err != nil {
			return nil, fmt.Errorf("%s line %d: invalid recipient: %w", path, line, err)
		}
		ceiling, err := strconv.ParseUint(strings.TrimSpace(record[1]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: invalid amount: %w", path, line, err)
		}
		if ceiling == 0 {
			return nil, fmt.Errorf("%s line %d: amount must be positive", path, line)
		}
		if prev, dup := seen[recipient]; dup {
			return nil, fmt.Errorf("%s line %d: recipient %s already listed at line %d", path, line, recipient, prev)
		}
		seen[recipient] = line
		entries = append(entries, merkle.Entry{Recipient: recipient, Ceiling: ceiling})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%s: no entitlements found", path)
	}
	return entries, nil
}
