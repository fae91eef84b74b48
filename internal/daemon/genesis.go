package daemon

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ric-network/catalogdao/internal/app/ledger"
	"github.com/ric-network/catalogdao/internal/domain"
)

// GenesisFile is the YAML genesis document:
//
//	admin: alice
//	ranks:
//	  bob: 3
//	balances:
//	  alice: 1000
//	  bob: 500
type GenesisFile struct {
	Admin    string            `yaml:"admin,omitempty"`
	Ranks    map[string]uint64 `yaml:"ranks,omitempty"`
	Balances map[string]uint64 `yaml:"balances,omitempty"`
}

// LoadGenesis reads a genesis file. An empty path yields an empty genesis.
func LoadGenesis(path string) (GenesisFile, error) {
	var g GenesisFile
	if path == "" {
		return g, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return g, fmt.Errorf("open genesis: %w", err)
	}
	defer f.Close()
	return DecodeGenesis(f)
}

// DecodeGenesis parses a genesis document.
func DecodeGenesis(r io.Reader) (GenesisFile, error) {
	var g GenesisFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&g); err != nil && err != io.EOF {
		return g, fmt.Errorf("decode genesis: %w", err)
	}
	for acct := range g.Ranks {
		if acct == "" {
			return g, fmt.Errorf("genesis rank for empty account: %w", domain.ErrInvalidArgument)
		}
	}
	for acct := range g.Balances {
		if acct == "" {
			return g, fmt.Errorf("genesis balance for empty account: %w", domain.ErrInvalidArgument)
		}
	}
	return g, nil
}

// WriteGenesis encodes g as YAML.
func WriteGenesis(w io.Writer, g GenesisFile) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(g); err != nil {
		return err
	}
	return enc.Close()
}

// Ledger converts the file to the service genesis.
func (g GenesisFile) Ledger() ledger.Genesis {
	out := ledger.Genesis{
		Ranks:    make(map[domain.Account]uint64, len(g.Ranks)),
		Balances: make(map[domain.Account]uint64, len(g.Balances)),
	}
	for a, r := range g.Ranks {
		out.Ranks[domain.Account(a)] = r
	}
	for a, b := range g.Balances {
		out.Balances[domain.Account(a)] = b
	}
	return out
}
