package fusion

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/inodb/vibe-prs/internal/vcf"
)

// UsedVariants is the set of variant IDs the scoring engine actually used.
type UsedVariants map[string]struct{}

// NewUsedVariants builds a set from raw identifiers.
func NewUsedVariants(ids ...string) UsedVariants {
	u := make(UsedVariants, len(ids))
	for _, id := range ids {
		if id = vcf.NormalizeID(id); id != "" {
			u[id] = struct{}{}
		}
	}
	return u
}

// Contains reports exact membership of a normalized ID.
func (u UsedVariants) Contains(id string) bool {
	_, ok := u[id]
	return ok
}

// LoadUsedVariants reads a plink2 .sscore.vars file (one ID per line).
func LoadUsedVariants(path string) (UsedVariants, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open used variants: %w", err)
	}
	defer f.Close()

	used := make(UsedVariants)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		id := vcf.NormalizeID(strings.TrimSpace(scanner.Text()))
		if id == "" {
			continue
		}
		used[id] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read used variants: %w", err)
	}
	return used, nil
}
