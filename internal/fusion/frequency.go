package fusion

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/inodb/vibe-prs/internal/vcf"
)

// FrequencyTable maps normalized variant ID to the ALT_FREQS value as
// written by plink2.
type FrequencyTable map[string]string

// LoadFrequencies loads a plink2 .afreq file. The header must contain ID and
// ALT_FREQS columns; for repeated IDs the first row wins.
func LoadFrequencies(path string) (FrequencyTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frequency file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read frequency file: %w", err)
		}
		return nil, &ParseError{Path: path, Message: "empty file"}
	}

	idx := indexColumns(strings.Split(strings.TrimRight(scanner.Text(), "\r"), "\t"))
	idCol, ok := idx["ID"]
	if !ok {
		return nil, &ParseError{Path: path, Line: 1, Message: "missing 'ID' column"}
	}
	freqCol, ok := idx["ALT_FREQS"]
	if !ok {
		return nil, &ParseError{Path: path, Line: 1, Message: "missing 'ALT_FREQS' column"}
	}

	freqs := make(FrequencyTable)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		id := vcf.NormalizeID(cell(fields, idCol))
		if id == "" || id == vcf.MissingID {
			continue
		}
		if _, seen := freqs[id]; seen {
			continue
		}
		freqs[id] = cell(fields, freqCol)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read frequency file: %w", err)
	}

	return freqs, nil
}
