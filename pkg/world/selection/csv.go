package selection

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/OCharnyshevich/world-pruner/pkg/world/coord"
)

const invertedHeader = "inverted"

// ParseError reports a malformed whitelist line.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// LoadCSV reads a selection from the CSV file at path.
func LoadCSV(path string) (*Selection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open whitelist: %w", err)
	}
	defer f.Close()

	sel, err := ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("parse whitelist %s: %w", path, err)
	}
	return sel, nil
}

// ParseCSV reads a selection in the whitelist format: an optional first line
// "inverted", then one "regionX;regionZ" or "regionX;regionZ;chunkX;chunkZ"
// entry per line. Entries list exceptions, so under "inverted" they name the
// chunks that are not selected.
func ParseCSV(r io.Reader) (*Selection, error) {
	sel := New()
	sc := bufio.NewScanner(r)
	num := 0
	for sc.Scan() {
		num++
		line := strings.TrimSpace(sc.Text())
		if num == 1 && line == invertedHeader {
			sel.inverted = true
			continue
		}
		if line == "" {
			continue
		}

		fields := strings.Split(line, ";")
		if len(fields) != 2 && len(fields) != 4 {
			return nil, &ParseError{Line: num, Msg: "invalid region or chunk coordinate format"}
		}

		region, ok := parsePoint(fields[0], fields[1])
		if !ok {
			return nil, &ParseError{Line: num, Msg: "failed to read region coordinates"}
		}
		if len(fields) == 2 {
			sel.regions[region.Key()] = nil
			continue
		}

		chunk, ok := parsePoint(fields[2], fields[3])
		if !ok {
			return nil, &ParseError{Line: num, Msg: "failed to read chunk coordinates"}
		}
		if chunk.ChunkToRegion() != region {
			return nil, &ParseError{Line: num, Msg: fmt.Sprintf("chunk %s is not in region %s", chunk, region)}
		}
		sel.addException(region.Key(), chunk.RelativeIndex())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read line %d: %w", num+1, err)
	}
	return sel, nil
}

func (s *Selection) addException(region int64, idx int) {
	chunks, ok := s.regions[region]
	switch {
	case !ok:
		s.regions[region] = NewChunkSet(idx)
	case chunks != nil:
		chunks.Set(idx)
		s.normalize(region, chunks)
	}
}

func parsePoint(xs, zs string) (coord.Point, bool) {
	x, err := strconv.ParseInt(strings.TrimSpace(xs), 10, 32)
	if err != nil {
		return coord.Point{}, false
	}
	z, err := strconv.ParseInt(strings.TrimSpace(zs), 10, 32)
	if err != nil {
		return coord.Point{}, false
	}
	return coord.Point{X: int32(x), Z: int32(z)}, true
}

// WriteCSV writes s in the format read by ParseCSV, regions in key order.
func (s *Selection) WriteCSV(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if s.inverted {
		bw.WriteString(invertedHeader + "\n")
	}
	for _, key := range s.Regions() {
		region := coord.FromKey(key)
		chunks := s.regions[key]
		if chunks == nil {
			fmt.Fprintf(bw, "%d;%d\n", region.X, region.Z)
			continue
		}
		for idx := range chunks.All() {
			chunk := coord.FromRelativeIndex(region, idx)
			fmt.Fprintf(bw, "%d;%d;%d;%d\n", region.X, region.Z, chunk.X, chunk.Z)
		}
	}
	return bw.Flush()
}

func (s *Selection) String() string {
	var sb strings.Builder
	_ = s.WriteCSV(&sb)
	return sb.String()
}
