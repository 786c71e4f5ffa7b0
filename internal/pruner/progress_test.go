package pruner

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogProgressSteps(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogProgress(slog.New(slog.NewTextHandler(&buf, nil)), 25)

	p.SetMinimum(0)
	p.SetMaximum(8)
	p.SetValue(0)
	p.SetIndeterminate(false)
	p.SetMessage("Compacting files in region")
	for i := 0; i < 8; i++ {
		p.Increment(1)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	// 12%, then every 25% step up to 100%
	assert.Len(t, lines, 5)
	assert.Contains(t, lines[0], "percent=12")
	assert.Contains(t, lines[len(lines)-1], "percent=100")
	assert.Equal(t, 100, p.Percent())

	p.Done()
	assert.Contains(t, buf.String(), "msg=done")
}

func TestLogProgressIndeterminate(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogProgress(slog.New(slog.NewTextHandler(&buf, nil)), 10)
	p.SetIndeterminate(true)
	p.SetMessage("Indexing files")
	p.Increment(1)

	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
	assert.Contains(t, buf.String(), `msg="Indexing files"`)
	assert.Zero(t, p.Percent())
}

func TestCLIErrorHandler(t *testing.T) {
	t.Run("continue", func(t *testing.T) {
		var buf bytes.Buffer
		h := NewCLIErrorHandler(slog.New(slog.NewTextHandler(&buf, nil)), true)
		assert.False(t, h.HandleError(errors.New("boom"), "failed to load region file", "file", "r.0.0.mca"))
		assert.False(t, h.Handle("failed to delete file"))
		assert.True(t, h.Successful())
		assert.Equal(t, 2, h.Count())
		assert.Contains(t, buf.String(), "level=WARN")
		assert.Contains(t, buf.String(), "error=boom")
		assert.Contains(t, buf.String(), "file=r.0.0.mca")
	})

	t.Run("abort", func(t *testing.T) {
		var buf bytes.Buffer
		h := NewCLIErrorHandler(slog.New(slog.NewTextHandler(&buf, nil)), false)
		assert.True(t, h.HandleError(errors.New("boom"), "failed to compact file"))
		assert.False(t, h.Successful())
		assert.Contains(t, buf.String(), "level=ERROR")
	})
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "compacting entities", PhaseCompactingEntities.String())
	assert.Equal(t, "phase(42)", Phase(42).String())
}
