package file

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/user/fetch-pipeline/internal/entity"
	"github.com/user/fetch-pipeline/internal/repository"
)

// TargetFileImpl reads "key<whitespace>url" lines from a file, or from
// stdin when the path is "-". Blank lines and lines starting with # are
// skipped. The file is a single batch, so batchID is ignored.
type TargetFileImpl struct {
	path  string
	stdin io.Reader
}

func NewTargetFile(path string) *TargetFileImpl {
	return &TargetFileImpl{path: path, stdin: os.Stdin}
}

func (r *TargetFileImpl) Targets(ctx context.Context, batchID string, mode repository.TargetMode) ([]entity.Job, error) {
	if mode != repository.TargetsAll {
		return nil, fmt.Errorf("%w: file source supports only %q", repository.ErrModeUnsupported, repository.TargetsAll)
	}
	if r.path == "-" {
		return ReadTargets(r.stdin)
	}
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("open targets file: %w", err)
	}
	defer f.Close()
	return ReadTargets(f)
}

// ReadTargets parses the line format.
func ReadTargets(rd io.Reader) ([]entity.Job, error) {
	var jobs []entity.Job
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		parts := strings.Fields(text)
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: line %d: want \"key url\", got %d columns", repository.ErrInvalidTargetRow, line, len(parts))
		}
		jobs = append(jobs, entity.Job{Key: parts[0], URL: parts[1]})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}
