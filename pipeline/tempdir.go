package pipeline

import (
	"os"
	"path/filepath"

	"github.com/hashicorp/go-safetemp"

	"github.com/abrt/retrace-worker/internal/rerrors"
)

// scopedTempDir creates a temporary directory under the system temp
// root, scoped to a single image-build call and released on every exit
// path via the returned cleanup func (spec §3 Lifecycles: "Temporary
// build directories are scoped to the image build call").
func scopedTempDir(prefix string) (dir string, cleanup func(), err error) {
	root, closer, err := safetemp.Dir("", prefix)
	if err != nil {
		return "", nil, rerrors.WithStackTrace(err)
	}

	if err := os.Mkdir(root, 0o700); err != nil {
		closer.Close()
		return "", nil, rerrors.WithStackTrace(err)
	}

	return root, func() {
		closer.Close()
		os.RemoveAll(root)
	}, nil
}

func mustAbs(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}

	return abs
}
