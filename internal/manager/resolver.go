package manager

import (
	"os"
	"path/filepath"
)

// projectMarkers are the files/directories whose presence identifies a
// project root, checked at each level while walking upward.
var projectMarkers = []string{
	".git", ".hg", ".svn",
	".ycm_extra_conf.py",
	"go.mod", "package.json", "setup.py", "pyproject.toml",
	"Cargo.toml", "CMakeLists.txt", "Makefile",
}

// PathResolver treats the view identity as a file path and resolves the
// project working directory by walking up from the file toward the
// filesystem root, looking for well-known project markers. When no marker is
// found it falls back to the file's own directory, reported as not
// project-backed.
type PathResolver struct{}

func (PathResolver) WorkDir(viewID string) (string, bool) {
	if viewID == "" {
		return "", false
	}
	abs, err := filepath.Abs(viewID)
	if err != nil {
		return "", false
	}

	start := abs
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		start = filepath.Dir(abs)
	}

	for dir := start; ; dir = filepath.Dir(dir) {
		for _, marker := range projectMarkers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir, true
			}
		}
		if parent := filepath.Dir(dir); parent == dir {
			break
		}
	}
	return start, false
}
