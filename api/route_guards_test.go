package api

import (
	"bufio"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

var publicAuthRoutes = map[string]bool{
	"/register":               true,
	"/login":                  true,
	"/forgot-password":        true,
	"/refresh-token":          true,
	"/reset-password/{token}": true,
}

func TestRoutegroupsRequireSessionGuards(t *testing.T) {
	root := projectRoot(t)
	dir := filepath.Join(root, "api", "routegroups")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read routegroups dir: %v", err)
	}
	found := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".go") || strings.HasSuffix(entry.Name(), "_test.go") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		lines := readLines(t, path)
		for i, line := range lines {
			if !strings.Contains(line, ".MethodFunc(") {
				continue
			}
			found++
			if strings.Contains(line, "g.SessionPerm(") || strings.Contains(line, "g.Session(") {
				continue
			}
			if entry.Name() == "auth.go" && (strings.Contains(line, "g.Limited(") || strings.Contains(line, "g.Public(")) {
				if publicAuthRoutes[routePath(line)] {
					continue
				}
			}
			t.Fatalf("unguarded routegroup handler in %s:%d -> %s", path, i+1, strings.TrimSpace(line))
		}
	}
	if found == 0 {
		t.Fatalf("no routegroup handlers found in %s", dir)
	}
}

func TestAdminRoutegroupsRequirePermission(t *testing.T) {
	root := projectRoot(t)
	path := filepath.Join(root, "api", "routegroups", "admin.go")
	for i, line := range readLines(t, path) {
		if !strings.Contains(line, ".MethodFunc(") {
			continue
		}
		if !strings.Contains(line, "g.SessionPerm(rbac.") {
			t.Fatalf("admin route without explicit permission in %s:%d -> %s", path, i+1, strings.TrimSpace(line))
		}
	}
}

func TestEvidenceUploadIsRateLimited(t *testing.T) {
	root := projectRoot(t)
	path := filepath.Join(root, "api", "routegroups", "uploads.go")
	for _, line := range readLines(t, path) {
		if strings.Contains(line, `"POST", "/evidence"`) {
			if !strings.Contains(line, "g.UploadLimit(") {
				t.Fatalf("evidence upload route is not rate limited: %s", strings.TrimSpace(line))
			}
			return
		}
	}
	t.Fatalf("evidence upload route not found in %s", path)
}

// routePath extracts the second string literal of a MethodFunc call.
func routePath(line string) string {
	parts := strings.Split(line, `"`)
	if len(parts) < 4 {
		return ""
	}
	return parts[3]
}

func projectRoot(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("runtime caller unavailable")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(thisFile), ".."))
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan %s: %v", path, err)
	}
	return lines
}
