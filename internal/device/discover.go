package device

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"storypack/internal/devicemeta"
)

// mountsPath is a variable so tests can point discovery at a fixture.
var mountsPath = "/proc/mounts"

var errMountNotFound = errors.New("device not mounted")

// pseudoFilesystems never hold a storyteller.
var pseudoFilesystems = map[string]bool{
	"proc": true, "sysfs": true, "devpts": true, "cgroup": true, "cgroup2": true,
	"securityfs": true, "debugfs": true, "tracefs": true, "mqueue": true,
	"pstore": true, "bpf": true, "configfs": true, "fusectl": true, "autofs": true,
}

// Mount is a storyteller found during discovery.
type Mount struct {
	Root   string
	Source string
	Family devicemeta.Family
}

type mountEntry struct {
	source string
	target string
	fstype string
}

// Find lists mounted storytellers followed by any extra roots that hold one.
// Each root is reported once.
func Find(extra ...string) ([]Mount, error) {
	entries, err := readMounts()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var found []Mount
	add := func(root, source string) {
		root = filepath.Clean(root)
		if seen[root] {
			return
		}
		family, ok := Detect(root)
		if !ok {
			return
		}
		seen[root] = true
		found = append(found, Mount{Root: root, Source: source, Family: family})
	}
	for _, e := range entries {
		if pseudoFilesystems[e.fstype] {
			continue
		}
		add(e.target, e.source)
	}
	for _, root := range extra {
		if strings.TrimSpace(root) != "" {
			add(root, "")
		}
	}
	return found, nil
}

// MountRoot returns where the block device node is mounted.
func MountRoot(node string) (string, error) {
	entries, err := readMounts()
	if err != nil {
		return "", err
	}
	requested, _ := filepath.EvalSymlinks(node)
	if requested == "" {
		requested = node
	}
	for _, e := range entries {
		canonical, _ := filepath.EvalSymlinks(e.source)
		if canonical == "" {
			canonical = e.source
		}
		if sameDevice(requested, canonical) {
			return e.target, nil
		}
	}
	return "", errMountNotFound
}

func readMounts() ([]mountEntry, error) {
	f, err := os.Open(mountsPath)
	if err != nil {
		return nil, fmt.Errorf("open mounts: %w", err)
	}
	defer f.Close()
	return parseMounts(f)
}

func parseMounts(r io.Reader) ([]mountEntry, error) {
	var entries []mountEntry
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		entries = append(entries, mountEntry{
			source: decodeMountField(fields[0]),
			target: decodeMountField(fields[1]),
			fstype: fields[2],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan mounts: %w", err)
	}
	return entries, nil
}

func decodeMountField(field string) string {
	replacer := strings.NewReplacer(
		"\\040", " ",
		"\\011", "\t",
		"\\012", "\n",
		"\\134", "\\",
	)
	return replacer.Replace(field)
}

func sameDevice(a, b string) bool {
	if a == b {
		return true
	}
	if strings.HasPrefix(a, "/dev/") && strings.HasPrefix(b, "/dev/") {
		return filepath.Base(a) == filepath.Base(b)
	}
	return false
}
