package restic

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// RequiredVersion is the oldest restic release pvtools supports;
// everything used here (stdin backups, json snapshot listing, dump) is
// stable from this release on.
const RequiredVersion = "0.16.0"

// BinaryInfo describes the restic binary found on PATH.
type BinaryInfo struct {
	Path    string
	Version string
}

var versionRe = regexp.MustCompile(`restic\s+([0-9]+\.[0-9]+\.[0-9]+(?:-[A-Za-z0-9.]+)?)`)

// Detect locates restic on PATH and queries its version. The version
// subprocess is bounded by a short timeout when the context has no
// deadline of its own.
func Detect(ctx context.Context) (BinaryInfo, error) {
	exe, err := exec.LookPath("restic")
	if err != nil {
		return BinaryInfo{}, fmt.Errorf("restic binary not found on PATH: %w", err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	out, err := exec.CommandContext(ctx, exe, "version").CombinedOutput()
	if err != nil {
		return BinaryInfo{}, fmt.Errorf("restic: version command failed: %w", err)
	}
	version, err := ExtractVersion(string(out))
	if err != nil {
		return BinaryInfo{}, err
	}
	return BinaryInfo{Path: exe, Version: version}, nil
}

// ExtractVersion pulls the semantic version out of `restic version`
// output.
func ExtractVersion(output string) (string, error) {
	if m := versionRe.FindStringSubmatch(output); len(m) == 2 {
		return m[1], nil
	}
	return "", fmt.Errorf("restic: could not parse version from %q", strings.TrimSpace(output))
}

// IsCompatible reports whether version satisfies RequiredVersion.
func IsCompatible(version string) bool {
	have, ok := parseVersion(version)
	if !ok {
		return false
	}
	want, _ := parseVersion(RequiredVersion)
	return compareVersions(have, want) >= 0
}

type semver struct {
	major, minor, patch int
	pre                 string
}

func parseVersion(s string) (semver, bool) {
	s = strings.TrimSpace(s)
	core, pre, _ := strings.Cut(s, "-")
	nums := strings.Split(core, ".")
	if len(nums) != 3 {
		return semver{}, false
	}
	var v semver
	var err error
	if v.major, err = strconv.Atoi(nums[0]); err != nil {
		return semver{}, false
	}
	if v.minor, err = strconv.Atoi(nums[1]); err != nil {
		return semver{}, false
	}
	if v.patch, err = strconv.Atoi(nums[2]); err != nil {
		return semver{}, false
	}
	v.pre = pre
	return v, true
}

func compareVersions(a, b semver) int {
	for _, d := range []int{a.major - b.major, a.minor - b.minor, a.patch - b.patch} {
		if d != 0 {
			if d > 0 {
				return 1
			}
			return -1
		}
	}
	// A pre-release sorts before its release.
	switch {
	case a.pre == b.pre:
		return 0
	case a.pre == "":
		return 1
	case b.pre == "":
		return -1
	default:
		return strings.Compare(a.pre, b.pre)
	}
}
