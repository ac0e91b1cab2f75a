package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/steplov/pvtools/src/config"
	"github.com/steplov/pvtools/src/repository"
	"github.com/steplov/pvtools/src/restic"
	"github.com/steplov/pvtools/src/safety"
)

type resticDetectorFunc func(context.Context) (restic.BinaryInfo, error)

var detectResticFn resticDetectorFunc = restic.Detect

// checkResticBinary locates restic and gates on the minimum supported
// version. Interactive callers may confirm past an old binary; batch
// callers fail outright.
func checkResticBinary(cmd *cobra.Command, interactive bool) (restic.BinaryInfo, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	info, err := detectResticFn(ctx)
	if err != nil {
		return restic.BinaryInfo{}, err
	}
	if restic.IsCompatible(info.Version) {
		return info, nil
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Warning: restic %s detected; pvtools requires %s or newer.\n", info.Version, restic.RequiredVersion)
	if !interactive {
		return restic.BinaryInfo{}, fmt.Errorf("restic %s is older than required %s", info.Version, restic.RequiredVersion)
	}

	opts := getSafetyOptions(cmd)
	if opts.Yes || opts.Force {
		return info, nil
	}
	ok, err := safety.Confirm(opts, cmd.InOrStdin(), cmd.OutOrStdout(), "Proceed with unsupported restic version?")
	if err != nil {
		return restic.BinaryInfo{}, err
	}
	if !ok {
		return restic.BinaryInfo{}, errors.New("aborted: restic version is below supported minimum")
	}
	return info, nil
}

// repoOpener adapts a resolved repository entry into the Archiver the
// orchestrators consume. The restic binary is detected lazily, so dry
// runs and config checks work on nodes without restic installed.
func repoOpener(cmd *cobra.Command, cfg *config.Config, progress io.Writer) func(string, config.Repository) (repository.Archiver, error) {
	return func(alias string, rc config.Repository) (repository.Archiver, error) {
		info, err := checkResticBinary(cmd, true)
		if err != nil {
			return nil, err
		}
		conn := restic.Conn{Bin: info, URL: rc.URL, PasswordFile: rc.PasswordFile}
		return repository.NewClient(conn, cfg.BackupID, progress), nil
	}
}

// openArchiver resolves the alias and opens its repository in one step,
// for the read-only listing commands.
func openArchiver(cmd *cobra.Command, cfg *config.Config, alias string, progress io.Writer) (repository.Archiver, string, error) {
	name, rc, err := cfg.ResolveRepo(alias)
	if err != nil {
		return nil, "", err
	}
	arch, err := repoOpener(cmd, cfg, progress)(name, rc)
	if err != nil {
		return nil, "", err
	}
	return arch, name, nil
}

// SetResticDetectorForTest stubs restic detection. The returned function
// restores the previous detector.
func SetResticDetectorForTest(fn resticDetectorFunc) func() {
	prev := detectResticFn
	detectResticFn = fn
	return func() {
		detectResticFn = prev
	}
}
