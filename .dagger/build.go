package main

import (
	"fmt"
	"strings"
	"time"

	"context"

	"dagger/wbiaid/internal/dagger"
)

// Build and return directory of go binaries
func (t *Wbiaid) Build(
	ctx context.Context,

	// Linker flags for go build
	// +optional
	// +default="-s -w"
	ldflags string,
) *dagger.Directory {
	// The sqlite driver needs cgo, so the matrix stays on linux with a
	// cross toolchain for arm64.
	goarches := []string{"amd64", "arm64"}

	// create empty directory to put build artifacts
	outputs := dag.Directory()

	golang := t.goContainer().
		WithExec([]string{"apt-get", "install", "-y", "gcc-aarch64-linux-gnu"}).
		WithEnvVariable("GOOS", "linux")

	for _, goarch := range goarches {
		// create directory for each architecture
		path := fmt.Sprintf("linux/%s/", goarch)

		build := golang.
			WithEnvVariable("GOARCH", goarch)
		if goarch == "arm64" {
			build = build.WithEnvVariable("CC", "aarch64-linux-gnu-gcc")
		}
		build = build.
			WithExec([]string{"go", "build", "-ldflags", ldflags, "-o", path, "./cli/wbiaid"})

		// add build to outputs
		outputs = outputs.WithDirectory(path, build.Directory(path))
	}

	// return build directory
	return outputs
}

// BuildRelease compiles versioned release binaries with embedded version info
func (t *Wbiaid) BuildRelease(
	ctx context.Context,

	// Version string of build
	version string,

	// Git commit SHA of build
	commit string,
) *dagger.Directory {
	buildtime := time.Now()

	ldflags := []string{
		"-s",
		"-w",
		fmt.Sprintf("-X 'github.com/WildMeOrg/wbia-plugin-id-example/pkg/utils.Version=%s'", version),
		fmt.Sprintf("-X 'github.com/WildMeOrg/wbia-plugin-id-example/pkg/utils.Sha=%s'", commit),
		fmt.Sprintf("-X 'github.com/WildMeOrg/wbia-plugin-id-example/pkg/utils.Buildtime=%s'", buildtime),
	}

	return t.Build(ctx, strings.Join(ldflags, " "))
}
