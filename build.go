//go:build ignore

// build.go - licensegate build system
// Usage: go run build.go [-target=TARGET] [-version=VERSION]
// Targets: build, test, clean, release

package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const (
	module  = "licensegate"
	mainPkg = "./cmd/licensegate"
)

// releasePlatforms are the GOOS/GOARCH pairs shipped by the release target
var releasePlatforms = [][2]string{
	{"linux", "amd64"},
	{"linux", "arm64"},
	{"darwin", "amd64"},
	{"darwin", "arm64"},
	{"windows", "amd64"},
}

var (
	distDir = "dist"

	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

// BuildContext holds configuration for the build process
type BuildContext struct {
	Verbose bool
	Version string
}

func main() {
	target := flag.String("target", "build", "Build target")
	verbose := flag.Bool("v", false, "Verbose output")
	version := flag.String("version", "dev", "Version stamped into the binary")
	flag.Parse()

	if runtime.GOOS == "windows" && os.Getenv("WT_SESSION") == "" {
		colorReset, colorRed, colorGreen, colorYellow, colorCyan = "", "", "", "", ""
	}

	printHeader()
	start := time.Now()
	ctx := &BuildContext{Verbose: *verbose, Version: *version}

	var err error
	switch *target {
	case "build":
		err = buildBinary(ctx, runtime.GOOS, runtime.GOARCH)
	case "test":
		err = runTests(ctx)
	case "clean":
		err = clean(ctx)
	case "release":
		err = buildRelease(ctx)
	default:
		err = fmt.Errorf("unknown target: %s", *target)
	}
	if err != nil {
		printError(err.Error())
		os.Exit(1)
	}

	printSuccess(fmt.Sprintf("Done in %s", time.Since(start).Round(time.Millisecond)))
}

func printHeader() {
	fmt.Printf("%s=== %s build ===%s\n", colorCyan, module, colorReset)
}

func printInfo(msg string) {
	fmt.Printf("%s[INFO]%s %s\n", colorCyan, colorReset, msg)
}

func printSuccess(msg string) {
	fmt.Printf("%s[OK]%s %s\n", colorGreen, colorReset, msg)
}

func printWarning(msg string) {
	fmt.Printf("%s[WARN]%s %s\n", colorYellow, colorReset, msg)
}

func printError(msg string) {
	fmt.Printf("%s[ERROR]%s %s\n", colorRed, colorReset, msg)
}

// binaryName returns the output path for goos/goarch
func binaryName(goos, goarch string, release bool) string {
	name := module
	if release {
		name = fmt.Sprintf("%s-%s-%s", module, goos, goarch)
	}
	if goos == "windows" {
		name += ".exe"
	}
	return filepath.Join(distDir, name)
}

func buildBinary(ctx *BuildContext, goos, goarch string) error {
	return compile(ctx, goos, goarch, binaryName(goos, goarch, false))
}

func compile(ctx *BuildContext, goos, goarch, output string) error {
	printInfo(fmt.Sprintf("Building %s (%s/%s)", output, goos, goarch))

	ldflags := fmt.Sprintf("-s -w -X %s/internal/config.AppVersion=%s", module, ctx.Version)
	args := []string{"build", "-trimpath", "-ldflags", ldflags, "-o", output}
	if ctx.Verbose {
		args = append(args, "-v")
	}
	args = append(args, mainPkg)

	cmd := exec.Command("go", args...)
	cmd.Env = append(os.Environ(), "GOOS="+goos, "GOARCH="+goarch, "CGO_ENABLED=0")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("build %s/%s failed: %w", goos, goarch, err)
	}
	return nil
}

func runTests(ctx *BuildContext) error {
	printInfo("Running tests...")
	args := []string{"test", "-race", "./..."}
	if ctx.Verbose {
		args = append(args, "-v")
	}
	cmd := exec.Command("go", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func clean(ctx *BuildContext) error {
	printInfo("Cleaning build artifacts...")
	if err := os.RemoveAll(distDir); err != nil {
		return err
	}
	if ctx.Verbose {
		printInfo("Removed " + distDir)
	}
	return nil
}

// buildRelease cross-compiles every release platform and writes a
// VERSION.txt next to the binaries
func buildRelease(ctx *BuildContext) error {
	if ctx.Version == "dev" {
		printWarning("Release built without -version, binaries report \"dev\"")
	}
	if err := clean(ctx); err != nil {
		return err
	}

	var built []string
	for _, p := range releasePlatforms {
		output := binaryName(p[0], p[1], true)
		if err := compile(ctx, p[0], p[1], output); err != nil {
			return err
		}
		built = append(built, filepath.Base(output))
	}

	content := fmt.Sprintf("%s %s\nBuilt: %s\n\n%s\n", module, ctx.Version,
		time.Now().UTC().Format(time.RFC3339), strings.Join(built, "\n"))
	if err := os.WriteFile(filepath.Join(distDir, "VERSION.txt"), []byte(content), 0644); err != nil {
		return err
	}

	printSuccess(fmt.Sprintf("Release build completed (%d binaries)", len(built)))
	return nil
}
