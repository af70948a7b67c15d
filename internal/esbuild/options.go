package esbuild

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/dosanma1/forge-bundler/pkg/compiler"
)

var targets = map[string]api.Target{
	"":       api.ESNext,
	"esnext": api.ESNext,
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
}

var formats = map[string]api.Format{
	"":         api.FormatESModule,
	"esm":      api.FormatESModule,
	"cjs":      api.FormatCommonJS,
	"commonjs": api.FormatCommonJS,
	"iife":     api.FormatIIFE,
}

var platforms = map[string]api.Platform{
	"":        api.PlatformBrowser,
	"browser": api.PlatformBrowser,
	"node":    api.PlatformNode,
	"neutral": api.PlatformNeutral,
}

var loaders = map[string]api.Loader{
	"js":      api.LoaderJS,
	"jsx":     api.LoaderJSX,
	"ts":      api.LoaderTS,
	"tsx":     api.LoaderTSX,
	"json":    api.LoaderJSON,
	"css":     api.LoaderCSS,
	"text":    api.LoaderText,
	"base64":  api.LoaderBase64,
	"dataurl": api.LoaderDataURL,
	"file":    api.LoaderFile,
	"binary":  api.LoaderBinary,
	"copy":    api.LoaderCopy,
	"empty":   api.LoaderEmpty,
}

// buildOptions maps a configuration onto esbuild's options. Paths are
// resolved against the configuration context.
func buildOptions(cfg *compiler.Config) (api.BuildOptions, error) {
	if len(cfg.EntryPoints) == 0 {
		return api.BuildOptions{}, fmt.Errorf("no entry points configured")
	}

	workDir, err := filepath.Abs(cfg.Context)
	if err != nil {
		return api.BuildOptions{}, fmt.Errorf("failed to resolve context %q: %w", cfg.Context, err)
	}

	outDir := cfg.OutputPath
	if outDir == "" {
		outDir = "dist"
	}
	if !filepath.IsAbs(outDir) {
		outDir = filepath.Join(workDir, outDir)
	}

	target, ok := targets[strings.ToLower(cfg.Target)]
	if !ok {
		return api.BuildOptions{}, fmt.Errorf("unsupported target %q", cfg.Target)
	}
	format, ok := formats[strings.ToLower(cfg.Format)]
	if !ok {
		return api.BuildOptions{}, fmt.Errorf("unsupported format %q", cfg.Format)
	}
	platform, ok := platforms[strings.ToLower(cfg.Platform)]
	if !ok {
		return api.BuildOptions{}, fmt.Errorf("unsupported platform %q", cfg.Platform)
	}

	loader := make(map[string]api.Loader, len(cfg.Loader))
	for ext, name := range cfg.Loader {
		l, ok := loaders[strings.ToLower(name)]
		if !ok {
			return api.BuildOptions{}, fmt.Errorf("unsupported loader %q for %s", name, ext)
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		loader[ext] = l
	}

	sourcemap := api.SourceMapNone
	if cfg.Sourcemap {
		sourcemap = api.SourceMapLinked
	}

	splitting := cfg.Splitting
	if format != api.FormatESModule {
		// esbuild only splits ES module output.
		splitting = false
	}

	return api.BuildOptions{
		AbsWorkingDir:     workDir,
		EntryPoints:       cfg.EntryPoints,
		Outdir:            outDir,
		Bundle:            cfg.BundleEnabled(),
		Splitting:         splitting,
		Write:             true,
		Metafile:          true,
		LogLevel:          api.LogLevelSilent,
		Sourcemap:         sourcemap,
		MinifyWhitespace:  cfg.Minify,
		MinifyIdentifiers: cfg.Minify,
		MinifySyntax:      cfg.Minify,
		Target:            target,
		Format:            format,
		Platform:          platform,
		Loader:            loader,
		Define:            cfg.Define,
		External:          cfg.External,
		PublicPath:        cfg.PublicPath,
		EntryNames:        "[name]",
		ChunkNames:        "chunk-[hash]",
		AssetNames:        "media/[name]-[hash]",
	}, nil
}
