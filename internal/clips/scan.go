package clips

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/kikiluvv/reelcompiler/internal/errs"
	"github.com/kikiluvv/reelcompiler/pkg/util"
)

// Scan walks root recursively and probes every file whose extension is in
// extensions. Files that fail to probe or report no duration are skipped.
// Clips are returned in discovery order. An empty result is errs.ErrInventory.
func Scan(ctx context.Context, logger zerolog.Logger, root string, extensions []string, prober Prober) ([]SourceClip, error) {
	logger = logger.With().Str("component", "inventory").Logger()

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, errs.Wrap(errs.ErrConfig, err, "source folder %q", root)
	}

	candidates, err := discover(logger, root, extensions)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("root", root).
		Int("candidates", len(candidates)).
		Msg("probing source clips")

	var clips []SourceClip
	for _, path := range candidates {
		if ctx.Err() != nil {
			return nil, errs.Wrap(errs.ErrCancelled, ctx.Err(), "while scanning %s", root)
		}

		probe, err := prober.ProbeClip(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errs.Wrap(errs.ErrCancelled, ctx.Err(), "while scanning %s", root)
			}
			logger.Debug().Err(err).Str("path", path).Msg("skipping unprobable file")
			continue
		}
		if probe.Duration <= 0 {
			logger.Debug().Str("path", path).Msg("skipping file without duration")
			continue
		}

		clips = append(clips, SourceClip{
			Path:     path,
			Duration: probe.Duration,
			HasAudio: probe.HasAudio,
		})
	}

	if len(clips) == 0 {
		return nil, errs.New(errs.ErrInventory, "no playable %s files under %s", strings.Join(extensions, "/"), root)
	}

	logger.Info().
		Int("clips", len(clips)).
		Int("skipped", len(candidates)-len(clips)).
		Float64("seconds", TotalDuration(clips)).
		Msg("inventory ready")

	return clips, nil
}

// discover lists candidate files in lexical walk order. Unreadable
// subdirectories are skipped; an unreadable root is a config error.
func discover(logger zerolog.Logger, root string, extensions []string) ([]string, error) {
	exts := mapset.NewSet(lo.Map(extensions, func(e string, _ int) string {
		return normalizeExt(e)
	})...)

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			logger.Warn().Err(err).Str("path", path).Msg("skipping unreadable entry")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if exts.Contains(util.GetExtension(path)) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrConfig, err, "cannot read source folder %s", root)
	}
	return files, nil
}

func normalizeExt(e string) string {
	e = strings.ToLower(strings.TrimSpace(e))
	if e != "" && !strings.HasPrefix(e, ".") {
		e = "." + e
	}
	return e
}
