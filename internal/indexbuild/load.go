package indexbuild

import (
	"context"
	"log/slog"

	"camsync/internal/logging"
	"camsync/internal/services"
	"camsync/internal/timecode"
	"camsync/internal/workerpool"
)

// LoadAll reopens the persisted indexes of cameras from dir. Cameras whose
// index is missing or unreadable are returned in skipped with the cause and
// logged; they never fail the load.
func LoadAll(ctx context.Context, dir string, cameras []string, workers int, logger *slog.Logger) (map[string]*timecode.Index, map[string]error, error) {
	logger = logging.NewComponentLogger(logger, "index-loader")
	loaded := make(map[string]*timecode.Index, len(cameras))
	skipped := make(map[string]error)

	err := workerpool.Run(ctx, workers, cameras,
		func(_ context.Context, camera string) (*timecode.Index, error) {
			return timecode.ReadFile(timecode.Path(dir, camera))
		},
		func(res workerpool.Result[string, *timecode.Index]) error {
			if res.Err != nil {
				skipped[res.Item] = res.Err
				logging.WarnWithContext(logger, "index unavailable; camera omitted from sync", "index_load_skipped",
					logging.String(logging.FieldCamera, res.Item),
					logging.String(logging.FieldErrorKind, services.ErrorKind(res.Err)),
					logging.String(logging.FieldErrorHint, "run 'camsync index build' and check its outcome for this camera"),
					logging.Error(res.Err),
				)
				return nil
			}
			loaded[res.Item] = res.Value
			return nil
		},
	)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("indexes loaded", logging.Int("loaded", len(loaded)), logging.Int("skipped", len(skipped)))
	return loaded, skipped, nil
}
