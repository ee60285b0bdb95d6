package unityasset

import (
	"context"
	"fmt"
	"runtime/trace"
	"time"

	"github.com/quay/zlog"

	"github.com/quay/unityasset/container"
	"github.com/quay/unityasset/serialize"
	"github.com/quay/unityasset/uaerr"
)

// Parse is the top-level entry point: it dispatches sourceName/data
// through [container.Parse], then runs [serialize.Parse] over every
// resulting entry that is itself a SerializedFile, aggregating
// everything into a returned [AssetContext].
//
// A fatal container-level error (bad magic, unsupported version,
// corrupt block header) aborts the parse and returns no context. A
// SerializedFile-level parse failure on one entry is recoverable: it is
// recorded as a warning and the remaining entries are still processed,
// since a container (a UnityFS bundle or .unitypackage archive) may
// legitimately carry non-SerializedFile payloads (textures, raw script
// bytes, .meta sidecars) alongside its serialized objects. The exception
// is input with no recognized container envelope, which is treated as a
// single raw SerializedFile: there its parse failure is returned as the
// error of the whole call.
func Parse(ctx context.Context, sourceName string, data []byte) (*AssetContext, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "unityasset.Parse", "source", sourceName)
	ctx, task := trace.NewTask(ctx, "unityasset.Parse")
	defer task.End()

	start := time.Now()
	c, warnings, err := container.Parse(ctx, sourceName, data)
	if err != nil {
		return nil, err
	}

	ac := NewAssetContext()
	ac.AddContainer(c)
	ac.AddWarnings(warnings)

	for _, entry := range c.Entries {
		if err := ctx.Err(); err != nil {
			ac.AddWarning(uaerr.NewWarning(uaerr.Cancelled, fmt.Sprintf("entry %q: %v", entry.Name, err)))
			break
		}

		sf, sfWarnings, err := serialize.Parse(ctx, entry.Name, entry.Data)
		if err != nil {
			// A container whose only entry *is* the whole input (the raw
			// SerializedFile fallback in container.Parse) has no other
			// entry to fall back to: its failure is the parse's failure.
			// Entries carved out of a UnityFS bundle or .unitypackage
			// archive may legitimately be non-SerializedFile payloads
			// (textures, raw script bytes, .meta sidecars), so there the
			// same failure is only ever recoverable.
			if c.Kind == container.KindSerializedFile {
				return nil, err
			}
			ac.AddWarning(uaerr.NewWarning(uaerr.ContainerMalformed,
				fmt.Sprintf("entry %q is not a SerializedFile: %v", entry.Name, err)))
			continue
		}
		ac.AddWarnings(sfWarnings)
		ac.AddSerializedFile(sf)
		ac.decodeSemanticObjects(sf)
	}

	parseDuration.WithLabelValues(c.Kind.String()).Observe(time.Since(start).Seconds())
	zlog.Debug(ctx).
		Int("serialized_files", len(ac.sfOrder)).
		Int("warnings", len(ac.warnings)).
		Msg("parse complete")
	return ac, nil
}
