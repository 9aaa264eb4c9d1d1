// Package basemap downloads raster base map tiles into the local tile cache,
// re-encoding them as WebP.
package basemap

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/planscape/planmap/internal/config"

	"github.com/chai2010/webp"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Tile addresses one tile in XYZ scheme.
type Tile struct {
	Z, X, Y int
}

// Children returns the four tiles covering t at the next zoom level.
func (t Tile) Children() [4]Tile {
	x, y := t.X*2, t.Y*2
	return [4]Tile{
		{t.Z + 1, x, y},
		{t.Z + 1, x + 1, y},
		{t.Z + 1, x, y + 1},
		{t.Z + 1, x + 1, y + 1},
	}
}

// Stats counts what a Load did.
type Stats struct {
	Fetched int64 `json:"fetched"`
	Cached  int64 `json:"cached"`
	Missing int64 `json:"missing"`
	Failed  int64 `json:"failed"`
}

// Loader fetches base layers into Dir.
type Loader struct {
	Client      *http.Client
	Dir         string
	Concurrency int
	Quality     float32
	Force       bool // overwrite cached tiles
	FastCheck   bool // skip a layer whose directory exists
}

// TilePath is where a tile of layer lives under dir.
func TilePath(dir, layer string, t Tile) string {
	return filepath.Join(dir, layer, strconv.Itoa(t.Z), strconv.Itoa(t.X), strconv.Itoa(t.Y)+".webp")
}

// Load walks the layer pyramid from zoom 0 down to the layer's zoom limit,
// descending only below tiles that exist upstream.
func (l *Loader) Load(ctx context.Context, layer config.BaseLayer) (Stats, error) {
	var stats Stats

	if !strings.Contains(layer.Source, "{z}") {
		return stats, fmt.Errorf("layer %s: source is not a {z}/{x}/{y} template", layer.Name)
	}

	if l.FastCheck {
		if _, err := os.Stat(filepath.Join(l.Dir, layer.Name)); err == nil {
			log.Info().
				Str("layer", layer.Name).
				Msg("Layer directory exists, skipping (fast-check)")
			return stats, nil
		}
	}

	log.Info().
		Str("layer", layer.Name).
		Int("zoom_limit", layer.ZoomLimit).
		Msg("Starting tile download")

	level := []Tile{{0, 0, 0}}
	for z := 0; z <= layer.ZoomLimit && len(level) > 0; z++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if z > 0 && !l.probe(ctx, layer.Source, level) {
			log.Info().Str("layer", layer.Name).Int("zoom", z).Msg("No data found at zoom level, stopping")
			break
		}

		log.Debug().Str("layer", layer.Name).Int("zoom", z).Int("count", len(level)).Msg("Processing zoom level")

		valid := l.batch(ctx, layer, level, &stats)

		next := make([]Tile, 0, len(valid)*4)
		for _, t := range valid {
			c := t.Children()
			next = append(next, c[:]...)
		}
		level = next
	}

	log.Info().
		Str("layer", layer.Name).
		Int64("fetched", stats.Fetched).
		Int64("cached", stats.Cached).
		Int64("missing", stats.Missing).
		Int64("failed", stats.Failed).
		Msg("Tile download finished")

	return stats, ctx.Err()
}

func (l *Loader) batch(ctx context.Context, layer config.BaseLayer, tiles []Tile, stats *Stats) []Tile {
	workers := l.Concurrency
	if workers <= 0 {
		workers = 8
	}
	if workers > len(tiles) {
		workers = len(tiles)
	}

	jobs := make(chan Tile)
	var (
		mu    sync.Mutex
		valid []Tile
		wg    sync.WaitGroup
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				ok, err := l.fetch(ctx, layer, t, stats)
				if err != nil {
					atomic.AddInt64(&stats.Failed, 1)
					log.Trace().
						Err(err).
						Str("url", BuildURL(layer.Source, t)).
						Msg("Failed to download tile")
				}
				if ok {
					mu.Lock()
					valid = append(valid, t)
					mu.Unlock()
				}
			}
		}()
	}

feed:
	for _, t := range tiles {
		select {
		case jobs <- t:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	return valid
}

// fetch stores one tile. It reports whether the tile exists (fetched or
// already cached).
func (l *Loader) fetch(ctx context.Context, layer config.BaseLayer, t Tile, stats *Stats) (bool, error) {
	out := TilePath(l.Dir, layer.Name, t)

	if !l.Force {
		if info, err := os.Stat(out); err == nil && info.Size() > 0 {
			atomic.AddInt64(&stats.Cached, 1)
			return true, nil
		}
	}

	img, err := l.get(ctx, BuildURL(layer.Source, t))
	if err != nil {
		return false, err
	}
	if img == nil {
		atomic.AddInt64(&stats.Missing, 1)
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return false, err
	}

	quality := l.Quality
	if quality <= 0 {
		quality = 80
	}
	err = writeFile(out, func(w io.Writer) error {
		return webp.Encode(w, img, &webp.Options{Lossless: false, Quality: quality})
	})
	if err != nil {
		return false, fmt.Errorf("encode %s: %w", out, err)
	}

	atomic.AddInt64(&stats.Fetched, 1)
	return true, nil
}

// writeFile writes path through a temporary file in the same directory and
// renames it into place, so an interrupted or failed write never leaves a
// partial tile that later runs would take as cached.
func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	if err = write(f); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}

// get downloads and decodes a tile image. A nil image with nil error means
// the upstream has no tile there (404, undecodable or 1px placeholder).
func (l *Loader) get(ctx context.Context, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := l.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status code %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		log.Trace().Err(err).Str("url", url).Msg("Failed to decode image")
		return nil, nil
	}
	if img.Bounds().Dx() <= 1 {
		log.Trace().Str("url", url).Msg("Filtered empty tile")
		return nil, nil
	}

	return img, nil
}

// probe checks the first, middle and last tile of a level for data.
func (l *Loader) probe(ctx context.Context, tpl string, tiles []Tile) bool {
	probes := []Tile{tiles[0]}
	if len(tiles) > 10 {
		probes = append(probes, tiles[len(tiles)/2])
	}
	if len(tiles) > 1 {
		probes = append(probes, tiles[len(tiles)-1])
	}

	for _, p := range probes {
		if img, err := l.get(ctx, BuildURL(tpl, p)); err == nil && img != nil {
			return true
		}
	}
	return false
}

func (l *Loader) client() *http.Client {
	if l.Client != nil {
		return l.Client
	}
	return http.DefaultClient
}

// BuildURL fills {z}, {x}, {y} and {tms_y} in a tile URL template.
func BuildURL(tpl string, t Tile) string {
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(t.Z),
		"{x}", strconv.Itoa(t.X),
		"{y}", strconv.Itoa(t.Y),
		"{tms_y}", strconv.Itoa((1<<t.Z)-1-t.Y),
	)
	return r.Replace(tpl)
}
