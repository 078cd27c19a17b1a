//go:build js && wasm

package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"syscall/js"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"imgsearch/config"
	"imgsearch/internal/adapter/cache"
	"imgsearch/internal/adapter/embedding"
	"imgsearch/internal/adapter/memstore"
	"imgsearch/internal/domain"
	"imgsearch/internal/usecase"
)

const (
	model     = "clip-ViT-B-32"
	dimension = 512
)

var (
	store      *memstore.MemoryStore
	encoder    *embedding.LocalEncoder
	queryCache = newQueryCache()
	pending = &bytesLoader{images: make(map[string][]byte)}
	ingest  *usecase.IngestUseCase
	search  *usecase.SearchUseCase
)

// bytesLoader decodes images handed over from JavaScript.
type bytesLoader struct {
	images map[string][]byte
}

func (l *bytesLoader) Load(ctx context.Context, paths []string) []domain.Loaded {
	out := make([]domain.Loaded, len(paths))
	for i, p := range paths {
		out[i].Path = p
		img, _, err := image.Decode(bytes.NewReader(l.images[p]))
		if err != nil {
			out[i].Err = fmt.Errorf("%w: %s: %w", domain.ErrDecode, p, err)
			continue
		}
		out[i].Image = img
	}
	return out
}

// newQueryCache sizes the page's query-vector cache from the search defaults.
func newQueryCache() *cache.QueryCache {
	s := config.DefaultConfig().Search
	return cache.NewQueryCache(s.CacheSize, s.CacheTTL)
}

func init() {
	var err error
	encoder, err = embedding.NewLocalEncoder(model, dimension, "generic")
	if err != nil {
		panic(err)
	}
	if err := reset(); err != nil {
		panic(err)
	}
}

// reset swaps in an empty store and drops cached query vectors.
func reset() error {
	st := memstore.NewMemoryStore(dimension)
	ing, err := usecase.NewIngestUseCase(st, encoder, pending, nil, usecase.IngestOptions{BatchSize: 1})
	if err != nil {
		return err
	}
	srch, err := usecase.NewSearchUseCase(st, cache.NewCachedEncoder(encoder, queryCache), nil)
	if err != nil {
		return err
	}
	queryCache.Invalidate()
	store, ingest, search = st, ing, srch
	return nil
}

func main() {
	c := make(chan struct{})

	js.Global().Set("imgIndex", js.FuncOf(indexImage))
	js.Global().Set("imgSearch", js.FuncOf(searchImages))
	js.Global().Set("imgClear", js.FuncOf(clearIndex))
	js.Global().Set("imgStats", js.FuncOf(getStats))

	<-c
}

func indexImage(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return makeError("usage: imgIndex(filename, base64Data)")
	}

	filename := args[0].String()
	data, err := base64.StdEncoding.DecodeString(args[1].String())
	if err != nil {
		return makeError("invalid base64 data: " + err.Error())
	}

	pending.images[filename] = data
	defer delete(pending.images, filename)

	result, err := ingest.Ingest(context.Background(), []string{filename}, nil)
	if err != nil {
		return makeError("indexing failed: " + err.Error())
	}
	if result.Skipped > 0 {
		return makeError("indexing failed: " + result.Failures[0].Err.Error())
	}

	return makeResult(map[string]interface{}{
		"success":  true,
		"inserted": result.Inserted,
		"filename": filename,
	})
}

func searchImages(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return makeError("usage: imgSearch(description, [topK])")
	}

	description := args[0].String()
	topK := 5
	if len(args) > 1 {
		topK = args[1].Int()
	}

	matches, err := search.Matches(context.Background(), description, topK)
	if err != nil {
		return makeError("search failed: " + err.Error())
	}

	output := make([]map[string]interface{}, 0, len(matches))
	for _, m := range matches {
		output = append(output, map[string]interface{}{
			"path":     m.Path,
			"distance": m.Distance,
		})
	}

	return makeResult(map[string]interface{}{
		"results": output,
		"query":   description,
	})
}

func clearIndex(this js.Value, args []js.Value) interface{} {
	if err := reset(); err != nil {
		return makeError("clear failed: " + err.Error())
	}
	return makeResult(map[string]interface{}{
		"success": true,
	})
}

func getStats(this js.Value, args []js.Value) interface{} {
	n, _ := store.Count(context.Background())
	return makeResult(map[string]interface{}{
		"images":    n,
		"dimension": dimension,
		"model":     model,
		"backend":   string(encoder.Backend()),
		"cached":    queryCache.Size(),
	})
}

func makeError(msg string) interface{} {
	result, _ := json.Marshal(map[string]interface{}{
		"error": msg,
	})
	return string(result)
}

func makeResult(data map[string]interface{}) interface{} {
	result, _ := json.Marshal(data)
	return string(result)
}
