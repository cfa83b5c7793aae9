package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tidwall/pretty"

	"social-export/internal/domain"
	"social-export/internal/domain/model"
	"social-export/internal/domain/ports/adapter"
	"social-export/internal/infra/metrics"
)

const (
	artifactContentType  = "application/json"
	artifactCacheControl = "private, no-store"
	artifactKeyPrefix    = "exports/"
	filesPath            = "/files/"
)

var prettyOpts = &pretty.Options{Width: 80, Prefix: "", Indent: "  ", SortKeys: true}

// ArtifactKey is the deterministic object key of one export artifact.
func ArtifactKey(userID, requestID, name string) string {
	return artifactKeyPrefix + userID + "/" + requestID + "/" + name + ".json"
}

// ArtifactOwner extracts the user id from an artifact key, or "" if key is not one.
func ArtifactOwner(key string) string {
	rest, ok := strings.CutPrefix(key, artifactKeyPrefix)
	if !ok {
		return ""
	}
	owner, _, ok := strings.Cut(rest, "/")
	if !ok {
		return ""
	}
	return owner
}

// ArtifactWriter serializes bundles and stores them under the export key scheme.
type ArtifactWriter struct {
	store   adapter.ObjectStore
	baseURL string
	log     *zerolog.Logger
}

func NewArtifactWriter(store adapter.ObjectStore, publicBaseURL string, logger *zerolog.Logger) *ArtifactWriter {
	return &ArtifactWriter{
		store:   store,
		baseURL: strings.TrimRight(publicBaseURL, "/"),
		log:     orNop(logger),
	}
}

// URLFor returns the download URL served for key.
func (w *ArtifactWriter) URLFor(key string) string {
	return w.baseURL + filesPath + key
}

// PutJSON writes payload as stable, sorted-key JSON and returns its reference.
// Writing the same key twice overwrites.
func (w *ArtifactWriter) PutJSON(ctx context.Context, key string, payload any) (*model.ArtifactRef, error) {
	if w == nil || w.store == nil {
		return nil, domain.ErrStorageUnavailable
	}
	body, err := encodeStable(payload)
	if err != nil {
		return nil, fmt.Errorf("encode artifact %s: %w", key, err)
	}
	meta := adapter.ObjectMetadata{ContentType: artifactContentType, CacheControl: artifactCacheControl}
	if err := w.store.Put(ctx, key, body, meta); err != nil {
		return nil, fmt.Errorf("put artifact %s: %w", key, err)
	}
	metrics.ObserveArtifactWritten(artifactName(key), len(body))
	w.log.Debug().Str("key", key).Int("bytes", len(body)).Msg("artifact written")
	return &model.ArtifactRef{Key: key, URL: w.URLFor(key), ContentType: artifactContentType}, nil
}

// Open reads a stored artifact back.
func (w *ArtifactWriter) Open(ctx context.Context, key string) ([]byte, adapter.ObjectMetadata, error) {
	if w == nil || w.store == nil {
		return nil, adapter.ObjectMetadata{}, domain.ErrStorageUnavailable
	}
	return w.store.Get(ctx, key)
}

func encodeStable(payload any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, err
	}
	return pretty.PrettyOptions(buf.Bytes(), prettyOpts), nil
}

// artifactName is the last key segment without ".json", used as a metric label.
func artifactName(key string) string {
	name := key[strings.LastIndex(key, "/")+1:]
	return strings.TrimSuffix(name, ".json")
}

func orNop(l *zerolog.Logger) *zerolog.Logger {
	if l != nil {
		return l
	}
	nop := zerolog.Nop()
	return &nop
}
