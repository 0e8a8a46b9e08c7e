package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/gupta2140/sensenet/internal/models"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	weaviatemodels "github.com/weaviate/weaviate/entities/models"
)

// DefaultClassName is the Weaviate class index documents are stored under.
const DefaultClassName = "IndexDocument"

// WeaviateSink pushes index documents into a Weaviate instance. One object
// per version, addressed by a deterministic id, so replays overwrite.
type WeaviateSink struct {
	client    *weaviate.Client
	className string
	url       string
}

// NewWeaviateSink creates a sink for the Weaviate instance at url.
func NewWeaviateSink(url, className string) (*WeaviateSink, error) {
	if className == "" {
		className = DefaultClassName
	}

	cfg := weaviate.Config{
		Host:   url,
		Scheme: "http",
	}
	if len(url) > 7 && url[:7] == "http://" {
		cfg.Host = url[7:]
		cfg.Scheme = "http"
	} else if len(url) > 8 && url[:8] == "https://" {
		cfg.Host = url[8:]
		cfg.Scheme = "https"
	}

	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}

	return &WeaviateSink{client: client, className: className, url: url}, nil
}

// Ping checks that the backend is reachable.
func (s *WeaviateSink) Ping(ctx context.Context) error {
	live, err := s.client.Misc().LiveChecker().Do(ctx)
	if err != nil {
		return fmt.Errorf("connect to weaviate: %w", err)
	}
	if !live {
		return fmt.Errorf("weaviate is not live")
	}
	return nil
}

// EnsureClass creates the document class if the schema does not have it yet.
func (s *WeaviateSink) EnsureClass(ctx context.Context) error {
	schema, err := s.client.Schema().Getter().Do(ctx)
	if err != nil {
		return fmt.Errorf("get schema: %w", err)
	}
	for _, class := range schema.Classes {
		if class.Class == s.className {
			return nil
		}
	}

	class := &weaviatemodels.Class{
		Class:       s.className,
		Description: "Produced index document of one content version",
		Vectorizer:  "none",
		Properties: []*weaviatemodels.Property{
			{Name: "versionId", DataType: []string{"int"}},
			{Name: "nodeId", DataType: []string{"int"}},
			{Name: "path", DataType: []string{"text"}},
			{Name: "document", DataType: []string{"text"}},
		},
	}
	if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("create class %s: %w", s.className, err)
	}
	return nil
}

// Put creates or overwrites the object for the document's version.
func (s *WeaviateSink) Put(ctx context.Context, doc *models.IndexDocument) error {
	properties := map[string]any{
		"versionId": doc.VersionID,
		"nodeId":    doc.NodeID,
		"path":      doc.Path,
		"document":  string(doc.Document),
	}
	id := objectID(doc.VersionID)

	existing, err := s.client.Data().ObjectsGetter().
		WithClassName(s.className).
		WithID(id).
		Do(ctx)
	if err == nil && len(existing) > 0 {
		return s.client.Data().Updater().
			WithClassName(s.className).
			WithID(id).
			WithProperties(properties).
			Do(ctx)
	}

	_, err = s.client.Data().Creator().
		WithClassName(s.className).
		WithID(id).
		WithProperties(properties).
		Do(ctx)
	return err
}

// Delete removes the object of a version. Absent objects are fine.
func (s *WeaviateSink) Delete(ctx context.Context, versionID int64) error {
	err := s.client.Data().Deleter().
		WithClassName(s.className).
		WithID(objectID(versionID)).
		Do(ctx)
	if err != nil {
		// A delete of an absent object reports 404; existence is checked
		// first so the error can be suppressed uniformly.
		exists, checkErr := s.client.Data().Checker().
			WithClassName(s.className).
			WithID(objectID(versionID)).
			Do(ctx)
		if checkErr == nil && !exists {
			return nil
		}
		return err
	}
	return nil
}

// DeleteTree batch-deletes every object at pathPrefix or below it.
func (s *WeaviateSink) DeleteTree(ctx context.Context, pathPrefix string) error {
	where := filters.Where().
		WithOperator(filters.Or).
		WithOperands([]*filters.WhereBuilder{
			filters.Where().
				WithPath([]string{"path"}).
				WithOperator(filters.Equal).
				WithValueText(pathPrefix),
			filters.Where().
				WithPath([]string{"path"}).
				WithOperator(filters.Like).
				WithValueText(pathPrefix + "/*"),
		})

	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(s.className).
		WithWhere(where).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("delete tree %s: %w", pathPrefix, err)
	}
	return nil
}

// Count returns the object count via an aggregate query.
func (s *WeaviateSink) Count(ctx context.Context) (int, error) {
	metaField := graphql.Field{
		Name:   "meta",
		Fields: []graphql.Field{{Name: "count"}},
	}

	result, err := s.client.GraphQL().Aggregate().
		WithClassName(s.className).
		WithFields(metaField).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("count objects in %s: %w", s.className, err)
	}

	data, ok := result.Data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0, fmt.Errorf("unexpected aggregate response format")
	}
	classData, ok := data[s.className].([]interface{})
	if !ok || len(classData) == 0 {
		return 0, nil
	}
	first, ok := classData[0].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	meta, ok := first["meta"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	count, ok := meta["count"].(float64)
	if !ok {
		return 0, nil
	}
	return int(count), nil
}

// objectID derives a deterministic UUID-shaped id from a version id, so the
// same version always maps to the same object.
func objectID(versionID int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("sensenet-version-%d", versionID)))
	hexed := hex.EncodeToString(sum[:16])
	return fmt.Sprintf("%s-%s-%s-%s-%s", hexed[0:8], hexed[8:12], hexed[12:16], hexed[16:20], hexed[20:32])
}
