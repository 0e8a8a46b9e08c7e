package indexing

import (
	"encoding/json"
	"fmt"

	"github.com/gupta2140/sensenet/internal/models"
)

// documentPayload is the JSON shape of a produced index document. Binary
// buffers are excluded; only their names and sizes are indexed.
type documentPayload struct {
	VersionID  int64               `json:"versionId"`
	NodeID     int64               `json:"nodeId"`
	TypeID     int64               `json:"typeId"`
	Name       string              `json:"name"`
	Path       string              `json:"path"`
	Version    string              `json:"version"`
	Properties map[int64]string    `json:"properties,omitempty"`
	LongText   map[int64]string    `json:"longText,omitempty"`
	References map[int64][]int64   `json:"references,omitempty"`
	Binaries   map[int64]binaryRef `json:"binaries,omitempty"`
}

type binaryRef struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// BuildDocument produces the index document payload for one version.
func BuildDocument(head *models.NodeHeadData, version *models.VersionData, dynamic *models.DynamicPropertyData) ([]byte, error) {
	payload := documentPayload{
		VersionID: version.VersionID,
		NodeID:    head.NodeID,
		TypeID:    head.TypeID,
		Name:      head.Name,
		Path:      head.Path,
		Version:   version.Version.String(),
	}

	if len(dynamic.Dynamic) > 0 {
		payload.Properties = make(map[int64]string, len(dynamic.Dynamic))
		for ptid, val := range dynamic.Dynamic {
			payload.Properties[ptid] = val.Value
		}
	}
	if len(dynamic.LongText) > 0 {
		payload.LongText = dynamic.LongText
	}
	if len(dynamic.Reference) > 0 {
		payload.References = dynamic.Reference
	}
	if len(dynamic.Binary) > 0 {
		payload.Binaries = make(map[int64]binaryRef, len(dynamic.Binary))
		for ptid, bin := range dynamic.Binary {
			payload.Binaries[ptid] = binaryRef{
				FileName:    bin.FileName,
				ContentType: bin.ContentType,
				Size:        bin.Size,
			}
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal index document: %w", err)
	}
	return data, nil
}
