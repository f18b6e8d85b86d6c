package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/khadira1937/xligo/internal/domain"
)

// Archiver implements domain.DecisionArchiver by serializing the full
// decision trail of an incident to JSON and uploading it to blob storage.
// One object per incident, partitioned by detection date:
//
//	decisions/2026-08/30/{incident_id}.json
//
// Objects are immutable once written; a re-archive of the same incident
// overwrites with identical content.
type Archiver struct {
	writer domain.BlobWriter
}

// NewArchiver creates an Archiver that uploads through the given writer.
func NewArchiver(writer domain.BlobWriter) *Archiver {
	return &Archiver{writer: writer}
}

// ArchiveDecision uploads the decision trail for one incident.
func (a *Archiver) ArchiveDecision(ctx context.Context, d domain.Decision) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("s3blob: encode decision %s: %w", d.Incident.ID, err)
	}

	path := decisionPath(d.Incident.ID, d.Incident.DetectedAt)
	if err := a.writer.Put(ctx, path, &buf, "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive decision %s: %w", d.Incident.ID, err)
	}
	return nil
}

// decisionPath builds the blob key for a decision trail, partitioned by the
// incident's detection date.
func decisionPath(incidentID string, detectedAt time.Time) string {
	return fmt.Sprintf("decisions/%s/%s.json", detectedAt.UTC().Format("2006-01/02"), incidentID)
}

// Compile-time interface check.
var _ domain.DecisionArchiver = (*Archiver)(nil)
