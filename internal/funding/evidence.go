package funding

import (
	"context"
	"strings"
)

const maxEvidenceRefLength = 512

// EvidenceStore is the connector to wherever proof of payment is uploaded.
// The workflow only ever handles the opaque reference.
type EvidenceStore interface {
	Check(ctx context.Context, method Method, ref string) error
}

// StaticEvidenceStore accepts any well-formed reference without contacting a
// storage backend.
type StaticEvidenceStore struct{}

// Check rejects empty, oversized or multi-line references.
func (StaticEvidenceStore) Check(_ context.Context, _ Method, ref string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" || len(ref) > maxEvidenceRefLength || strings.ContainsAny(ref, "\r\n") {
		return ErrInvalidEvidence
	}
	return nil
}
