// Package document defines the chunk record shared by segmentation, storage
// and retrieval.
package document

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/policyrag/internal/access"
)

// Type is a coarse document category inferred from the filename. It is
// metadata only and plays no part in access control.
type Type string

const (
	TypeBenefits     Type = "benefits"
	TypeHandbook     Type = "handbook"
	TypeLeavePolicy  Type = "leave_policy"
	TypePerformance  Type = "performance"
	TypeCompensation Type = "compensation"
	TypeTermination  Type = "termination"
	TypePolicy       Type = "policy"
)

// typeKeywords is checked in order; the first keyword found in the filename wins.
var typeKeywords = []struct {
	keyword string
	typ     Type
}{
	{"benefits", TypeBenefits},
	{"handbook", TypeHandbook},
	{"leave", TypeLeavePolicy},
	{"performance", TypePerformance},
	{"compensation", TypeCompensation},
	{"termination", TypeTermination},
}

// InferType classifies a filename by case-insensitive keyword match.
func InferType(filename string) Type {
	lower := strings.ToLower(filename)
	for _, k := range typeKeywords {
		if strings.Contains(lower, k.keyword) {
			return k.typ
		}
	}
	return TypePolicy
}

// chunkNamespace scopes the deterministic chunk ids.
var chunkNamespace = uuid.MustParse("6f1c2b7e-4f7a-5c52-9a51-3b1f2d8e0c44")

// Chunk is the unit of storage and retrieval. Chunks are values and are never
// mutated after the segmenter emits them.
type Chunk struct {
	Content      string       `json:"content"`
	Filename     string       `json:"filename"`
	AccessLevel  access.Level `json:"access_level"`
	SequenceID   int          `json:"sequence_id"`
	DocumentType Type         `json:"document_type"`
}

// ID returns a stable UUIDv5 derived from filename, access level and sequence
// id. Re-ingesting the same document yields the same ids.
func (c Chunk) ID() string {
	key := fmt.Sprintf("%s\x00%s\x00%d", c.Filename, c.AccessLevel, c.SequenceID)
	return uuid.NewSHA1(chunkNamespace, []byte(key)).String()
}

// Payload field names used by every store.
const (
	FieldContent      = "content"
	FieldFilename     = "filename"
	FieldAccessLevel  = "access_level"
	FieldSequenceID   = "sequence_id"
	FieldDocumentType = "document_type"
)
