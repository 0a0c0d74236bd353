package vectorstore

import (
	"fmt"
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	"github.com/fyrsmithlabs/policyrag/internal/access"
	"github.com/fyrsmithlabs/policyrag/internal/document"
)

// qdrantPayload encodes a chunk as a Qdrant point payload.
func qdrantPayload(c document.Chunk) map[string]*qdrant.Value {
	return map[string]*qdrant.Value{
		document.FieldContent:      qdrant.NewValueString(c.Content),
		document.FieldFilename:     qdrant.NewValueString(c.Filename),
		document.FieldAccessLevel:  qdrant.NewValueString(string(c.AccessLevel)),
		document.FieldSequenceID:   qdrant.NewValueInt(int64(c.SequenceID)),
		document.FieldDocumentType: qdrant.NewValueString(string(c.DocumentType)),
	}
}

// chunkFromQdrant decodes a point payload. Missing fields decode to zero
// values; a missing access level therefore decodes to "" which no user-role
// caller is admitted to.
func chunkFromQdrant(payload map[string]*qdrant.Value) document.Chunk {
	return document.Chunk{
		Content:      payload[document.FieldContent].GetStringValue(),
		Filename:     payload[document.FieldFilename].GetStringValue(),
		AccessLevel:  access.Level(payload[document.FieldAccessLevel].GetStringValue()),
		SequenceID:   int(payload[document.FieldSequenceID].GetIntegerValue()),
		DocumentType: document.Type(payload[document.FieldDocumentType].GetStringValue()),
	}
}

// chromemMetadata encodes the chunk's metadata fields. Content is stored as
// the chromem document content.
func chromemMetadata(c document.Chunk) map[string]string {
	return map[string]string{
		document.FieldFilename:     c.Filename,
		document.FieldAccessLevel:  string(c.AccessLevel),
		document.FieldSequenceID:   strconv.Itoa(c.SequenceID),
		document.FieldDocumentType: string(c.DocumentType),
	}
}

func chunkFromChromem(content string, meta map[string]string) (document.Chunk, error) {
	seq, err := strconv.Atoi(meta[document.FieldSequenceID])
	if err != nil {
		return document.Chunk{}, fmt.Errorf("decoding %s: %w", document.FieldSequenceID, err)
	}
	return document.Chunk{
		Content:      content,
		Filename:     meta[document.FieldFilename],
		AccessLevel:  access.Level(meta[document.FieldAccessLevel]),
		SequenceID:   seq,
		DocumentType: document.Type(meta[document.FieldDocumentType]),
	}, nil
}

// qdrantFilter translates a LevelFilter into a payload filter on the
// access_level keyword field.
func qdrantFilter(f *LevelFilter) *qdrant.Filter {
	if f == nil {
		return nil
	}
	levels := make([]string, len(f.Levels))
	for i, l := range f.Levels {
		levels[i] = string(l)
	}
	var cond *qdrant.Condition
	if len(levels) == 1 {
		cond = qdrant.NewMatch(document.FieldAccessLevel, levels[0])
	} else {
		cond = qdrant.NewMatchKeywords(document.FieldAccessLevel, levels...)
	}
	return &qdrant.Filter{Must: []*qdrant.Condition{cond}}
}

// filenameFilter selects every point stored for filename.
func filenameFilter(filename string) *qdrant.Filter {
	return &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch(document.FieldFilename, filename)}}
}
