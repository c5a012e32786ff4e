package core

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// SentinelContent is the content of a document whose page could not be fetched.
const SentinelContent = "No content found"

// AggregateEntity names the collection that receives every entity's chunks.
const AggregateEntity = "all_companies"

// ID is a unique identifier for stored entities.
// It is generated using content-based hashing or database sequences.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// CollectionName returns the vector collection name for an entity.
func CollectionName(entity string) string {
	return strings.ToLower(strings.TrimSpace(entity)) + "_vectorstore"
}

// FetchMethod records which strategy produced a document.
type FetchMethod int

const (
	// FetchStatic is a plain HTTP GET that returned 200.
	FetchStatic FetchMethod = iota + 1
	// FetchRender is a headless-browser render.
	FetchRender
	// FetchSentinel marks a document substituted after both strategies failed.
	FetchSentinel
)

func (m FetchMethod) String() string {
	switch m {
	case FetchStatic:
		return "static"
	case FetchRender:
		return "render"
	case FetchSentinel:
		return "sentinel"
	default:
		return "unknown"
	}
}

// EntityRecord is a company and the URLs it owns.
type EntityRecord struct {
	Name string
	URLs []string
}

// Document is the cleaned text of one fetched page.
// Documents are never modified after creation; a re-scrape produces a new one.
type Document struct {
	Content   string
	Source    string    // URL the document was fetched from
	FetchedAt time.Time // When the fetch completed
	Method    FetchMethod
}

// NewSentinelDocument returns the placeholder document for a URL that could not be fetched.
func NewSentinelDocument(source string) Document {
	return Document{
		Content:   SentinelContent,
		Source:    source,
		FetchedAt: time.Now().UTC(),
		Method:    FetchSentinel,
	}
}

// IsSentinel reports whether the document is a fetch-failure placeholder.
func (d Document) IsSentinel() bool {
	return d.Method == FetchSentinel
}

// Chunk is a bounded slice of a document's text.
type Chunk struct {
	Text      string
	Source    string
	FetchedAt time.Time
	Index     int // Position of the chunk within its document
}

// IndexedChunk is a chunk as stored in a vector collection.
type IndexedChunk struct {
	Id         ID
	Collection string
	Text       string
	Source     string
	FetchedAt  time.Time
	Index      int
	Vector     []float32
	InsertedAt time.Time
}

// SearchResult represents a search result with the stored chunk and relevance score.
type SearchResult struct {
	Chunk *IndexedChunk
	Score float32
}

// Run summarizes one scrape-and-ingest cycle.
type Run struct {
	Id             string
	StartedAt      time.Time
	FinishedAt     time.Time
	URLs           int
	Documents      int
	Sentinels      int
	Unattributed   int
	Entities       int
	FailedEntities []string
	Error          string
}

// Succeeded reports whether every entity was ingested.
func (r *Run) Succeeded() bool {
	return r.Error == "" && len(r.FailedEntities) == 0
}
