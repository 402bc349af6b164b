package models

import (
	"fmt"
	"strings"
	"time"
)

// MediaType is the catalog media category sent with a search.
type MediaType int

const (
	AllMedia  MediaType = -1
	EBook     MediaType = 400001
	EAudio    MediaType = 400002
	EMusic    MediaType = 400003
	EVideo    MediaType = 400004
	EMagazine MediaType = 400005
	EPaper    MediaType = 400006
	EPub      MediaType = 400008
	ELearning MediaType = 400013
)

var mediaTypeNames = []struct {
	name  string
	value MediaType
}{
	{"alleMedien", AllMedia},
	{"eAudio", EAudio},
	{"eBook", EBook},
	{"eLearning", ELearning},
	{"eMagazine", EMagazine},
	{"eMusic", EMusic},
	{"ePaper", EPaper},
	{"ePub", EPub},
	{"eVideo", EVideo},
}

func (m MediaType) String() string {
	for _, n := range mediaTypeNames {
		if n.value == m {
			return n.name
		}
	}
	return fmt.Sprintf("MediaType(%d)", int(m))
}

// ParseMediaType resolves a category by name (case-insensitive).
func ParseMediaType(name string) (MediaType, error) {
	for _, n := range mediaTypeNames {
		if strings.EqualFold(n.name, name) {
			return n.value, nil
		}
	}
	return AllMedia, fmt.Errorf("unknown media category %q (choose one of %s)", name, strings.Join(MediaTypeNames(), ", "))
}

// MediaTypeNames lists every category name.
func MediaTypeNames() []string {
	out := make([]string, 0, len(mediaTypeNames))
	for _, n := range mediaTypeNames {
		out = append(out, n.name)
	}
	return out
}

// SearchJob is one library queued for searching.
type SearchJob struct {
	Region  string
	Library *Library
}

// SearchResult is the outcome of one library search. Err is set when the
// search failed with an unclassified error; such results are not ranked.
type SearchResult struct {
	Region     string
	Library    *Library
	HitCount   int
	Err        error
	SearchedAt time.Time
}

// RunResult summarises a search batch.
type RunResult struct {
	Query        string
	Category     MediaType
	StartTime    time.Time
	EndTime      time.Time
	Results      []*SearchResult
	ErrorCount   int
	ErrorsByType map[string]int
	RequestCount int
	RetryCount   int
}
