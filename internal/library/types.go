package library

// Section names the artifact class an entry belongs to.
type Section string

const (
	SectionVideo    Section = "videos"
	SectionSubtitle Section = "subtitles"
	SectionPrompt   Section = "prompts"
)

// Artifact is one stored file under the storage root.
type Artifact struct {
	Name          string  `json:"name"`
	Section       Section `json:"section"`
	URL           string  `json:"url"`
	SizeBytes     int64   `json:"size_bytes"`
	SizeHuman     string  `json:"size_human"`
	Language      string  `json:"language,omitempty"`
	Format        string  `json:"format,omitempty"`
	ModifiedAtUTC string  `json:"modified_at"`
}

// Library is the full artifact inventory, grouped by section.
type Library struct {
	Videos    []Artifact `json:"videos"`
	Subtitles []Artifact `json:"subtitles"`
	Prompts   []Artifact `json:"prompts"`
	TotalSize int64      `json:"total_size_bytes"`
}
