package model

// Question is a predefined analysis question the dashboard can run against a
// document workspace. Questions are free-form prompts; unlike figures they do
// not feed the structured-output schema.
type Question struct {
	ID      string `json:"id" yaml:"id"`
	Title   string `json:"title" yaml:"title"`
	Prompt  string `json:"prompt" yaml:"prompt"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Order   int    `json:"order" yaml:"order"`
}

// QuestionAnswer is the outcome of running one question against a workspace.
type QuestionAnswer struct {
	QuestionID string   `json:"question_id"`
	Title      string   `json:"title"`
	Answer     string   `json:"answer"`
	Sources    []Source `json:"sources,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Source is a citation returned by the RAG backend: which document a chunk of
// the answer came from, and the chunk text itself.
type Source struct {
	Document string `json:"document"`
	Text     string `json:"text"`
}
