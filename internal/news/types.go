package news

import "time"

// UntitledTitle подставляется, когда источник не прислал заголовок.
const UntitledTitle = "Untitled"

// Article хранит каноническое представление новости внутри одного запуска.
type Article struct {
	// ID совпадает с URL статьи и служит ключом дедупликации. Считается непрозрачной строкой.
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	PublishedAt     time.Time `json:"published_at"`
	Source          string    `json:"source"`
	MatchedKeywords []string  `json:"matched_keywords,omitempty"`
	// Summary заполняется только если включены сводки Gemini.
	Summary string `json:"summary,omitempty"`
}

// URL возвращает ссылку на статью (совпадает с идентификатором).
func (a Article) URL() string {
	return a.ID
}

// NotificationRecord описывает запись об уже отправленной новости.
type NotificationRecord struct {
	SentAt time.Time `json:"sent_at"`
	Title  string    `json:"title"`
	URL    string    `json:"url"`
}

// TrackerStats содержит сводку по хранилищу отправленных новостей.
type TrackerStats struct {
	Total  int        `json:"total"`
	Oldest *time.Time `json:"oldest,omitempty"`
	Newest *time.Time `json:"newest,omitempty"`
}

// RunReport подводит итоги одного запуска пайплайна.
type RunReport struct {
	RunID     string         `json:"run_id"`
	Fetched   int            `json:"fetched"`
	Matched   int            `json:"matched"`
	New       int            `json:"new"`
	Digest    []Article      `json:"digest,omitempty"`
	Delivered bool           `json:"delivered"`
	Pruned    int            `json:"pruned"`
	Keywords  map[string]int `json:"keywords,omitempty"`
}
