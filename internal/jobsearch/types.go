// Package jobsearch implements the HTTP client for the jobsearch.az public API.
package jobsearch

import "encoding/json"

// ListingItem is the minimal record returned by the listings endpoint. It is
// ephemeral: just enough to request the full detail payload.
type ListingItem struct {
	ID        int             `json:"id"`
	Title     string          `json:"title"`
	Slug      string          `json:"slug"`
	ViewCount json.RawMessage `json:"view_count"`
}

// Valid reports whether the item carries the fields required to fetch and
// persist its detail record.
func (i ListingItem) Valid() bool {
	return i.ID > 0 && i.Slug != "" && i.Title != ""
}

// ListingsPage is one page of the listings endpoint.
type ListingsPage struct {
	Items []ListingItem `json:"items"`
	Next  string        `json:"next"`
}

// JobPayload is the raw detail record as returned by the API. Fields are
// optional or inconsistently typed on the wire, so anything that varies is
// declared as a pointer or json.RawMessage and resolved by the normalizer.
type JobPayload struct {
	ID             int             `json:"id"`
	Title          string          `json:"title"`
	Slug           string          `json:"slug"`
	IsNew          bool            `json:"is_new"`
	IsFavorite     bool            `json:"is_favorite"`
	IsVip          bool            `json:"is_vip"`
	CreatedAt      string          `json:"created_at"`
	DeadlineAt     string          `json:"deadline_at"`
	Salary         json.RawMessage `json:"salary"`
	HideCompany    bool            `json:"hide_company"`
	ViewCount      json.RawMessage `json:"view_count"`
	Phone          string          `json:"phone"`
	Text           string          `json:"text"`
	RequestType    string          `json:"request_type"`
	DirectApply    bool            `json:"direct_apply"`
	ApplyLink      string          `json:"apply_link"`
	HasCompanyInfo bool            `json:"has_company_info"`
	VacancyCount   int             `json:"company_vacancy_count"`

	Company  CompanyPayload  `json:"company"`
	Category CategoryPayload `json:"category"`
	Files    []FilePayload   `json:"files"`
}

// CompanyPayload is the nested company block of a detail record.
type CompanyPayload struct {
	ID          *int               `json:"id"`
	Title       string             `json:"title"`
	Slug        string             `json:"slug"`
	Logo        string             `json:"logo"`
	LogoMini    string             `json:"logo_mini"`
	FirstChar   string             `json:"first_char"`
	HasStory    bool               `json:"has_story"`
	Summary     string             `json:"summary"`
	Text        string             `json:"text"`
	Address     string             `json:"address"`
	Cover       string             `json:"cover"`
	Coordinates CoordinatesPayload `json:"coordinates"`
	Phones      []string           `json:"phones"`
	Sites       []SitePayload      `json:"sites"`
	Emails      []string           `json:"email"`
	Industries  []IndustryPayload  `json:"industries"`
	Gallery     []string           `json:"gallery"`
}

// CoordinatesPayload carries the company location; zero values mean absent.
type CoordinatesPayload struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// CategoryPayload is the nested category block.
type CategoryPayload struct {
	ID        *int   `json:"id"`
	Title     string `json:"title"`
	ImageMini string `json:"image_mini"`
}

// SitePayload is one company website entry.
type SitePayload struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// IndustryPayload is one company industry entry.
type IndustryPayload struct {
	ID        *int   `json:"id"`
	Title     string `json:"title"`
	ImageMini string `json:"image_mini"`
}

// FilePayload is one attachment on the job posting.
type FilePayload struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Type string `json:"type"`
}
