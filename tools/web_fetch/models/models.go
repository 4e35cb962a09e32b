package models

type Result struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Byline   string `json:"byline,omitempty"`
	SiteName string `json:"site_name,omitempty"`
	Text     string `json:"text"`
	HTMLHash string `json:"html_hash,omitempty"`
	Status   int    `json:"status"`
	RenderMS int    `json:"render_ms"`
}

// OK reports whether the fetch produced usable text.
func (r Result) OK() bool { return r.Status == 200 && r.Text != "" }
