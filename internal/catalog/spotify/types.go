package spotify

type image struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type followers struct {
	Total int `json:"total"`
}

type externalURLs struct {
	Spotify string `json:"spotify"`
}

// artistObject is a Spotify artist as returned by search.
type artistObject struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Genres       []string     `json:"genres"`
	Popularity   int          `json:"popularity"`
	Followers    followers    `json:"followers"`
	ExternalURLs externalURLs `json:"external_urls"`
	Images       []image      `json:"images"`
}

// searchResponse is the JSON response from GET /search?type=artist.
type searchResponse struct {
	Artists struct {
		Items []artistObject `json:"items"`
		Total int            `json:"total"`
	} `json:"artists"`
}

type simpleArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type albumObject struct {
	Name string `json:"name"`
}

type trackObject struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	URI          string         `json:"uri"`
	Artists      []simpleArtist `json:"artists"`
	Album        albumObject    `json:"album"`
	DurationMS   int            `json:"duration_ms"`
	Popularity   int            `json:"popularity"`
	PreviewURL   string         `json:"preview_url"`
	Explicit     bool           `json:"explicit"`
	ExternalURLs externalURLs   `json:"external_urls"`
}

// topTracksResponse is the JSON response from GET /artists/{id}/top-tracks.
type topTracksResponse struct {
	Tracks []trackObject `json:"tracks"`
}

// userObject is the JSON response from GET /me.
type userObject struct {
	ID           string       `json:"id"`
	DisplayName  string       `json:"display_name"`
	Email        string       `json:"email"`
	Country      string       `json:"country"`
	Followers    followers    `json:"followers"`
	Images       []image      `json:"images"`
	ExternalURLs externalURLs `json:"external_urls"`
}

type createPlaylistRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Public      bool   `json:"public"`
}

type trackCount struct {
	Total int `json:"total"`
}

type playlistObject struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	Public       bool         `json:"public"`
	ExternalURLs externalURLs `json:"external_urls"`
	Tracks       trackCount   `json:"tracks"`
}

type addTracksRequest struct {
	URIs []string `json:"uris"`
}

type errorResponse struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}
