package deezer

// searchResponse is the JSON response from the Deezer artist search endpoint.
type searchResponse struct {
	Data  []artistResult `json:"data"`
	Total int            `json:"total"`
	Next  string         `json:"next,omitempty"`
}

// artistResult is a single artist entry from a Deezer search.
type artistResult struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Link       string `json:"link"`
	PictureBig string `json:"picture_big"`
	PictureXL  string `json:"picture_xl"`
	NbAlbum    int    `json:"nb_album"`
	NbFan      int    `json:"nb_fan"`
	Type       string `json:"type"`
}

// topResponse is the JSON response from /artist/{id}/top.
type topResponse struct {
	Data []trackResult `json:"data"`
}

type trackArtist struct {
	Name string `json:"name"`
}

type trackAlbum struct {
	Title string `json:"title"`
}

type trackResult struct {
	ID       int         `json:"id"`
	Title    string      `json:"title"`
	Link     string      `json:"link"`
	Duration int         `json:"duration"`
	Rank     int         `json:"rank"`
	Preview  string      `json:"preview"`
	Artist   trackArtist `json:"artist"`
	Album    trackAlbum  `json:"album"`
}

// apiError is the error object Deezer returns with a 200 status.
type apiError struct {
	Error *apiErrorBody `json:"error"`
}

type apiErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
