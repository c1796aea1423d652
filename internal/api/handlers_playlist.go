package api

import (
	"errors"
	"net/http"

	"github.com/festlist/festlist/internal/api/middleware"
	"github.com/festlist/festlist/internal/playlist"
	"github.com/festlist/festlist/internal/user"
)

type playlistTrack struct {
	Name       string  `json:"name"`
	Artist     string  `json:"artist"`
	SpotifyID  string  `json:"spotify_id"`
	URI        string  `json:"uri"`
	PreviewURL *string `json:"preview_url"`
	Popularity int     `json:"popularity"`
	DurationMS int64   `json:"duration_ms"`
}

type playlistBody struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	SpotifyID   string          `json:"spotify_id"`
	URL         string          `json:"url"`
	Tracks      []playlistTrack `json:"tracks"`
	TotalTracks int             `json:"total_tracks"`
}

type playlistResponse struct {
	Playlist          playlistBody `json:"playlist"`
	SuccessfulArtists []string     `json:"successful_artists"`
	FailedArtists     []string     `json:"failed_artists"`
	TotalTracksAdded  int          `json:"total_tracks_added"`
	ProcessingTime    float64      `json:"processing_time"`
}

func (r *Router) handleCreatePlaylist(w http.ResponseWriter, req *http.Request) {
	if r.builder == nil {
		writeError(w, http.StatusServiceUnavailable, "playlist creation not available")
		return
	}
	if !r.spotifyReady(w) {
		return
	}
	var body playlist.Request
	if !decodeJSON(w, req, &body) {
		return
	}

	ctx := req.Context()
	u, err := r.users.Get(ctx, middleware.UserIDFromContext(ctx))
	if err != nil {
		r.logger.Error("loading user", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if body.TracksPerArtist == 0 {
		body.TracksPerArtist = u.TracksPerArtist
	}
	if err := body.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tok, err := r.users.Token(ctx, u.ID)
	if errors.Is(err, user.ErrNoToken) {
		writeError(w, http.StatusUnauthorized, "Spotify authorization required")
		return
	}
	if err != nil {
		r.logger.Error("loading spotify token", "user_id", u.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	client := r.spotify.ForUser(ctx, tok)
	res, err := r.builder.Build(ctx, body, playlist.Owner{UserID: u.ID, SpotifyID: u.SpotifyID}, client)
	r.persistToken(req, u.ID, tok.AccessToken, client)
	if errors.Is(err, playlist.ErrNoTracks) {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":          "No tracks found for any artists",
			"failed_artists": body.Artists,
		})
		return
	}
	if err != nil {
		r.logger.Error("creating playlist", "user_id", u.ID, "error", err)
		writeError(w, http.StatusBadGateway, "Failed to create playlist")
		return
	}

	tracks := make([]playlistTrack, len(res.Tracks))
	for i, t := range res.Tracks {
		tracks[i] = playlistTrack{
			Name:       t.Name,
			Artist:     t.ArtistName,
			SpotifyID:  t.ID,
			URI:        t.URI,
			Popularity: t.Popularity,
			DurationMS: t.Duration.Milliseconds(),
		}
		if t.PreviewURL != "" {
			tracks[i].PreviewURL = &t.PreviewURL
		}
	}

	writeJSON(w, http.StatusOK, playlistResponse{
		Playlist: playlistBody{
			Name:        res.Playlist.Name,
			Description: res.Playlist.Description,
			SpotifyID:   res.Playlist.ID,
			URL:         res.Playlist.URL,
			Tracks:      tracks,
			TotalTracks: len(tracks),
		},
		SuccessfulArtists: res.SuccessfulArtists,
		FailedArtists:     res.FailedArtists,
		TotalTracksAdded:  len(tracks),
		ProcessingTime:    seconds(res.Duration),
	})
}

// persistToken stores the client's token if it was refreshed during the
// request.
func (r *Router) persistToken(req *http.Request, userID, previous string, client SpotifyUser) {
	tok, err := client.Token()
	if err != nil || tok.AccessToken == previous {
		return
	}
	if err := r.users.SaveToken(req.Context(), userID, tok); err != nil {
		r.logger.Warn("saving refreshed spotify token", "user_id", userID, "error", err)
	}
}
